package handlers

import (
	"net/http"

	"github.com/nomis52/gostack/server/runner"
)

// ComponentStatusResponse is the live status line of one component in the
// current or last run.
type ComponentStatusResponse struct {
	Component string          `json:"component"`
	Status    string          `json:"status"`
	RunID     string          `json:"run_id"`
	State     runner.RunState `json:"state"`
}

// ComponentStatusHandler serves GET /api/status/{component}.
type ComponentStatusHandler struct {
	provider RunStatusProvider
}

// NewComponentStatusHandler creates a new ComponentStatusHandler.
func NewComponentStatusHandler(provider RunStatusProvider) *ComponentStatusHandler {
	return &ComponentStatusHandler{provider: provider}
}

// ServeHTTP implements http.Handler. Components the run has not reached
// yet are not found.
func (h *ComponentStatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("component")
	st := h.provider.Status()
	line, ok := st.Statuses[name]
	if !ok {
		writeError(w, http.StatusNotFound, "no status for component "+name)
		return
	}
	writeJSON(w, http.StatusOK, ComponentStatusResponse{
		Component: name,
		Status:    line,
		RunID:     st.ID,
		State:     st.State,
	})
}
