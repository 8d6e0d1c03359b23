package handlers

import (
	"net/http"
	"time"

	"github.com/nomis52/gostack/buildinfo"
	"github.com/nomis52/gostack/server/runner"
)

// NextRunResponse is the JSON response for the next run information.
type NextRunResponse struct {
	Scheduled bool       `json:"scheduled"`
	NextRun   *time.Time `json:"next_run,omitempty"`
}

// APIStatusResponse is the consolidated response for /api/status.
type APIStatusResponse struct {
	Run     runner.RunStatus     `json:"run"`
	NextRun NextRunResponse      `json:"next_run"`
	Build   buildinfo.Properties `json:"build"`
}

// APIStatusProvider aggregates all the providers needed for the status endpoint.
type APIStatusProvider interface {
	RunStatusProvider
	Scheduler
}

// APIStatusHandler handles requests for the consolidated status endpoint.
type APIStatusHandler struct {
	provider APIStatusProvider
}

// NewAPIStatusHandler creates a new APIStatusHandler.
func NewAPIStatusHandler(provider APIStatusProvider) *APIStatusHandler {
	return &APIStatusHandler{
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *APIStatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	nextRun := h.provider.NextRun()
	resp := APIStatusResponse{
		Run: h.provider.Status(),
		NextRun: NextRunResponse{
			Scheduled: nextRun != nil,
			NextRun:   nextRun,
		},
		Build: buildinfo.Get(),
	}

	writeJSON(w, http.StatusOK, resp)
}
