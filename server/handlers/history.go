package handlers

import (
	"net/http"
)

// HistoryHandler handles requests for the run history.
type HistoryHandler struct {
	provider HistoryProvider
}

// NewHistoryHandler creates a new HistoryHandler.
func NewHistoryHandler(provider HistoryProvider) *HistoryHandler {
	return &HistoryHandler{
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	history := h.provider.History()
	writeJSON(w, http.StatusOK, history)
}

// RunRecordHandler returns one run from history with its steps and logs.
// The run id is the {id} path value.
type RunRecordHandler struct {
	provider HistoryProvider
}

// NewRunRecordHandler creates a new RunRecordHandler.
func NewRunRecordHandler(provider HistoryProvider) *RunRecordHandler {
	return &RunRecordHandler{
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *RunRecordHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing run id")
		return
	}

	record, ok := h.provider.Record(id)
	if !ok {
		writeError(w, http.StatusNotFound, "run "+id+" not found")
		return
	}

	writeJSON(w, http.StatusOK, record)
}
