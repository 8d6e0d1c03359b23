package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/nomis52/gostack/action"
	"github.com/nomis52/gostack/server/runner"
)

// RunRequest defines the request body for POST /api/run.
type RunRequest struct {
	Operations []string `json:"operations"`
}

// RunHandler handles requests to start a run.
type RunHandler struct {
	runner OperationRunner
}

// NewRunHandler creates a new RunHandler.
func NewRunHandler(r OperationRunner) *RunHandler {
	return &RunHandler{
		runner: r,
	}
}

// ServeHTTP implements http.Handler.
func (h *RunHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	if len(req.Operations) == 0 {
		writeError(w, http.StatusBadRequest, "operations array cannot be empty")
		return
	}

	err := h.runner.Run(req.Operations)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusAccepted)
	case errors.Is(err, runner.ErrRunInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, action.ErrUsage):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
