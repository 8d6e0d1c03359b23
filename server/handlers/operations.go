package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/nomis52/gostack/action"
	"github.com/nomis52/gostack/pipeline"
)

// OperationsResponse is the JSON response for /api/operations.
type OperationsResponse struct {
	Operations []string `json:"operations"`
}

// OperationsHandler lists the operations that can be run.
type OperationsHandler struct {
	logger   *slog.Logger
	provider OperationsProvider
}

// NewOperationsHandler creates a new OperationsHandler.
func NewOperationsHandler(logger *slog.Logger, provider OperationsProvider) *OperationsHandler {
	return &OperationsHandler{
		logger:   logger,
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *OperationsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ops, err := h.provider.Operations()
	if err != nil {
		h.logger.Error("failed to list operations", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, OperationsResponse{Operations: ops})
}

// PlanResponse is the JSON response for /api/plan/{operation}.
type PlanResponse struct {
	Operation string                 `json:"operation"`
	Steps     []pipeline.PlannedStep `json:"steps"`
}

// PlanHandler returns what an operation would run.
type PlanHandler struct {
	planner Planner
}

// NewPlanHandler creates a new PlanHandler.
func NewPlanHandler(planner Planner) *PlanHandler {
	return &PlanHandler{
		planner: planner,
	}
}

// ServeHTTP implements http.Handler.
func (h *PlanHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	op := r.PathValue("operation")
	steps, err := h.planner.Plan(op)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, action.ErrUsage) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, PlanResponse{Operation: op, Steps: steps})
}
