// Package status tracks a one-line, human-readable status per component
// while a run is in progress.
//
// It follows the log/slog split between writer and handler:
//
//   - Line writes status messages for one component (analogous to slog.Logger)
//   - Handler receives and stores them (analogous to slog.Handler)
//
// The pipeline gives each component a Line; the server reads the Handler to
// show what every component is doing right now.
//
//	h := status.NewHandler()
//	line := status.NewLine("frontend", logger, h)
//	line.Set("waiting for http://web1:8081")
//	h.All() // map[frontend:waiting for http://web1:8081]
package status

import (
	"log/slog"
	"maps"
	"sync"
)

// Handler stores the latest status message of each component.
type Handler struct {
	mu       sync.RWMutex
	statuses map[string]string
}

// NewHandler creates an empty Handler.
func NewHandler() *Handler {
	return &Handler{statuses: make(map[string]string)}
}

// Set records the status of a component.
func (h *Handler) Set(component, status string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.statuses[component] = status
}

// Get returns the status of a component.
func (h *Handler) Get(component string) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.statuses[component]
}

// All returns a copy of every status.
func (h *Handler) All() map[string]string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return maps.Clone(h.statuses)
}

// Line logs status changes for one component and forwards them to a Handler.
// A nil handler means status changes are only logged.
type Line struct {
	component string
	logger    *slog.Logger
	handler   *Handler
}

// NewLine creates a Line bound to a component.
func NewLine(component string, logger *slog.Logger, handler *Handler) *Line {
	return &Line{component: component, logger: logger, handler: handler}
}

// Set logs status and updates the handler.
func (l *Line) Set(status string) {
	l.logger.Debug(status, "status", true)
	if l.handler != nil {
		l.handler.Set(l.component, status)
	}
}

// CaptureError runs f and, if it fails, sets the error as the status.
func CaptureError(line *Line, f func() error) error {
	err := f()
	if err != nil && line != nil {
		line.Set("❌ " + err.Error())
	}
	return err
}
