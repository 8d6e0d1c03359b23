package logging

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
)

// Entry is one captured log record.
type Entry struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

// LogCollector stores captured entries per component. It is safe for concurrent use.
type LogCollector struct {
	mu      sync.RWMutex
	entries map[string][]Entry
	order   []string
}

// NewLogCollector creates an empty LogCollector.
func NewLogCollector() *LogCollector {
	return &LogCollector{entries: make(map[string][]Entry)}
}

// Add appends an entry under key.
func (c *LogCollector) Add(key string, e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; !ok {
		c.order = append(c.order, key)
	}
	c.entries[key] = append(c.entries[key], e)
}

// Entries returns a copy of the entries captured under key.
func (c *LogCollector) Entries(key string) []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.entries[key])
}

// Keys returns the keys in the order they were first logged.
func (c *LogCollector) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.order)
}

// All returns a copy of every captured entry grouped by key.
func (c *LogCollector) All() map[string][]Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string][]Entry, len(c.entries))
	for k, v := range c.entries {
		out[k] = slices.Clone(v)
	}
	return out
}

// Clear removes everything.
func (c *LogCollector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string][]Entry)
	c.order = nil
}

// CapturingHandler copies every record into a LogCollector under a fixed key
// and passes it on to the wrapped handler.
type CapturingHandler struct {
	next      slog.Handler
	collector *LogCollector
	key       string
	attrs     []slog.Attr
	groups    []string
}

// NewCapturingHandler wraps next.
func NewCapturingHandler(next slog.Handler, collector *LogCollector, key string) *CapturingHandler {
	return &CapturingHandler{next: next, collector: collector, key: key}
}

// Enabled captures every level; the wrapped handler still filters its own output.
func (h *CapturingHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

func (h *CapturingHandler) Handle(ctx context.Context, r slog.Record) error {
	e := Entry{
		Time:    r.Time,
		Level:   strings.ToLower(r.Level.String()),
		Message: r.Message,
	}
	if n := r.NumAttrs() + len(h.attrs); n > 0 {
		e.Attrs = make(map[string]any, n)
	}
	for _, a := range h.attrs {
		e.Attrs[a.Key] = resolve(a.Value)
	}
	prefix := strings.Join(h.groups, ".")
	r.Attrs(func(a slog.Attr) bool {
		k := a.Key
		if prefix != "" {
			k = prefix + "." + k
		}
		e.Attrs[k] = resolve(a.Value)
		return true
	})
	h.collector.Add(h.key, e)

	if !h.next.Enabled(ctx, r.Level) {
		return nil
	}
	return h.next.Handle(ctx, r)
}

// WithAttrs must keep returning a CapturingHandler so logger.With chains stay captured.
func (h *CapturingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.next = h.next.WithAttrs(attrs)
	c.attrs = append(slices.Clone(h.attrs), attrs...)
	return &c
}

func (h *CapturingHandler) WithGroup(name string) slog.Handler {
	c := *h
	c.next = h.next.WithGroup(name)
	c.groups = append(slices.Clone(h.groups), name)
	return &c
}

// resolve converts a slog.Value into something encoding/json renders sensibly.
func resolve(v slog.Value) any {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindGroup:
		group := make(map[string]any, len(v.Group()))
		for _, a := range v.Group() {
			group[a.Key] = resolve(a.Value)
		}
		return group
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return v.Any()
	default:
		return v.Any()
	}
}

// LoggerHook derives a per-component logger from the base logger.
type LoggerHook interface {
	LoggerFor(base *slog.Logger, component string) *slog.Logger
}

// CapturingLoggerHook returns loggers that record into a shared collector.
type CapturingLoggerHook struct {
	collector *LogCollector
}

// NewCapturingLoggerHook creates a hook writing into collector.
func NewCapturingLoggerHook(collector *LogCollector) *CapturingLoggerHook {
	return &CapturingLoggerHook{collector: collector}
}

// LoggerFor wraps base so everything it logs is kept under component.
func (h *CapturingLoggerHook) LoggerFor(base *slog.Logger, component string) *slog.Logger {
	return slog.New(NewCapturingHandler(base.Handler(), h.collector, component))
}
