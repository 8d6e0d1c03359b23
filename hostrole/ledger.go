package hostrole

import (
	"sync"

	"github.com/nomis52/gostack/action"
)

// Ledger records once-only work for the lifetime of one pipeline run.
// A key that has already run returns its first result without running again,
// whichever host is primary by then.
type Ledger struct {
	mu   sync.Mutex
	done map[string]action.Result
}

// NewLedger creates an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{done: make(map[string]action.Result)}
}

// Once runs fn the first time key is seen and returns its result.
// ran is false when the result was recorded earlier in the run.
func (l *Ledger) Once(key string, fn func() action.Result) (res action.Result, ran bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if prev, ok := l.done[key]; ok {
		return prev, false
	}
	res = fn()
	l.done[key] = res
	return res, true
}

// Len returns the number of recorded keys.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.done)
}
