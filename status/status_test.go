package status

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandler(t *testing.T) {
	h := NewHandler()
	h.Set("frontend", "install running")
	h.Set("platform", "checking preconditions")
	h.Set("frontend", "completed")

	assert.Equal(t, "completed", h.Get("frontend"))
	assert.Equal(t, "", h.Get("engine"))

	all := h.All()
	assert.Equal(t, map[string]string{"frontend": "completed", "platform": "checking preconditions"}, all)

	all["frontend"] = "mutated"
	assert.Equal(t, "completed", h.Get("frontend"), "All returns a copy")
}

func TestHandler_Concurrent(t *testing.T) {
	h := NewHandler()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Set("engine", "running")
			_ = h.All()
		}()
	}
	wg.Wait()
	assert.Equal(t, "running", h.Get("engine"))
}

func TestLine(t *testing.T) {
	t.Run("set updates handler", func(t *testing.T) {
		h := NewHandler()
		line := NewLine("frontend", discard(), h)
		line.Set("waiting for http://web1:8081")
		assert.Equal(t, "waiting for http://web1:8081", h.Get("frontend"))
	})

	t.Run("nil handler does not panic", func(t *testing.T) {
		line := NewLine("frontend", discard(), nil)
		line.Set("working")
	})
}

func TestCaptureError(t *testing.T) {
	t.Run("sets error status on failure", func(t *testing.T) {
		h := NewHandler()
		line := NewLine("engine", discard(), h)

		err := CaptureError(line, func() error { return errors.New("sbt not found") })
		require.Error(t, err)
		assert.Equal(t, "❌ sbt not found", h.Get("engine"))
	})

	t.Run("leaves status on success", func(t *testing.T) {
		h := NewHandler()
		line := NewLine("engine", discard(), h)

		require.NoError(t, CaptureError(line, func() error { return nil }))
		assert.Equal(t, "", h.Get("engine"))
	})

	t.Run("nil line", func(t *testing.T) {
		err := CaptureError(nil, func() error { return errors.New("boom") })
		assert.EqualError(t, err, "boom")
	})
}
