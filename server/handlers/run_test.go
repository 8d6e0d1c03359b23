package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomis52/gostack/action"
	"github.com/nomis52/gostack/server/runner"
)

type mockRunner struct {
	err error
	ops []string
}

func (m *mockRunner) Run(operations []string) error {
	m.ops = operations
	return m.err
}

func TestRunHandler(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		err       error
		wantCode  int
		wantError string
		wantOps   []string
	}{
		{
			name:     "accepted",
			body:     `{"operations": ["stop_frontend", "start_frontend"]}`,
			wantCode: http.StatusAccepted,
			wantOps:  []string{"stop_frontend", "start_frontend"},
		},
		{
			name:      "invalid json",
			body:      `{"operations": [`,
			wantCode:  http.StatusBadRequest,
			wantError: "invalid JSON",
		},
		{
			name:      "empty",
			body:      `{"operations": []}`,
			wantCode:  http.StatusBadRequest,
			wantError: "operations array cannot be empty",
		},
		{
			name:      "in progress",
			body:      `{"operations": ["bootstrap"]}`,
			err:       runner.ErrRunInProgress,
			wantCode:  http.StatusConflict,
			wantError: "run already in progress",
			wantOps:   []string{"bootstrap"},
		},
		{
			name:      "unknown operation",
			body:      `{"operations": ["deploy"]}`,
			err:       fmt.Errorf("%w: unknown operation %q", action.ErrUsage, "deploy"),
			wantCode:  http.StatusBadRequest,
			wantError: `unknown operation "deploy"`,
			wantOps:   []string{"deploy"},
		},
		{
			name:      "pipeline error",
			body:      `{"operations": ["bootstrap"]}`,
			err:       errors.New("failed to build pipeline: no route to host"),
			wantCode:  http.StatusInternalServerError,
			wantError: "no route to host",
			wantOps:   []string{"bootstrap"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &mockRunner{err: tt.err}
			handler := NewRunHandler(r)

			req := httptest.NewRequest(http.MethodPost, "/api/run", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantOps, r.ops)
			if tt.wantError != "" {
				var resp ErrorResponse
				require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
				assert.Contains(t, resp.Error, tt.wantError)
			}
		})
	}
}
