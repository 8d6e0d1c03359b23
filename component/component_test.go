package component

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomis52/gostack/action"
	"github.com/nomis52/gostack/action/actiontest"
	"github.com/nomis52/gostack/poll"
)

func guardedStep(run, creates string) Step {
	a := action.Action{Name: run, Command: action.Command{Run: run}}
	check := action.Action{Command: action.Command{Run: "test -e " + creates}}
	return Step{Step: action.NewStep(a).Guarded(check)}
}

func frontend() *Component {
	return &Component{
		Name: "frontend",
		Role: "web",
		Steps: map[Phase][]Step{
			Install: {guardedStep("npm install", "node_modules")},
			Start:   {{Step: action.NewStep(action.Action{Command: action.Command{Run: "nginx"}})}},
		},
		BestEffort: map[Phase]bool{Test: true},
	}
}

func TestParsePhase(t *testing.T) {
	p, err := ParsePhase(" Uninstall ")
	require.NoError(t, err)
	assert.Equal(t, Uninstall, p)

	_, err = ParsePhase("deploy")
	assert.Error(t, err)
}

func TestComponent_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Component)
		wantErr string
	}{
		{name: "valid", mutate: func(*Component) {}},
		{name: "missing role", mutate: func(c *Component) { c.Role = "" }, wantErr: "role is required"},
		{name: "whitespace in name", mutate: func(c *Component) { c.Name = "front end" }, wantErr: "whitespace"},
		{name: "self dependency", mutate: func(c *Component) { c.DependsOn = []string{"frontend"} }, wantErr: "depends on itself"},
		{
			name: "unguarded install",
			mutate: func(c *Component) {
				c.Steps[Install] = append(c.Steps[Install], Step{Step: action.NewStep(action.Action{Command: action.Command{Run: "grunt"}})})
			},
			wantErr: "no existence check",
		},
		{
			name: "gated install",
			mutate: func(c *Component) {
				s := guardedStep("apt-get install -y nginx", "/usr/sbin/nginx")
				s.Step = s.Step.Gated("Install nginx?")
				c.Steps[Install] = []Step{s}
			},
			wantErr: "must not ask for confirmation",
		},
		{name: "best-effort install", mutate: func(c *Component) { c.BestEffort[Install] = true }, wantErr: "cannot be best-effort"},
		{
			name: "readiness without probe",
			mutate: func(c *Component) {
				c.Readiness = &Readiness{Timeout: time.Second, Period: time.Second}
			},
			wantErr: "no probe",
		},
		{
			name: "readiness without period",
			mutate: func(c *Component) {
				c.Readiness = &Readiness{
					Probe:   func(string, action.Executor) poll.Probe { return nil },
					Timeout: time.Second,
				}
			},
			wantErr: "must be positive",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := frontend()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestComponent_CheckEnv(t *testing.T) {
	c := &Component{Name: "platform", RequiredEnv: []string{"JAVA_HOME", "M2_HOME"}}

	err := c.CheckEnv(map[string]string{"JAVA_HOME": "/usr/lib/jvm/default"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, action.ErrPreconditionMissing))
	assert.Contains(t, err.Error(), "$M2_HOME")

	assert.NoError(t, c.CheckEnv(map[string]string{"JAVA_HOME": "/jdk", "M2_HOME": "/m2"}))
}

func TestComponent_CheckTools(t *testing.T) {
	c := &Component{Name: "platform", RequiredTools: []string{"git", "mvn"}}

	ex := actiontest.NewExecutor().On("command -v mvn", actiontest.Reply{ExitCode: 1})
	err := c.CheckTools(context.Background(), ex, "h1")
	require.Error(t, err)
	assert.ErrorIs(t, err, action.ErrPreconditionMissing)

	var pe *PreconditionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "h1", pe.Host)
	assert.Equal(t, []string{"mvn"}, pe.Missing)

	unreachable := actiontest.NewExecutor().On("command -v git", actiontest.Reply{Err: errors.New("connection refused")})
	err = c.CheckTools(context.Background(), unreachable, "h1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, action.ErrPreconditionMissing)
}
