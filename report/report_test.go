package report

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomis52/gostack/action"
	"github.com/nomis52/gostack/action/actiontest"
	"github.com/nomis52/gostack/component"
	"github.com/nomis52/gostack/hostrole"
	"github.com/nomis52/gostack/logging"
	"github.com/nomis52/gostack/pipeline"
)

func noColor(t *testing.T) {
	t.Helper()
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })
}

func cmd(run string) action.Action {
	return action.Action{Name: run, Command: action.Command{Run: run}}
}

// mixedRun bootstraps three components: db fails to install, web depends on
// db and never runs, cache completes with a failed best-effort test.
func mixedRun(t *testing.T, opts ...pipeline.Option) *pipeline.Run {
	t.Helper()
	install := func(name string) []component.Step {
		return []component.Step{{Step: action.NewStep(cmd("install " + name)).Guarded(cmd("test -e /opt/" + name))}}
	}
	comps := []*component.Component{
		{Name: "db", Role: "app", Steps: map[component.Phase][]component.Step{component.Install: install("db")}},
		{Name: "web", Role: "app", DependsOn: []string{"db"}, Steps: map[component.Phase][]component.Step{component.Install: install("web")}},
		{
			Name: "cache",
			Role: "app",
			Steps: map[component.Phase][]component.Step{
				component.Install: install("cache"),
				component.Test:    {{Step: action.NewStep(cmd("redis-cli ping"))}},
			},
			BestEffort: map[component.Phase]bool{component.Test: true},
		},
	}
	ex := actiontest.NewExecutor().
		On("test -e /opt/db", actiontest.Reply{ExitCode: 1}).
		On("install db", actiontest.Reply{ExitCode: 2, Output: "E: disk full"}).
		On("redis-cli ping", actiontest.Reply{ExitCode: 1, Output: "connection refused"})

	roles, err := hostrole.NewSet(hostrole.Role{Name: "app", Hosts: []string{"app1"}})
	require.NoError(t, err)
	p, err := pipeline.New(comps, roles, append([]pipeline.Option{
		pipeline.WithExecutor(ex),
		pipeline.WithLogger(logging.Discard()),
	}, opts...)...)
	require.NoError(t, err)
	return p.Bootstrap(context.Background())
}

func TestWriteSummary(t *testing.T) {
	noColor(t)
	run := mixedRun(t)

	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, run))
	out := buf.String()

	assert.Contains(t, out, "bootstrap failed in ")
	assert.Regexp(t, `✘ +db +failed +db install: `, out)
	assert.Regexp(t, `✘ +web +failed-downstream +blocked by db`, out)
	assert.Regexp(t, `✔ +cache +completed +tested`, out)
	assert.Contains(t, out, "warnings:\n  cache test failed (best-effort)")
}

func TestWriteSummary_Succeeded(t *testing.T) {
	noColor(t)
	run := &pipeline.Run{
		Operation:  "start_web",
		Components: []pipeline.ComponentResult{{Name: "web", Outcome: pipeline.OutcomeCompleted, State: component.Started}},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, run))
	assert.Contains(t, buf.String(), "start_web succeeded in 0s")
	assert.Regexp(t, `✔ +web +completed +started`, buf.String())
	assert.NotContains(t, buf.String(), "warnings")
}

func TestReport_Write(t *testing.T) {
	collector := logging.NewLogCollector()
	run := mixedRun(t, pipeline.WithLoggerHook(logging.NewCapturingLoggerHook(collector)))

	var buf bytes.Buffer
	require.NoError(t, New([]*pipeline.Run{run}, collector).Write(&buf))

	var decoded struct {
		Runs []struct {
			Operation  string `json:"operation"`
			Components []struct {
				Name    string `json:"name"`
				Outcome string `json:"outcome"`
			} `json:"components"`
			Warnings []string `json:"warnings"`
		} `json:"runs"`
		Logs map[string][]logging.Entry `json:"logs"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded.Runs, 1)
	assert.Equal(t, "bootstrap", decoded.Runs[0].Operation)
	assert.Len(t, decoded.Runs[0].Components, 3)
	assert.Len(t, decoded.Runs[0].Warnings, 1)
	assert.NotEmpty(t, decoded.Logs["db"])
	assert.NotEmpty(t, decoded.Logs["cache"])
}

func TestReport_WriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	runs := []*pipeline.Run{{Operation: "stop_frontend"}, {Operation: "start_frontend"}}

	require.NoError(t, New(runs, nil).WriteFile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, json.Valid(data))
	assert.NotContains(t, string(data), `"logs"`)
	assert.Contains(t, string(data), `"start_frontend"`)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	err = New(runs, nil).WriteFile(filepath.Join(t.TempDir(), "missing", "report.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create report")
}
