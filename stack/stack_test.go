package stack

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomis52/gostack/action"
	"github.com/nomis52/gostack/component"
	"github.com/nomis52/gostack/config"
	"github.com/nomis52/gostack/executor"
	"github.com/nomis52/gostack/pipeline"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

const localStack = `
hosts:
  - name: localhost
roles:
  - name: control
    hosts: [localhost]
components:
  - name: db
    role: control
    phases:
      install:
        - run: touch ${DIR}/db.installed
          creates: ${DIR}/db.installed
      start:
        - run: touch ${DIR}/db.running
          creates: ${DIR}/db.running
      stop:
        - run: rm -f ${DIR}/db.running
          removes: ${DIR}/db.running
      uninstall:
        - run: rm -f db.installed
          dir: ${DIR}
          removes: ${DIR}/db.installed
  - name: web
    role: control
    depends_on: [db]
    readiness:
      command: test -e ${DIR}/web.running
      timeout: 2s
      period: 10ms
    phases:
      install:
        - run: touch ${DIR}/web.installed
          creates: ${DIR}/web.installed
      start:
        - run: echo ok > ${DIR}/web.running
          skip_if: grep -q ok ${DIR}/web.running
      test:
        - run: cat ${DIR}/web.running
          success:
            contains: ok
      stop:
        - run: rm -f ${DIR}/web.running
      uninstall:
        - run: rm -f ${DIR}/web.installed
`

func loadLocal(t *testing.T) (*config.Config, string) {
	t.Helper()
	dir := t.TempDir()
	cfg, err := config.Parse(strings.NewReader(localStack), map[string]string{"DIR": dir})
	require.NoError(t, err)
	return cfg, dir
}

func exists(dir, name string) bool {
	_, err := os.Stat(filepath.Join(dir, name))
	return err == nil
}

func TestBuild_LocalBootstrapAndRemove(t *testing.T) {
	cfg, dir := loadLocal(t)
	s, err := Build(cfg, WithLogger(discard))
	require.NoError(t, err)
	defer s.Close()

	p, err := s.Pipeline()
	require.NoError(t, err)
	assert.Equal(t, []string{"db", "web"}, p.Order())

	run := p.Bootstrap(context.Background())
	require.NoError(t, run.Err())
	assert.Empty(t, run.Warnings)
	for _, f := range []string{"db.installed", "db.running", "web.installed", "web.running"} {
		assert.True(t, exists(dir, f), f)
	}

	again := p.Bootstrap(context.Background())
	require.NoError(t, again.Err())
	for _, st := range again.Steps {
		if st.Phase == component.Install {
			assert.Equal(t, action.StatusSkippedIdempotent, st.Status, st.Component)
		}
	}

	removed := p.Remove(context.Background())
	require.NoError(t, removed.Err())
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestBuild_RequiredEnvFromReferences(t *testing.T) {
	cfg, err := config.Parse(strings.NewReader(localStack), map[string]string{})
	require.NoError(t, err)
	s, err := Build(cfg, WithLogger(discard))
	require.NoError(t, err)

	p, err := s.Pipeline()
	require.NoError(t, err)
	run := p.Bootstrap(context.Background())
	require.Error(t, run.Err())
	assert.ErrorIs(t, run.Err(), action.ErrPreconditionMissing)
	assert.Empty(t, run.Steps)
}

type recorder struct {
	mu    sync.Mutex
	lines []string
	reply func(command string) (int, string)
}

func (r *recorder) Run(_ context.Context, host, command string) (int, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, host+": "+command)
	if r.reply != nil {
		code, out := r.reply(command)
		return code, out, nil
	}
	return 1, "", nil
}

func (r *recorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

const remoteStack = `
behavior:
  max_retries: 2
ssh:
  user: deploy
hosts:
  - name: db1
  - name: db2
roles:
  - name: db
    hosts: [db1, db2]
    primary: db2
components:
  - name: platform
    role: db
    best_effort: []
    phases:
      install:
        - name: postgres
          run: apt-get install -y postgresql
          sudo: true
          creates: /usr/lib/postgresql
          retries: 0
        - name: initdb
          run: createdb asap
          on: primary
          skip_if: psql -lqt | grep -qw asap
      test:
        - run: pg_isready
          success:
            exit_code: 0
            matches: accepting
`

func TestBuild_StepRendering(t *testing.T) {
	cfg, err := config.Parse(strings.NewReader(remoteStack), nil)
	require.NoError(t, err)

	// existence checks report absent, everything else succeeds
	rec := &recorder{reply: func(command string) (int, string) {
		if strings.Contains(command, "test -e") || strings.HasPrefix(command, "psql") {
			return 1, ""
		}
		return 0, ""
	}}
	s, err := Build(cfg, WithLogger(discard), WithTransport("db1", rec), WithTransport("db2", rec))
	require.NoError(t, err)
	require.Len(t, s.Components, 1)

	c := s.Components[0]
	assert.False(t, c.IsBestEffort(component.Test))
	install := c.StepsFor(component.Install)
	require.Len(t, install, 2)
	assert.Equal(t, 0, install[0].Retries)
	assert.Equal(t, 2, install[1].Retries)
	assert.Equal(t, action.PrimaryOnly, install[1].Action.Scope)
	assert.True(t, install[1].HasGuard())

	p, err := s.Pipeline(pipeline.WithRetryDelay(0))
	require.NoError(t, err)
	run, err := p.Execute(context.Background(), "install")
	require.NoError(t, err)
	require.NoError(t, run.Err())

	assert.Equal(t, []string{
		"db1: sudo -n sh -c 'test -e /usr/lib/postgresql'",
		"db1: sudo -n sh -c 'apt-get install -y postgresql'",
		"db2: sudo -n sh -c 'test -e /usr/lib/postgresql'",
		"db2: sudo -n sh -c 'apt-get install -y postgresql'",
		"db2: psql -lqt | grep -qw asap",
		"db2: createdb asap",
	}, rec.Lines())
}

func TestPredicate(t *testing.T) {
	assert.Nil(t, predicate(nil))
	assert.Nil(t, predicate(&config.SuccessConfig{}))

	two := 2
	assert.Equal(t, action.ExitCode(2), predicate(&config.SuccessConfig{ExitCode: &two}))

	p := predicate(&config.SuccessConfig{Contains: "ok", Matches: `^v\d+`})
	assert.True(t, p.Satisfied(0, "v12 ok"))
	assert.False(t, p.Satisfied(0, "v12"))
	assert.False(t, p.Satisfied(1, "v12 ok"))
}

func TestBuild_HTTPReadiness(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()
	u, err := url.Parse(ts.URL)
	require.NoError(t, err)

	cfg := &config.Config{
		Hosts: []config.HostConfig{{Name: "web1", Address: u.Hostname(), Transport: config.TransportLocal}},
		Roles: []config.RoleConfig{{Name: "web", Hosts: []string{"web1"}}},
		Components: []config.ComponentConfig{{
			Name: "frontend",
			Role: "web",
			Readiness: &config.ReadinessConfig{
				HTTP:   "http://{host}:" + u.Port() + "/health",
				Status: http.StatusNoContent,
			},
		}},
	}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())

	s, err := Build(cfg, WithLogger(discard))
	require.NoError(t, err)
	r := s.Components[0].Readiness
	require.NotNil(t, r)
	assert.Equal(t, "http://{host}:"+u.Port()+"/health", r.Description)
	assert.True(t, r.Probe("web1", s.Router).Ready(context.Background()))
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name    string
		cfg     func() *config.Config
		wantErr string
	}{
		{
			name: "install without existence check",
			cfg: func() *config.Config {
				return &config.Config{
					Hosts: []config.HostConfig{{Name: "localhost", Transport: config.TransportLocal}},
					Roles: []config.RoleConfig{{Name: "control", Hosts: []string{"localhost"}}},
					Components: []config.ComponentConfig{{
						Name:   "db",
						Role:   "control",
						Phases: map[string][]config.StepConfig{"install": {{Run: "make install"}}},
					}},
				}
			},
			wantErr: "has no existence check",
		},
		{
			name: "ssh host without credentials",
			cfg: func() *config.Config {
				return &config.Config{
					Hosts:      []config.HostConfig{{Name: "web1", Address: "web1", Port: 22, User: "deploy", Transport: config.TransportSSH}},
					Roles:      []config.RoleConfig{{Name: "web", Hosts: []string{"web1"}}},
					Components: []config.ComponentConfig{{Name: "frontend", Role: "web"}},
				}
			},
			wantErr: "host web1: no ssh key file or agent configured",
		},
		{
			name: "bad role mode",
			cfg: func() *config.Config {
				return &config.Config{
					Hosts:      []config.HostConfig{{Name: "localhost", Transport: config.TransportLocal}},
					Roles:      []config.RoleConfig{{Name: "control", Hosts: []string{"localhost"}, Mode: "random"}},
					Components: []config.ComponentConfig{{Name: "db", Role: "control"}},
				}
			},
			wantErr: "role control: unknown role mode",
		},
		{
			name: "readiness url without scheme",
			cfg: func() *config.Config {
				return &config.Config{
					Hosts: []config.HostConfig{{Name: "localhost", Transport: config.TransportLocal}},
					Roles: []config.RoleConfig{{Name: "control", Hosts: []string{"localhost"}}},
					Components: []config.ComponentConfig{{
						Name:      "db",
						Role:      "control",
						Readiness: &config.ReadinessConfig{HTTP: "{host}:5432", Timeout: 1, Period: 1},
					}},
				}
			},
			wantErr: "must include scheme",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.cfg(), WithLogger(discard))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestBuild_TransportOverride(t *testing.T) {
	cfg, err := config.Parse(strings.NewReader(remoteStack), nil)
	require.NoError(t, err)

	// without overrides the ssh hosts need credentials
	_, err = Build(cfg, WithLogger(discard))
	require.Error(t, err)

	s, err := Build(cfg, WithLogger(discard),
		WithTransport("db1", executor.TransportFunc(func(context.Context, string, string) (int, string, error) { return 0, "", nil })),
		WithTransport("db2", executor.TransportFunc(func(context.Context, string, string) (int, string, error) { return 0, "", nil })),
	)
	require.NoError(t, err)
	code, _, err := s.Router.Execute(context.Background(), "db2", action.Command{Run: "true"})
	require.NoError(t, err)
	assert.Equal(t, 0, code)
}

func TestBuild_ExampleConfig(t *testing.T) {
	cfg, err := config.Load(filepath.Join("..", "examples", "asap.yaml"), map[string]string{"HOME": "/home/asap"})
	require.NoError(t, err)
	st, err := Build(cfg, WithLogger(discard))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	p, err := st.Pipeline()
	require.NoError(t, err)
	order := p.Order()
	require.Len(t, order, 7)
	before := func(a, b string) {
		t.Helper()
		assert.Less(t, slices.Index(order, a), slices.Index(order, b), "%s before %s in %v", a, b, order)
	}
	before("npm", "grunt")
	before("grunt", "workflow")
	before("nginx", "workflow")
	before("asap_home", "ires")
	before("maven", "ires")

	steps, err := p.Plan("bootstrap_ires")
	require.NoError(t, err)
	var components []string
	for _, s := range steps {
		if !slices.Contains(components, s.Component) {
			components = append(components, s.Component)
		}
	}
	assert.ElementsMatch(t, []string{"asap_home", "maven", "ires"}, components)

	steps, err = p.Plan("remove_workflow")
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Contains(t, steps[1].Actions, `"rm -rf /home/asap/asap/workflow"`)
}
