// Package server provides the long-running gostack service.
//
// The server exposes a REST API to start operations, watch the live status
// of each component and browse the history of past runs. Operations can also
// be started on cron schedules.
//
// # Endpoints
//
//   - GET /health - Simple health check, returns "ok"
//   - GET /api/status - Current run, live component statuses, next scheduled run
//   - GET /api/status/{component} - Live status line of one component
//   - GET /api/operations - Operations the current config accepts
//   - GET /api/plan/{operation} - Steps an operation would run
//   - POST /api/run - Starts a run of {"operations": [...]}
//   - GET /api/history - Summaries of completed runs
//   - GET /api/history/{id} - One run with its steps and captured logs
//   - POST /api/history/reload - Re-reads run history from the state directory
//   - GET /api/config - Current configuration as YAML, secrets redacted
//   - POST /api/reload - Reloads configuration from disk
//   - GET /metrics - Prometheus metrics
//
// # Architecture
//
// The config and the stack built from it are swapped atomically on reload.
// Each run builds a fresh pipeline from the current stack, so configuration
// changes take effect on the next run without interrupting one in progress.
// Cron schedules are fixed when the server starts.
//
// # Example
//
//	srv, err := server.New("/etc/gostack/stack.yaml", server.WithCron("test:*/30 * * * *"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/nomis52/gostack/config"
	"github.com/nomis52/gostack/metrics"
	"github.com/nomis52/gostack/pipeline"
	"github.com/nomis52/gostack/prompt"
	"github.com/nomis52/gostack/server/cron"
	"github.com/nomis52/gostack/server/handlers"
	"github.com/nomis52/gostack/server/runner"
	"github.com/nomis52/gostack/stack"
)

const (
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultShutdownTimeout = 5 * time.Second
)

// serverDeps holds config-derived dependencies that are swapped atomically on reload.
type serverDeps struct {
	config *config.Config
	stack  *stack.Stack
}

// Server is the HTTP server for gostack.
type Server struct {
	addr       string
	configPath string
	env        map[string]string
	logger     *slog.Logger
	stackOpts  []stack.Option
	cronSpec   string

	deps       atomic.Pointer[serverDeps]
	registry   *metrics.LocalRegistry
	store      runner.StateStore
	runner     *runner.Runner
	cron       *cron.Manager
	cancelRuns context.CancelFunc
	httpServer *http.Server
}

// Option configures a Server.
type Option func(*Server) error

// WithCron adds triggers in the command line form, for example
// "bootstrap:0 2 * * *;test:*/30 * * * *". They run alongside the
// server.cron entries of the config.
func WithCron(spec string) Option {
	return func(s *Server) error {
		s.cronSpec = spec
		return nil
	}
}

// WithListenAddr overrides server.listen from the config.
func WithListenAddr(addr string) Option {
	return func(s *Server) error {
		s.addr = addr
		return nil
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		s.logger = logger
		return nil
	}
}

// WithEnv sets the environment used for ${NAME} expansion. The default is
// the process environment.
func WithEnv(env map[string]string) Option {
	return func(s *Server) error {
		s.env = env
		return nil
	}
}

// WithStackOptions passes options to every stack the server builds.
func WithStackOptions(opts ...stack.Option) Option {
	return func(s *Server) error {
		s.stackOpts = append(s.stackOpts, opts...)
		return nil
	}
}

// New creates a Server. It loads the configuration and initializes the
// run history store, metrics registry and cron triggers.
func New(configPath string, opts ...Option) (*Server, error) {
	s := &Server{
		configPath: configPath,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.env == nil {
		s.env = config.Environ()
	}

	if err := s.Reload(); err != nil {
		return nil, err
	}
	cfg := s.Config()
	if s.addr == "" {
		s.addr = cfg.Server.Listen
	}

	reg, err := metrics.NewLocalRegistry(metrics.WithProcessCollectors(), metrics.WithPrefix(cfg.Monitoring.MetricsPrefix))
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics registry: %w", err)
	}
	s.registry = reg

	if cfg.Server.StateDir != "" {
		store, err := runner.NewDiskStore(cfg.Server.StateDir, cfg.Server.HistorySize, s.logger)
		if err != nil {
			return nil, err
		}
		s.store = store
	} else {
		s.store = runner.NewMemoryStore(cfg.Server.HistorySize)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancelRuns = cancel
	s.runner = runner.New(s.logger, s.pipeline, runner.WithStateStore(s.store), runner.WithContext(ctx))

	if err := s.setupCron(cfg); err != nil {
		cancel()
		return nil, err
	}
	return s, nil
}

func (s *Server) setupCron(cfg *config.Config) error {
	ops, err := s.runner.Operations()
	if err != nil {
		return err
	}
	specs := make([]cron.TriggerSpec, 0, len(cfg.Server.Cron))
	for _, ct := range cfg.Server.Cron {
		specs = append(specs, cron.TriggerSpec{Operations: ct.Operations, Schedule: ct.Schedule})
	}
	if s.cronSpec != "" {
		parsed, err := cron.ParseTriggerSpecs(s.cronSpec, ops)
		if err != nil {
			return fmt.Errorf("invalid cron spec: %w", err)
		}
		specs = append(specs, parsed...)
	}
	if len(specs) == 0 {
		return nil
	}
	m, err := cron.NewManager(specs, s.runner, ops, s.logger)
	if err != nil {
		return err
	}
	s.cron = m
	return nil
}

// Logger returns the server's logger.
func (s *Server) Logger() *slog.Logger {
	return s.logger
}

// Reload reads the config from disk and rebuilds the stack. Ssh connections
// of the previous stack are closed once the runner is idle.
func (s *Server) Reload() error {
	cfg, err := config.Load(s.configPath, s.env)
	if err != nil {
		return err
	}
	st, err := stack.Build(cfg, append([]stack.Option{stack.WithLogger(s.logger)}, s.stackOpts...)...)
	if err != nil {
		return fmt.Errorf("failed to build stack: %w", err)
	}

	old := s.deps.Swap(&serverDeps{config: cfg, stack: st})
	if old != nil {
		go func() {
			s.runner.Wait()
			if err := old.stack.Close(); err != nil {
				s.logger.Warn("failed to close previous stack", "error", err)
			}
		}()
	}

	s.logger.Info("configuration loaded", "config_path", s.configPath, "components", len(cfg.Components))
	return nil
}

// Config returns the current configuration.
func (s *Server) Config() *config.Config {
	return s.deps.Load().config
}

// pipeline builds a pipeline over the current stack. Confirmations are
// approved when behavior.auto_approve is set and fail otherwise, since
// nobody is there to answer them.
func (s *Server) pipeline(opts ...pipeline.Option) (*pipeline.Pipeline, error) {
	deps := s.deps.Load()
	base := []pipeline.Option{pipeline.WithMetrics(s.registry)}
	if deps.config.Behavior.AutoApprove {
		base = append(base, pipeline.WithPrompter(prompt.Approve{}))
	}
	return deps.stack.Pipeline(append(base, opts...)...)
}

// Plan returns the steps op would run with the current config.
func (s *Server) Plan(op string) ([]pipeline.PlannedStep, error) {
	p, err := s.pipeline()
	if err != nil {
		return nil, err
	}
	return p.Plan(op)
}

// Operations lists the operations the current config accepts.
func (s *Server) Operations() ([]string, error) {
	return s.runner.Operations()
}

// NextRun returns the next scheduled run time, or nil if no cron is configured.
func (s *Server) NextRun() *time.Time {
	if s.cron == nil {
		return nil
	}
	next := s.cron.NextRun()
	if next.IsZero() {
		return nil
	}
	return &next
}

// Status returns the current run status by delegating to the runner.
func (s *Server) Status() runner.RunStatus {
	return s.runner.Status()
}

// Runner returns the server's runner.
func (s *Server) Runner() *runner.Runner {
	return s.runner
}

// Handler returns the HTTP routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	return mux
}

// Run starts the HTTP server and blocks until the context is cancelled.
// It performs a graceful shutdown when the context is done: the HTTP server
// stops, then a run in progress is cancelled before its next step and
// waited for.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
	}

	cfg := s.Config()
	if cfg.Server.TLSCert != "" {
		loader, err := NewCertLoader(cfg.Server.TLSCert, cfg.Server.TLSKey, s.logger)
		if err != nil {
			return err
		}
		s.httpServer.TLSConfig = loader.TLSConfig()
	}

	if s.cron != nil {
		s.logger.Info("starting cron triggers", "next_run", s.cron.NextRun())
		s.cron.Start(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server",
			"addr", s.addr,
			"config_path", s.configPath,
			"tls", s.httpServer.TLSConfig != nil,
		)
		var err error
		if s.httpServer.TLSConfig != nil {
			err = s.httpServer.ListenAndServeTLS("", "")
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		s.shutdownRuns()
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		err := s.httpServer.Shutdown(shutdownCtx)
		s.shutdownRuns()
		return err
	}
}

func (s *Server) shutdownRuns() {
	s.cancelRuns()
	s.runner.Wait()
	if err := s.deps.Load().stack.Close(); err != nil {
		s.logger.Warn("failed to close stack", "error", err)
	}
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", handlers.HandleHealth)
	mux.Handle("GET /api/status", handlers.NewAPIStatusHandler(s))
	mux.Handle("GET /api/status/{component}", handlers.NewComponentStatusHandler(s))
	mux.Handle("GET /api/operations", handlers.NewOperationsHandler(s.logger, s))
	mux.Handle("GET /api/plan/{operation}", handlers.NewPlanHandler(s))
	mux.Handle("POST /api/run", handlers.NewRunHandler(s.runner))
	mux.Handle("GET /api/history", handlers.NewHistoryHandler(s.runner))
	mux.Handle("GET /api/history/{id}", handlers.NewRunRecordHandler(s.runner))
	mux.Handle("GET /api/config", handlers.NewConfigHandler(s))
	mux.Handle("POST /api/reload", handlers.NewReloadHandler(s.logger, "configuration", s))
	if store, ok := s.store.(handlers.Reloader); ok {
		mux.Handle("POST /api/history/reload", handlers.NewReloadHandler(s.logger, "run history", store))
	}
	mux.Handle("GET /metrics", s.registry.Handler())
}
