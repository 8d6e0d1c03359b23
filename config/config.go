// Package config loads the YAML description of a stack: its hosts, roles and
// components, plus the settings for logging, metrics, retries and serve mode.
//
// Values of the form ${NAME} in commands, paths and probe URLs are replaced
// from the environment captured at load time. Every referenced name becomes a
// required environment input of the component that uses it, so a missing
// variable stops the component before any of its actions run. Plain $NAME is
// left alone for the remote shell.
package config

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"
	"gopkg.in/yaml.v3"

	"github.com/nomis52/gostack/component"
	"github.com/nomis52/gostack/logging"
)

const (
	// Default behavior settings
	defaultRetryDelay = 5 * time.Second

	// Default readiness settings
	defaultReadinessTimeout = 2 * time.Minute
	defaultReadinessPeriod  = 2 * time.Second

	// Default monitoring settings
	defaultMetricsPrefix = "gostack"
	defaultJobName       = "gostack"

	// Default ssh settings
	defaultSSHPort    = 22
	defaultSSHTimeout = 10 * time.Second
	defaultSudo       = "sudo -n"

	// Default logging settings
	defaultLogLevel  = "info"
	defaultLogFormat = "text"
	defaultLogOutput = "stderr"

	// Default server settings
	defaultListen      = ":8080"
	defaultHistorySize = 50

	TransportLocal = "local"
	TransportSSH   = "ssh"
)

// Config represents the complete stack description.
type Config struct {
	Logging    logging.Config    `yaml:"logging"`
	Monitoring MonitoringConfig  `yaml:"monitoring"`
	Behavior   BehaviorConfig    `yaml:"behavior"`
	Readiness  ReadinessDefaults `yaml:"readiness"`
	SSH        SSHConfig         `yaml:"ssh"`
	Hosts      []HostConfig      `yaml:"hosts"`
	Roles      []RoleConfig      `yaml:"roles"`
	Components []ComponentConfig `yaml:"components"`
	Server     ServerConfig      `yaml:"server"`

	// Env is the environment snapshot used for ${NAME} expansion and for
	// required environment checks.
	Env map[string]string `yaml:"-"`
}

// MonitoringConfig holds metrics settings.
type MonitoringConfig struct {
	// RemoteWriteURL enables pushing metrics to a Prometheus remote write endpoint.
	RemoteWriteURL string `yaml:"remote_write_url"`
	MetricsPrefix  string `yaml:"metrics_prefix"`
	JobName        string `yaml:"job_name"`
	Instance       string `yaml:"instance"`
	// Textfile writes metrics in the node_exporter textfile format after each run.
	Textfile string `yaml:"textfile"`
}

// BehaviorConfig defines how steps are retried and confirmed.
type BehaviorConfig struct {
	// MaxRetries is the default retry budget of every step.
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
	// AutoApprove answers yes to every confirmation.
	AutoApprove bool `yaml:"auto_approve"`
}

// ReadinessDefaults apply to components that don't set their own.
type ReadinessDefaults struct {
	Timeout time.Duration `yaml:"timeout"`
	Period  time.Duration `yaml:"period"`
}

// SSHConfig holds the connection defaults for ssh hosts.
type SSHConfig struct {
	User                  string        `yaml:"user"`
	Port                  int           `yaml:"port"`
	KeyFile               string        `yaml:"key_file"`
	KnownHosts            string        `yaml:"known_hosts"`
	InsecureIgnoreHostKey bool          `yaml:"insecure_ignore_host_key"`
	Timeout               time.Duration `yaml:"timeout"`
	// Sudo prefixes elevated commands.
	Sudo string `yaml:"sudo"`
}

// HostConfig declares one host. Ssh settings left empty fall back to SSHConfig.
type HostConfig struct {
	Name string `yaml:"name"`
	// Address defaults to Name.
	Address   string `yaml:"address"`
	Transport string `yaml:"transport"` // local or ssh
	User      string `yaml:"user"`
	Port      int    `yaml:"port"`
	KeyFile   string `yaml:"key_file"`
}

// RoleConfig groups hosts.
type RoleConfig struct {
	Name        string   `yaml:"name"`
	Hosts       []string `yaml:"hosts"`
	Mode        string   `yaml:"mode"` // sequential or parallel
	Primary     string   `yaml:"primary"`
	MaxParallel int      `yaml:"max_parallel"`
}

// ComponentConfig declares one component.
type ComponentConfig struct {
	Name          string   `yaml:"name"`
	Role          string   `yaml:"role"`
	DependsOn     []string `yaml:"depends_on"`
	RequiredEnv   []string `yaml:"required_env"`
	RequiredTools []string `yaml:"required_tools"`
	// BestEffort lists phases whose failures are only warnings. Unset means
	// [test]; an explicit empty list turns that off.
	BestEffort *[]string               `yaml:"best_effort"`
	Readiness  *ReadinessConfig        `yaml:"readiness"`
	Phases     map[string][]StepConfig `yaml:"phases"`
}

// ReadinessConfig describes the check run after start. Exactly one of HTTP
// and Command is set.
type ReadinessConfig struct {
	// HTTP is a URL; {host} is replaced by the address of each host.
	HTTP string `yaml:"http"`
	// Status is the expected HTTP status, 200 by default.
	Status int `yaml:"status"`
	// Command is run on each host until it exits 0.
	Command string        `yaml:"command"`
	Timeout time.Duration `yaml:"timeout"`
	Period  time.Duration `yaml:"period"`
}

// StepConfig declares one step of a phase.
type StepConfig struct {
	Name string `yaml:"name"`
	Run  string `yaml:"run"`
	Dir  string `yaml:"dir"`
	Sudo bool   `yaml:"sudo"`
	// On is all (default) or primary.
	On      string         `yaml:"on"`
	Success *SuccessConfig `yaml:"success"`

	// Existence checks. The step is skipped when the check succeeds.
	Creates string `yaml:"creates"`
	Removes string `yaml:"removes"`
	SkipIf  string `yaml:"skip_if"`

	// Confirm asks the question before the step runs on each host.
	Confirm string `yaml:"confirm"`
	// Retries overrides behavior.max_retries.
	Retries *int `yaml:"retries"`
}

// SuccessConfig overrides the default exit status 0 success rule.
// All configured conditions must hold.
type SuccessConfig struct {
	ExitCode *int   `yaml:"exit_code"`
	Contains string `yaml:"contains"`
	Matches  string `yaml:"matches"`
}

// ServerConfig configures serve mode.
type ServerConfig struct {
	Listen  string `yaml:"listen"`
	TLSCert string `yaml:"tls_cert"`
	TLSKey  string `yaml:"tls_key"`
	// StateDir keeps run history on disk. Empty keeps it in memory.
	StateDir    string        `yaml:"state_dir"`
	HistorySize int           `yaml:"history_size"`
	Cron        []CronTrigger `yaml:"cron"`
}

// CronTrigger runs operations on a schedule.
type CronTrigger struct {
	Operations []string `yaml:"operations"`
	Schedule   string   `yaml:"schedule"`
}

// Environ returns a snapshot of the process environment.
func Environ() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}

// Load reads the YAML config file at path and expands it against env.
func Load(path string, env map[string]string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()
	return Parse(f, env)
}

// Parse decodes a config from r, then defaults, expands and validates it.
func Parse(r io.Reader, env map[string]string) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.Env = env
	cfg.SetDefaults()
	cfg.expand()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills in optional fields.
func (c *Config) SetDefaults() {
	if c.Env == nil {
		c.Env = map[string]string{}
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	if c.Logging.Output == "" {
		c.Logging.Output = defaultLogOutput
	}
	if c.Monitoring.MetricsPrefix == "" {
		c.Monitoring.MetricsPrefix = defaultMetricsPrefix
	}
	if c.Monitoring.JobName == "" {
		c.Monitoring.JobName = defaultJobName
	}
	if c.Behavior.RetryDelay == 0 {
		c.Behavior.RetryDelay = defaultRetryDelay
	}
	if c.Readiness.Timeout == 0 {
		c.Readiness.Timeout = defaultReadinessTimeout
	}
	if c.Readiness.Period == 0 {
		c.Readiness.Period = defaultReadinessPeriod
	}
	if c.SSH.Port == 0 {
		c.SSH.Port = defaultSSHPort
	}
	if c.SSH.Timeout == 0 {
		c.SSH.Timeout = defaultSSHTimeout
	}
	if c.SSH.Sudo == "" {
		c.SSH.Sudo = defaultSudo
	}
	for i := range c.Hosts {
		h := &c.Hosts[i]
		if h.Address == "" {
			h.Address = h.Name
		}
		if h.Transport == "" {
			h.Transport = TransportSSH
			if h.Name == "localhost" {
				h.Transport = TransportLocal
			}
		}
		if h.User == "" {
			h.User = c.SSH.User
		}
		if h.Port == 0 {
			h.Port = c.SSH.Port
		}
		if h.KeyFile == "" {
			h.KeyFile = c.SSH.KeyFile
		}
	}
	for i := range c.Components {
		comp := &c.Components[i]
		if r := comp.Readiness; r != nil {
			if r.Timeout == 0 {
				r.Timeout = c.Readiness.Timeout
			}
			if r.Period == 0 {
				r.Period = c.Readiness.Period
			}
			if r.HTTP != "" && r.Status == 0 {
				r.Status = 200
			}
		}
	}
	if c.Server.Listen == "" {
		c.Server.Listen = defaultListen
	}
	if c.Server.HistorySize == 0 {
		c.Server.HistorySize = defaultHistorySize
	}
}

// Validate checks the config on its own. Dependency cycles are reported when
// the pipeline is built.
func (c *Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}
	if c.Behavior.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	if c.Readiness.Timeout < 0 || c.Readiness.Period < 0 {
		return fmt.Errorf("readiness timeout and period must be positive")
	}
	if (c.Server.TLSCert == "") != (c.Server.TLSKey == "") {
		return fmt.Errorf("server tls_cert and tls_key must be set together")
	}

	hosts := make(map[string]bool, len(c.Hosts))
	for _, h := range c.Hosts {
		if h.Name == "" {
			return fmt.Errorf("host name is required")
		}
		if hosts[h.Name] {
			return fmt.Errorf("duplicate host %s", h.Name)
		}
		hosts[h.Name] = true
		switch h.Transport {
		case TransportLocal:
		case TransportSSH:
			if h.User == "" {
				return fmt.Errorf("host %s: ssh user is required", h.Name)
			}
		default:
			return fmt.Errorf("host %s: unknown transport %q (want local or ssh)", h.Name, h.Transport)
		}
	}

	roles := make(map[string]bool, len(c.Roles))
	for _, r := range c.Roles {
		if r.Name == "" {
			return fmt.Errorf("role name is required")
		}
		if roles[r.Name] {
			return fmt.Errorf("duplicate role %s", r.Name)
		}
		roles[r.Name] = true
		for _, h := range r.Hosts {
			if !hosts[h] {
				return fmt.Errorf("role %s: unknown host %s", r.Name, h)
			}
		}
	}

	if len(c.Components) == 0 {
		return fmt.Errorf("at least one component is required")
	}
	names := make(map[string]bool, len(c.Components))
	for _, comp := range c.Components {
		if names[comp.Name] {
			return fmt.Errorf("duplicate component %s", comp.Name)
		}
		names[comp.Name] = true
	}
	for _, comp := range c.Components {
		if err := comp.validate(roles, names); err != nil {
			return err
		}
	}
	return nil
}

func (cc *ComponentConfig) validate(roles, names map[string]bool) error {
	if cc.Name == "" {
		return fmt.Errorf("component name is required")
	}
	if !roles[cc.Role] {
		return fmt.Errorf("component %s: unknown role %q", cc.Name, cc.Role)
	}
	for _, d := range cc.DependsOn {
		if !names[d] {
			return fmt.Errorf("component %s: unknown dependency %s", cc.Name, d)
		}
	}
	if cc.BestEffort != nil {
		for _, p := range *cc.BestEffort {
			if _, err := component.ParsePhase(p); err != nil {
				return fmt.Errorf("component %s: best_effort: %w", cc.Name, err)
			}
		}
	}
	for phase, steps := range cc.Phases {
		if _, err := component.ParsePhase(phase); err != nil {
			return fmt.Errorf("component %s: %w", cc.Name, err)
		}
		for i, s := range steps {
			if err := s.validate(); err != nil {
				return fmt.Errorf("component %s: %s step %d: %w", cc.Name, phase, i+1, err)
			}
		}
	}
	if r := cc.Readiness; r != nil {
		if (r.HTTP == "") == (r.Command == "") {
			return fmt.Errorf("component %s: readiness needs exactly one of http and command", cc.Name)
		}
		if r.Command != "" {
			if err := checkShellWords(r.Command); err != nil {
				return fmt.Errorf("component %s: readiness command: %w", cc.Name, err)
			}
		}
		if r.Timeout <= 0 || r.Period <= 0 {
			return fmt.Errorf("component %s: readiness timeout and period must be positive", cc.Name)
		}
	}
	return nil
}

func (s StepConfig) validate() error {
	if strings.TrimSpace(s.Run) == "" {
		return fmt.Errorf("run is required")
	}
	for _, line := range []string{s.Run, s.SkipIf} {
		if line == "" {
			continue
		}
		if err := checkShellWords(line); err != nil {
			return err
		}
	}
	switch s.On {
	case "", "all", "primary":
	default:
		return fmt.Errorf("unknown on %q (want all or primary)", s.On)
	}
	if s.Retries != nil && *s.Retries < 0 {
		return fmt.Errorf("retries must not be negative")
	}
	if s.Success != nil && s.Success.Matches != "" {
		if _, err := regexp.Compile(s.Success.Matches); err != nil {
			return fmt.Errorf("invalid success pattern: %w", err)
		}
	}
	return nil
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expand replaces ${NAME} references and records them as required inputs.
func (c *Config) expand() {
	c.SSH.KeyFile = c.expandString(c.SSH.KeyFile, nil)
	c.SSH.KnownHosts = c.expandString(c.SSH.KnownHosts, nil)
	for i := range c.Hosts {
		c.Hosts[i].KeyFile = c.expandString(c.Hosts[i].KeyFile, nil)
	}
	for i := range c.Components {
		comp := &c.Components[i]
		refs := comp.RequiredEnv
		for _, steps := range comp.Phases {
			for j := range steps {
				s := &steps[j]
				for _, field := range []*string{&s.Run, &s.Dir, &s.Creates, &s.Removes, &s.SkipIf, &s.Confirm} {
					*field = c.expandString(*field, &refs)
				}
			}
		}
		if r := comp.Readiness; r != nil {
			r.HTTP = c.expandString(r.HTTP, &refs)
			r.Command = c.expandString(r.Command, &refs)
		}
		comp.RequiredEnv = refs
	}
}

// expandString substitutes references present in the snapshot. Missing ones
// stay literal; they are caught by the required environment check.
func (c *Config) expandString(s string, refs *[]string) string {
	return envRef.ReplaceAllStringFunc(s, func(m string) string {
		name := envRef.FindStringSubmatch(m)[1]
		if refs != nil && !slices.Contains(*refs, name) {
			*refs = append(*refs, name)
		}
		if v, ok := c.Env[name]; ok {
			return v
		}
		return m
	})
}

// checkShellWords reports unbalanced quotes or escapes in a command line.
// Parsing stops at each shell operator, so the rest is checked piece by piece.
func checkShellWords(line string) error {
	rest := []rune(line)
	for len(rest) > 0 {
		p := shellwords.NewParser()
		if _, err := p.Parse(string(rest)); err != nil {
			return fmt.Errorf("malformed command %q: %w", line, err)
		}
		if p.Position < 0 || p.Position >= len(rest) {
			return nil
		}
		rest = rest[p.Position+1:]
	}
	return nil
}

// Host returns the host named name.
func (c *Config) Host(name string) (HostConfig, bool) {
	for _, h := range c.Hosts {
		if h.Name == name {
			return h, true
		}
	}
	return HostConfig{}, false
}
