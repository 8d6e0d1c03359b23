// Package hostrole scopes component work to named groups of hosts.
//
// A Role lists its hosts in order and says whether work fans out to them
// in parallel or runs one host at a time. Parallel roles run every host and
// collect every result; sequential roles stop at the first failed host.
package hostrole

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/nomis52/gostack/action"
)

// Mode is the execution mode of a Role.
type Mode int

const (
	// Sequential runs hosts in list order and stops at the first failure.
	Sequential Mode = iota
	// Parallel runs all hosts concurrently and waits for all of them.
	Parallel
)

// String returns a human-readable representation of the Mode.
func (m Mode) String() string {
	if m == Parallel {
		return "parallel"
	}
	return "sequential"
}

// ParseMode converts a config value to a Mode. Empty means Sequential.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sequential":
		return Sequential, nil
	case "parallel":
		return Parallel, nil
	default:
		return Sequential, fmt.Errorf("unknown role mode %q (want sequential or parallel)", s)
	}
}

// Role is a named, ordered set of hosts.
type Role struct {
	Name  string
	Hosts []string
	Mode  Mode
	// Primary optionally names the host that runs once-only actions.
	// Empty means the first host.
	Primary string
	// MaxParallel bounds concurrent hosts in Parallel mode. Zero means unbounded.
	MaxParallel int
}

// Validate checks the role is usable.
func (r Role) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("role name is required")
	}
	if len(r.Hosts) == 0 {
		return fmt.Errorf("role %s: at least one host is required", r.Name)
	}
	seen := make(map[string]bool, len(r.Hosts))
	for _, h := range r.Hosts {
		if h == "" {
			return fmt.Errorf("role %s: empty host name", r.Name)
		}
		if seen[h] {
			return fmt.Errorf("role %s: duplicate host %s", r.Name, h)
		}
		seen[h] = true
	}
	if r.Primary != "" && !seen[r.Primary] {
		return fmt.Errorf("role %s: primary %s is not one of its hosts", r.Name, r.Primary)
	}
	if r.MaxParallel < 0 {
		return fmt.Errorf("role %s: max_parallel must not be negative", r.Name)
	}
	return nil
}

// PrimaryHost returns the designated primary, or the first host.
func (r Role) PrimaryHost() string {
	if r.Primary != "" {
		return r.Primary
	}
	if len(r.Hosts) == 0 {
		return ""
	}
	return r.Hosts[0]
}

// Targets returns the hosts an action with the given scope runs on.
func (r Role) Targets(scope action.Scope) []string {
	if scope == action.PrimaryOnly {
		if p := r.PrimaryHost(); p != "" {
			return []string{p}
		}
		return nil
	}
	return slices.Clone(r.Hosts)
}

// HostFunc runs work on one host.
type HostFunc func(ctx context.Context, host string) action.Result

// ForEachHost runs fn on each of hosts according to the role's mode.
// Results are returned in host order. In Sequential mode a failed host ends
// the loop, so hosts after it have no result. In Parallel mode every host
// has a result.
func (r Role) ForEachHost(ctx context.Context, hosts []string, fn HostFunc) []action.Result {
	if r.Mode == Parallel && len(hosts) > 1 {
		return r.parallel(ctx, hosts, fn)
	}

	results := make([]action.Result, 0, len(hosts))
	for _, h := range hosts {
		res := fn(ctx, h)
		results = append(results, res)
		if res.Status == action.StatusFailed {
			break
		}
	}
	return results
}

func (r Role) parallel(ctx context.Context, hosts []string, fn HostFunc) []action.Result {
	results := make([]action.Result, len(hosts))

	var g errgroup.Group
	if r.MaxParallel > 0 {
		g.SetLimit(r.MaxParallel)
	}
	for i, h := range hosts {
		g.Go(func() error {
			results[i] = fn(ctx, h)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Status folds per-host results into the role-level status.
func Status(results []action.Result) action.Status {
	statuses := make([]action.Status, len(results))
	for i, r := range results {
		statuses[i] = r.Status
	}
	return action.Combine(statuses...)
}

// Set is the immutable collection of declared roles.
type Set struct {
	roles map[string]Role
	names []string
}

// NewSet validates roles and indexes them by name.
func NewSet(roles ...Role) (*Set, error) {
	s := &Set{roles: make(map[string]Role, len(roles))}
	for _, r := range roles {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if _, dup := s.roles[r.Name]; dup {
			return nil, fmt.Errorf("duplicate role %s", r.Name)
		}
		s.roles[r.Name] = r
		s.names = append(s.names, r.Name)
	}
	return s, nil
}

// Get returns the named role.
func (s *Set) Get(name string) (Role, bool) {
	r, ok := s.roles[name]
	return r, ok
}

// Names returns role names in declaration order.
func (s *Set) Names() []string {
	return slices.Clone(s.names)
}
