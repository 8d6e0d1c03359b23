package pipeline

import (
	"fmt"
	"slices"
	"strings"

	"github.com/nomis52/gostack/component"
)

// graph is the dependency graph of the declared components.
type graph struct {
	// names in declaration order.
	names      []string
	deps       map[string][]string
	dependents map[string][]string
}

func newGraph(components []*component.Component) (*graph, error) {
	g := &graph{
		deps:       make(map[string][]string, len(components)),
		dependents: make(map[string][]string, len(components)),
	}
	for _, c := range components {
		if _, dup := g.deps[c.Name]; dup {
			return nil, fmt.Errorf("duplicate component %s", c.Name)
		}
		g.names = append(g.names, c.Name)
		g.deps[c.Name] = slices.Clone(c.DependsOn)
	}
	for _, c := range components {
		for _, d := range c.DependsOn {
			if _, ok := g.deps[d]; !ok {
				return nil, fmt.Errorf("component %s depends on unknown component %s", c.Name, d)
			}
			g.dependents[d] = append(g.dependents[d], c.Name)
		}
	}
	return g, nil
}

// order returns a topological order using Kahn's algorithm. Among components
// that are ready at the same time, the one declared first goes first.
func (g *graph) order() ([]string, error) {
	position := make(map[string]int, len(g.names))
	inDegree := make(map[string]int, len(g.names))
	for i, n := range g.names {
		position[n] = i
		inDegree[n] = len(g.deps[n])
	}

	var ready []string
	for _, n := range g.names {
		if inDegree[n] == 0 {
			ready = append(ready, n)
		}
	}

	order := make([]string, 0, len(g.names))
	for len(ready) > 0 {
		slices.SortFunc(ready, func(a, b string) int { return position[a] - position[b] })
		current := ready[0]
		ready = ready[1:]
		order = append(order, current)

		for _, dependent := range g.dependents[current] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}

	if len(order) != len(g.names) {
		var cyclic []string
		for _, n := range g.names {
			if inDegree[n] > 0 {
				cyclic = append(cyclic, n)
			}
		}
		return nil, fmt.Errorf("circular dependency among components: %s", strings.Join(cyclic, ", "))
	}
	return order, nil
}

// closure returns name plus everything reachable through next, in no particular order.
func closure(name string, next map[string][]string) map[string]bool {
	seen := map[string]bool{name: true}
	stack := []string{name}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, m := range next[n] {
			if !seen[m] {
				seen[m] = true
				stack = append(stack, m)
			}
		}
	}
	return seen
}

// withDependencies returns name and its transitive dependencies.
func (g *graph) withDependencies(name string) map[string]bool {
	return closure(name, g.deps)
}

// withDependents returns name and its transitive dependents.
func (g *graph) withDependents(name string) map[string]bool {
	return closure(name, g.dependents)
}
