package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kingrea/storyline/internal/execerr"
	"github.com/kingrea/storyline/internal/workflow/runner"
)

// Node is one named unit of work in a graph. A zero Policy (or zero fields
// within it) inherit the engine's default policy.
type Node struct {
	Name      string
	DependsOn []string
	Policy    runner.Policy
	Work      runner.Work
}

type vertex struct {
	node       Node
	dependents []string
}

// graph is the validated dependency structure of one Execute call.
type graph struct {
	vertices map[string]*vertex
	order    []string
}

func buildGraph(nodes []Node) (*graph, error) {
	if len(nodes) == 0 {
		return nil, execerr.Validation("nodes", "at least one node is required")
	}
	g := &graph{vertices: make(map[string]*vertex, len(nodes))}
	for i, node := range nodes {
		node.Name = strings.TrimSpace(node.Name)
		if node.Name == "" {
			return nil, execerr.Validation(fmt.Sprintf("nodes[%d].name", i), "name is required")
		}
		if _, dup := g.vertices[node.Name]; dup {
			return nil, execerr.Validation(fmt.Sprintf("nodes[%d].name", i), fmt.Sprintf("duplicate node %q", node.Name))
		}
		node.DependsOn = cloneStrings(node.DependsOn)
		g.vertices[node.Name] = &vertex{node: node}
		g.order = append(g.order, node.Name)
	}
	for _, name := range g.order {
		v := g.vertices[name]
		for _, dep := range v.node.DependsOn {
			if dep == name {
				return nil, execerr.Validation("depends_on", fmt.Sprintf("node %q depends on itself", name))
			}
			target, ok := g.vertices[dep]
			if !ok {
				return nil, execerr.Validation("depends_on", fmt.Sprintf("dependency %s referenced by %s not declared", dep, name))
			}
			target.dependents = append(target.dependents, name)
		}
	}
	for _, v := range g.vertices {
		if len(v.dependents) > 1 {
			sort.Strings(v.dependents)
		}
	}
	if _, err := g.waves(); err != nil {
		return nil, err
	}
	return g, nil
}

// waves groups nodes into dependency levels. Every node appears after all of
// its dependencies; within a wave declaration order is kept.
func (g *graph) waves() ([][]string, error) {
	remaining := make(map[string]int, len(g.order))
	for _, name := range g.order {
		remaining[name] = len(g.vertices[name].node.DependsOn)
	}
	var waves [][]string
	placed := 0
	for placed < len(g.order) {
		var wave []string
		for _, name := range g.order {
			if count, pending := remaining[name]; pending && count == 0 {
				wave = append(wave, name)
			}
		}
		if len(wave) == 0 {
			var cyclic []string
			for _, name := range g.order {
				if _, pending := remaining[name]; pending {
					cyclic = append(cyclic, name)
				}
			}
			return nil, execerr.Validation("depends_on", fmt.Sprintf("dependency cycle among %s", strings.Join(cyclic, ", ")))
		}
		for _, name := range wave {
			delete(remaining, name)
			for _, dependent := range g.vertices[name].dependents {
				remaining[dependent]--
			}
		}
		placed += len(wave)
		waves = append(waves, wave)
	}
	return waves, nil
}

func (g *graph) node(name string) Node {
	return g.vertices[name].node
}

func cloneStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}
