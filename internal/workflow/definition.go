package workflow

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kingrea/storyline/internal/workflow/engine"
	"github.com/kingrea/storyline/internal/workflow/runner"
)

// DependencyGraph maps step identifiers to the step IDs they depend on.
type DependencyGraph map[string][]string

// Clone returns a deep copy of the graph.
func (g DependencyGraph) Clone() DependencyGraph {
	if len(g) == 0 {
		return nil
	}
	out := make(DependencyGraph, len(g))
	for key, deps := range g {
		out[key] = cloneStringSlice(deps)
	}
	return out
}

// Definition declares a pipeline of command steps run against one work item.
type Definition struct {
	ID          string          `json:"id" yaml:"id"`
	Name        string          `json:"name,omitempty" yaml:"name,omitempty"`
	Description string          `json:"description,omitempty" yaml:"description,omitempty"`
	Steps       []Step          `json:"steps" yaml:"steps"`
	Graph       DependencyGraph `json:"graph,omitempty" yaml:"graph,omitempty"`
	Runtime     RuntimeConfig   `json:"runtime,omitempty" yaml:"runtime,omitempty"`
}

// Clone returns a deep copy of the definition.
func (def Definition) Clone() Definition {
	clone := Definition{
		ID:          def.ID,
		Name:        def.Name,
		Description: def.Description,
		Graph:       def.Graph.Clone(),
		Runtime:     def.Runtime,
	}
	if len(def.Steps) > 0 {
		clone.Steps = make([]Step, len(def.Steps))
		for i, step := range def.Steps {
			clone.Steps[i] = step.Clone()
		}
	}
	return clone
}

// Validate ensures the definition is self-consistent. Cycles are left to the
// engine, which rejects them before anything runs.
func (def Definition) Validate() error {
	if def.ID == "" {
		return fmt.Errorf("workflow: id is required")
	}
	if len(def.Steps) == 0 {
		return fmt.Errorf("workflow %s: at least one step is required", def.ID)
	}
	seen := map[string]struct{}{}
	for idx, step := range def.Steps {
		if err := step.Validate(); err != nil {
			return fmt.Errorf("workflow %s step[%d]: %w", def.ID, idx, err)
		}
		if _, exists := seen[step.ID]; exists {
			return fmt.Errorf("workflow %s: duplicate step id %s", def.ID, step.ID)
		}
		seen[step.ID] = struct{}{}
	}
	for key, deps := range def.Graph {
		if _, ok := seen[key]; !ok {
			return fmt.Errorf("workflow %s: graph references unknown step %s", def.ID, key)
		}
		for _, dep := range deps {
			if _, ok := seen[dep]; !ok {
				return fmt.Errorf("workflow %s: graph dependency %s -> %s references unknown step", def.ID, key, dep)
			}
		}
	}
	if err := def.Runtime.validate(); err != nil {
		return fmt.Errorf("workflow %s runtime: %w", def.ID, err)
	}
	return nil
}

// Normalized clones the definition, merges inline step dependencies into the
// graph, and validates the result.
func (def Definition) Normalized() (Definition, error) {
	clone := def.Clone()
	if clone.Graph == nil {
		clone.Graph = DependencyGraph{}
	}
	for i, step := range clone.Steps {
		clone.Steps[i].ID = strings.TrimSpace(step.ID)
		clone.Graph[clone.Steps[i].ID] = mergeDependencies(clone.Graph[clone.Steps[i].ID], step.DependsOn)
	}
	clone.Runtime = clone.Runtime.normalized()
	if err := clone.Validate(); err != nil {
		return Definition{}, err
	}
	return clone, nil
}

// StepIDs returns the step identifiers in declaration order.
func (def Definition) StepIDs() []string {
	ids := make([]string, 0, len(def.Steps))
	for _, step := range def.Steps {
		ids = append(ids, step.ID)
	}
	return ids
}

// Dependencies returns the dependency list for a step.
func (def Definition) Dependencies(id string) []string {
	if def.Graph == nil {
		return nil
	}
	return cloneStringSlice(def.Graph[id])
}

// Nodes converts the definition into engine nodes whose work is produced by
// build. Step overrides become the node policy; zero fields fall back to the
// engine default.
func (def Definition) Nodes(build func(Step) runner.Work) []engine.Node {
	nodes := make([]engine.Node, 0, len(def.Steps))
	for _, step := range def.Steps {
		nodes = append(nodes, engine.Node{
			Name:      step.ID,
			DependsOn: def.Dependencies(step.ID),
			Policy: runner.Policy{
				Timeout:     step.Timeout,
				MaxAttempts: step.MaxAttempts,
			},
			Work: build(step),
		})
	}
	return nodes
}

// RuntimeConfig configures execution constraints for a pipeline.
type RuntimeConfig struct {
	MaxParallel int `json:"max_parallel,omitempty" yaml:"max_parallel,omitempty"`
}

func (cfg RuntimeConfig) normalized() RuntimeConfig {
	if cfg.MaxParallel < 0 {
		cfg.MaxParallel = 0
	}
	return cfg
}

func (cfg RuntimeConfig) validate() error {
	if cfg.MaxParallel < 0 {
		return fmt.Errorf("max_parallel must be >= 0")
	}
	return nil
}

// Step is one command in a pipeline.
type Step struct {
	ID          string            `json:"id" yaml:"id"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Run         string            `json:"run" yaml:"run"`
	Dir         string            `json:"dir,omitempty" yaml:"dir,omitempty"`
	Env         map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	DependsOn   []string          `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	Timeout     time.Duration     `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	MaxAttempts int               `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty"`
}

// Clone returns a deep copy of the step.
func (step Step) Clone() Step {
	clone := step
	clone.DependsOn = cloneStringSlice(step.DependsOn)
	clone.Env = cloneStringMap(step.Env)
	return clone
}

// Validate ensures the step is usable.
func (step Step) Validate() error {
	if strings.TrimSpace(step.ID) == "" {
		return fmt.Errorf("workflow: step id is required")
	}
	if strings.TrimSpace(step.Run) == "" {
		return fmt.Errorf("workflow: step %s has no run command", step.ID)
	}
	if step.Timeout < 0 {
		return fmt.Errorf("workflow: step %s timeout must be >= 0", step.ID)
	}
	if step.MaxAttempts < 0 {
		return fmt.Errorf("workflow: step %s max_attempts must be >= 0", step.ID)
	}
	deps := append([]string{}, step.DependsOn...)
	sort.Strings(deps)
	for i := 1; i < len(deps); i++ {
		if deps[i] == deps[i-1] {
			return fmt.Errorf("workflow: step %s has duplicate dependency on %s", step.ID, deps[i])
		}
	}
	return nil
}

func mergeDependencies(existing, adds []string) []string {
	set := map[string]struct{}{}
	for _, id := range existing {
		if id != "" {
			set[id] = struct{}{}
		}
	}
	for _, id := range adds {
		if id != "" {
			set[id] = struct{}{}
		}
	}
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func cloneStringSlice(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	clone := make([]string, len(values))
	copy(clone, values)
	return clone
}

func cloneStringMap(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	clone := make(map[string]string, len(values))
	for key, value := range values {
		clone[key] = value
	}
	return clone
}
