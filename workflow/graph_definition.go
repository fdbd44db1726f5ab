package workflow

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"gopkg.in/yaml.v3"
)

// GraphDefinition is a serializable description of a compiled graph. Stage
// functions and routers are not part of it.
type GraphDefinition struct {
	// Name is the graph name
	Name string `json:"name" yaml:"name"`
	// Entry is the first stage of every run
	Entry string `json:"entry" yaml:"entry"`
	// MaxIterations is the per-run iteration ceiling
	MaxIterations int `json:"max_iterations" yaml:"max_iterations"`
	// Stages lists stages in registration order
	Stages []StageDefinition `json:"stages" yaml:"stages"`
}

// StageDefinition describes one stage and its outgoing transitions
type StageDefinition struct {
	Name     string              `json:"name" yaml:"name"`
	Next     []string            `json:"next,omitempty" yaml:"next,omitempty"`
	Parallel *ParallelDefinition `json:"parallel,omitempty" yaml:"parallel,omitempty"`
	// Routes maps router labels to targets (conditional stages only)
	Routes map[string]string `json:"routes,omitempty" yaml:"routes,omitempty"`
}

// ParallelDefinition describes a fan-out group
type ParallelDefinition struct {
	Members []string `json:"members" yaml:"members"`
	Join    string   `json:"join" yaml:"join"`
}

// Definition describes the graph.
func (g *Graph[S, P]) Definition() *GraphDefinition {
	def := &GraphDefinition{
		Name:          g.name,
		Entry:         g.entry,
		MaxIterations: g.maxIterations,
		Stages:        make([]StageDefinition, 0, len(g.order)),
	}
	for _, name := range g.order {
		sd := StageDefinition{Name: name, Next: slices.Clone(g.edges[name])}
		if p, ok := g.parallel[name]; ok {
			sd.Parallel = &ParallelDefinition{Members: slices.Clone(p.members), Join: p.join}
		}
		if c, ok := g.conditional[name]; ok {
			sd.Routes = maps.Clone(c.routes)
		}
		def.Stages = append(def.Stages, sd)
	}
	return def
}

// Stage returns the definition of a stage by name
func (d *GraphDefinition) Stage(name string) (StageDefinition, bool) {
	for _, s := range d.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return StageDefinition{}, false
}

// ToJSON converts a GraphDefinition to JSON string
func (d *GraphDefinition) ToJSON() (string, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal to JSON: %w", err)
	}
	return string(data), nil
}

// ToYAML converts a GraphDefinition to YAML string
func (d *GraphDefinition) ToYAML() (string, error) {
	data, err := yaml.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("failed to marshal to YAML: %w", err)
	}
	return string(data), nil
}

// ParseGraphDefinition reads a definition previously produced by ToJSON or
// ToYAML. YAML is a superset of JSON, so one decoder serves both.
func ParseGraphDefinition(data []byte) (*GraphDefinition, error) {
	var def GraphDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse graph definition: %w", err)
	}
	return &def, nil
}
