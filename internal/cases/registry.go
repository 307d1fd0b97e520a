package cases

import (
	"fmt"
	"sort"
)

// Generator builds a case from its geometry.
type Generator func(g Geometry) (*Case, error)

type Registry struct {
	generators map[string]Generator
}

func NewRegistry() *Registry {
	r := &Registry{generators: make(map[string]Generator)}

	r.generators["dambreak"] = DamBreak
	r.generators["floating"] = FloatingBox
	r.generators["channel"] = PeriodicChannel
	r.generators["wavemaker"] = WaveMaker

	return r
}

// Register adds or replaces a generator.
func (r *Registry) Register(name string, g Generator) {
	r.generators[name] = g
}

func (r *Registry) Build(name string, g Geometry) (*Case, error) {
	fn, ok := r.generators[name]
	if !ok {
		return nil, fmt.Errorf("unknown case: %s", name)
	}
	return fn(g)
}

func (r *Registry) List() []string {
	names := make([]string, 0, len(r.generators))
	for name := range r.generators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
