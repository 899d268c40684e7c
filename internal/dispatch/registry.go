package dispatch

import (
	"fmt"
	"sort"
)

// Registry holds every tool's spec, indexed by canonical name, plus the
// legacy-name alias table derived from each spec's Aliases.
type Registry struct {
	tools   map[string]ToolSpec
	aliases map[string]string // legacy name -> canonical name
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]ToolSpec),
		aliases: make(map[string]string),
	}
}

// Register adds spec to the registry. It is an error to register the same
// canonical name twice, or for an alias to collide with another tool's
// canonical name or alias.
func (r *Registry) Register(spec ToolSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("dispatch: tool spec has empty name")
	}
	if _, exists := r.tools[spec.Name]; exists {
		return fmt.Errorf("dispatch: tool %q already registered", spec.Name)
	}
	if _, exists := r.aliases[spec.Name]; exists {
		return fmt.Errorf("dispatch: name %q already registered as an alias", spec.Name)
	}
	for _, alias := range spec.Aliases {
		if alias == spec.Name {
			continue
		}
		if _, exists := r.tools[alias]; exists {
			return fmt.Errorf("dispatch: alias %q collides with a registered tool", alias)
		}
		if existing, exists := r.aliases[alias]; exists && existing != spec.Name {
			return fmt.Errorf("dispatch: alias %q already maps to %q", alias, existing)
		}
	}
	r.tools[spec.Name] = spec
	for _, alias := range spec.Aliases {
		r.aliases[alias] = spec.Name
	}
	return nil
}

// Specs returns every registered tool's spec, sorted by canonical name, for
// transports (e.g. MCP) that need to enumerate the full tool surface rather
// than resolve one name at a time.
func (r *Registry) Specs() []ToolSpec {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	specs := make([]ToolSpec, 0, len(names))
	for _, name := range names {
		specs = append(specs, r.tools[name])
	}
	return specs
}

// resolve maps name (canonical or legacy) to its ToolSpec. note is non-empty
// when name was a legacy alias, describing the redirect for the response.
func (r *Registry) resolve(name string) (spec ToolSpec, note string, ok bool) {
	if spec, ok := r.tools[name]; ok {
		return spec, "", true
	}
	if canonical, ok := r.aliases[name]; ok {
		spec := r.tools[canonical]
		return spec, fmt.Sprintf("tool %q has been renamed to %q", name, canonical), true
	}
	return ToolSpec{}, "", false
}
