// Package pool spawns replicas from registered templates.
//
// A Registry holds the capability profiles replicas may be spawned
// from. A Pool owns the per-template sequence counters and the live
// handle set; it is explicit state, never a process-wide singleton.
package pool

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/blockberries/resonance"
	"github.com/blockberries/resonance/types"
)

// Registry is a static set of replica templates. It is safe for
// concurrent use.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]types.Template
}

// NewRegistry creates a registry holding the given templates.
func NewRegistry(templates ...types.Template) (*Registry, error) {
	r := &Registry{templates: make(map[string]types.Template)}
	for _, t := range templates {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// registryFile is the YAML layout accepted by LoadRegistry.
type registryFile struct {
	Templates []types.Template `yaml:"templates"`
}

// LoadRegistry reads a YAML document of the form
//
//	templates:
//	  - id: auditor
//	    role: risk-auditor
//	    operations: [review]
//	    scope: payments
func LoadRegistry(r io.Reader) (*Registry, error) {
	var file registryFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("pool: decode registry: %w", err)
	}
	return NewRegistry(file.Templates...)
}

// Register adds a template. The ID must be non-empty and unique.
func (r *Registry) Register(t types.Template) error {
	if t.ID == "" {
		return errors.New("pool: template id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.templates[t.ID]; dup {
		return fmt.Errorf("pool: template %q already registered", t.ID)
	}
	r.templates[t.ID] = t.Clone()
	return nil
}

// Lookup returns a copy of the template registered under id.
func (r *Registry) Lookup(id string) (types.Template, error) {
	r.mu.RLock()
	t, ok := r.templates[id]
	r.mu.RUnlock()
	if !ok {
		return types.Template{}, fmt.Errorf("%w: %q", resonance.ErrUnknownTemplate, id)
	}
	return t.Clone(), nil
}

// IDs returns the registered template IDs in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.templates))
	for id := range r.templates {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
