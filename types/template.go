package types

import "slices"

// Template is a registered capability profile from which replicas are
// spawned. Every replica inherits it verbatim.
type Template struct {
	ID         string   `yaml:"id" json:"id" cramberry:"1"`
	Name       string   `yaml:"name" json:"name,omitempty" cramberry:"2"`
	Role       string   `yaml:"role" json:"role" cramberry:"3"`
	Operations []string `yaml:"operations" json:"operations,omitempty" cramberry:"4"`
	Scope      string   `yaml:"scope" json:"scope,omitempty" cramberry:"5"`
}

// Clone returns a deep copy of t.
func (t Template) Clone() Template {
	t.Operations = slices.Clone(t.Operations)
	return t
}

// Allows reports whether op is one of the template's operations.
func (t Template) Allows(op string) bool {
	return slices.Contains(t.Operations, op)
}

// ReplicaHandle is one spawned execution unit. Its ID is derived from
// the parent template and a sequence number; its Profile is a copy of
// the parent template taken at spawn time.
type ReplicaHandle struct {
	ID       string   `json:"id" cramberry:"1"`
	ParentID string   `json:"parent_id" cramberry:"2"`
	Sequence uint32   `json:"sequence" cramberry:"3"`
	Profile  Template `json:"profile" cramberry:"4"`
}
