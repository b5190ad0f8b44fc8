// Package schema holds the JSON-Schema-like documents pushed to clients and
// the providers that resolve them by type name.
package schema

import (
	"context"
	"sort"
	"strings"
)

// DefsPrefix is the only supported cross-type reference shape: an
// array's items may carry `$ref: "#/$defs/<Type>"`.
const DefsPrefix = "#/$defs/"

// Property describes one property of a schema document.
type Property struct {
	Type  string    `json:"type,omitempty"`
	Items *Property `json:"items,omitempty"`
	Ref   string    `json:"$ref,omitempty"`
}

// Schema is a JSON-Schema-like document describing one type's state shape.
type Schema struct {
	Type       string               `json:"type,omitempty"`
	Properties map[string]*Property `json:"properties,omitempty"`
}

// HasProperty reports whether the schema declares the named property.
func (s *Schema) HasProperty(name string) bool {
	if s == nil {
		return false
	}
	_, ok := s.Properties[name]
	return ok
}

// ChildTypeOf resolves the named property to its referenced array item type,
// or "" when the property is not an array of a named child type.
func (s *Schema) ChildTypeOf(prop string) string {
	if s == nil {
		return ""
	}
	p := s.Properties[prop]
	if p == nil || p.Type != "array" || p.Items == nil {
		return ""
	}
	return RefType(p.Items.Ref)
}

// RefType extracts the type name out of a "#/$defs/<Type>" reference, or ""
// for any other shape.
func RefType(ref string) string {
	if strings.HasPrefix(ref, DefsPrefix) {
		return ref[len(DefsPrefix):]
	}
	return ""
}

// ReferencedChildTypes returns every type referenced via `$ref` in an
// array.items position, deduplicated and sorted. It is used to push child
// schemas alongside a parent's so clients can validate nested keyed lists
// without a second round trip.
func ReferencedChildTypes(s *Schema) []string {
	if s == nil {
		return nil
	}
	seen := map[string]bool{}
	for _, p := range s.Properties {
		if p == nil || p.Type != "array" || p.Items == nil {
			continue
		}
		if t := RefType(p.Items.Ref); t != "" {
			seen[t] = true
		}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Provider resolves a type name to its schema document. An unknown type
// resolves to (nil, nil), never an error.
type Provider interface {
	Schema(ctx context.Context, typ string) (*Schema, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, typ string) (*Schema, error)

// Schema implements Provider.
func (f ProviderFunc) Schema(ctx context.Context, typ string) (*Schema, error) {
	return f(ctx, typ)
}

// StaticProvider is a Provider backed by a fixed type-to-schema mapping.
type StaticProvider map[string]*Schema

// Schema implements Provider. Missing types resolve to nil.
func (p StaticProvider) Schema(_ context.Context, typ string) (*Schema, error) {
	return p[typ], nil
}

// Types returns the known type names, sorted.
func (p StaticProvider) Types() []string {
	out := make([]string, 0, len(p))
	for t := range p {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
