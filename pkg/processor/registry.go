package processor

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/edoloughlin/nasc/pkg/engine"
	"github.com/edoloughlin/nasc/pkg/protocol"
)

// MountFunc creates an instance's initial state. It is the only operation
// permitted to create state ex nihilo, and is invoked at most once per
// instance lifetime. Params carry the event payload plus the injected
// "<lowercased-type>Id" key.
type MountFunc func(ctx context.Context, params map[string]any) (engine.State, error)

// EventFunc mutates state in response to one named event. It receives a
// clone of the current state and returns the full next state; the processor
// computes the diff.
type EventFunc func(ctx context.Context, payload map[string]any, current engine.State) (engine.State, error)

// Handler is one type's dispatch table. Event names map to typed functions
// so an unregistered event name fails at lookup, not via dynamic dispatch.
type Handler struct {
	Mount  MountFunc
	Events map[string]EventFunc
}

// ManifestEntry describes one registered handler for introspection.
type ManifestEntry struct {
	Events   []string `json:"events"`
	HasMount bool     `json:"hasMount"`
}

// Registry maps type names to their handlers. Each type maps to exactly one
// handler; handlers own no instance-specific memory.
type Registry struct {
	handlers map[string]*Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: map[string]*Handler{}}
}

// Register binds a type name to its handler. It fails fast on malformed
// registrations so event-name mistakes surface at startup rather than at
// call time.
func (r *Registry) Register(typ string, h *Handler) error {
	if typ == "" {
		return fmt.Errorf("register handler: empty type name")
	}
	if h == nil {
		return fmt.Errorf("register handler for %q: nil handler", typ)
	}
	if _, ok := r.handlers[typ]; ok {
		return fmt.Errorf("register handler for %q: already registered", typ)
	}
	for name, fn := range h.Events {
		if name == "" {
			return fmt.Errorf("register handler for %q: empty event name", typ)
		}
		if name == protocol.MountEvent {
			return fmt.Errorf("register handler for %q: %q is reserved", typ, protocol.MountEvent)
		}
		if strings.TrimSpace(name) != name {
			return fmt.Errorf("register handler for %q: event name %q has surrounding whitespace", typ, name)
		}
		if fn == nil {
			return fmt.Errorf("register handler for %q: nil function for event %q", typ, name)
		}
	}
	r.handlers[typ] = h
	return nil
}

// MustRegister is Register that panics on error, for static wiring.
func (r *Registry) MustRegister(typ string, h *Handler) {
	if err := r.Register(typ, h); err != nil {
		panic(err)
	}
}

// Handler returns the handler for a type, or nil when unregistered.
func (r *Registry) Handler(typ string) *Handler {
	return r.handlers[typ]
}

// Manifest returns every registered type with its sorted event names,
// mirroring the /nasc/manifest endpoint payload.
func (r *Registry) Manifest() map[string]ManifestEntry {
	out := make(map[string]ManifestEntry, len(r.handlers))
	for typ, h := range r.handlers {
		events := make([]string, 0, len(h.Events))
		for name := range h.Events {
			events = append(events, name)
		}
		sort.Strings(events)
		out[typ] = ManifestEntry{Events: events, HasMount: h.Mount != nil}
	}
	return out
}
