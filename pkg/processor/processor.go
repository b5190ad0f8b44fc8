// Package processor drives the per-instance event state machine: it loads
// state through the Store, dispatches to the registered handler, diffs the
// result and emits the ordered patch list.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/edoloughlin/nasc/pkg/engine"
	"github.com/edoloughlin/nasc/pkg/metrics"
	"github.com/edoloughlin/nasc/pkg/protocol"
	"github.com/edoloughlin/nasc/pkg/schema"
)

// Store is the persistence capability the processor delegates to. Load
// returns (nil, nil) for an instance that was never persisted. Persist
// replaces the stored full state; the diff is passed alongside for stores
// that persist incrementally.
//
// The processor performs no mutual exclusion per (type,id): two concurrent
// messages for one instance may interleave between Load and Persist and
// lose an update. A Store may serialize writes per instance key to close
// that gap.
type Store interface {
	Load(ctx context.Context, typ, id string) (engine.State, error)
	Persist(ctx context.Context, typ, id string, diff, full engine.State) error
}

// Option configures a Processor.
type Option func(*Processor)

// WithSchemas sets the schema provider used to push schema patches on mount.
func WithSchemas(p schema.Provider) Option {
	return func(pr *Processor) {
		pr.schemas = p
	}
}

// WithLogger sets the processor's logger.
func WithLogger(l *slog.Logger) Option {
	return func(pr *Processor) {
		pr.logger = l
	}
}

// WithMetrics sets the instrumentation sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(pr *Processor) {
		pr.metrics = m
	}
}

// Processor turns inbound event messages into patch lists. It is shared by
// both transports; transport choice never affects computed diffs or patch
// content.
type Processor struct {
	registry *Registry
	store    Store
	schemas  schema.Provider
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

// New creates a Processor over the given registry and store.
func New(registry *Registry, store Store, opts ...Option) *Processor {
	p := &Processor{
		registry: registry,
		store:    store,
		logger:   slog.Default().With("component", "processor"),
		tracer:   otel.Tracer("github.com/edoloughlin/nasc/pkg/processor"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Registry returns the handler registry, for manifest introspection.
func (p *Processor) Registry() *Registry {
	return p.registry
}

// Process handles one inbound message to completion and returns the ordered
// patch list. It never returns an error: protocol failures, handler errors
// and store errors all convert to a single error patch so the channel stays
// alive. Exactly one Store load and at most one Store persist happen per
// message.
func (p *Processor) Process(ctx context.Context, ev *protocol.Event) []protocol.Patch {
	start := time.Now()
	typ, id := ev.InstanceParts()

	ctx, span := p.tracer.Start(ctx, "nasc.process",
		trace.WithAttributes(
			attribute.String("nasc.event", ev.Event),
			attribute.String("nasc.type", typ),
			attribute.String("nasc.id", id),
		))
	defer span.End()

	patches := p.process(ctx, ev, typ, id)

	if p.metrics != nil {
		p.metrics.EventsTotal.WithLabelValues(typ, ev.Event).Inc()
		p.metrics.EventDuration.Observe(time.Since(start).Seconds())
		for _, patch := range patches {
			p.metrics.PatchesTotal.WithLabelValues(string(patch.Action)).Inc()
			if patch.Action == protocol.ActionError {
				p.metrics.ErrorPatchesTotal.Inc()
			}
		}
	}
	return patches
}

func (p *Processor) process(ctx context.Context, ev *protocol.Event, typ, id string) (patches []protocol.Patch) {
	// Handler panics must not crash the channel; they become one error
	// patch like any other processing failure.
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("handler panic", "type", typ, "event", ev.Event, "panic", r)
			patches = []protocol.Patch{protocol.NewErrorPatch(fmt.Sprintf("internal error processing '%s' for %s", ev.Event, ev.Instance))}
		}
	}()

	handler := p.registry.Handler(typ)
	if handler == nil {
		return p.errorPatch(ev, fmt.Sprintf("Unknown handler for type '%s'", typ))
	}

	current, err := p.store.Load(ctx, typ, id)
	if err != nil {
		p.logger.Error("store load failed", "type", typ, "id", id, "error", err)
		return p.errorPatch(ev, fmt.Sprintf("load %s: %v", ev.Instance, err))
	}

	if ev.Event == protocol.MountEvent {
		return p.processMount(ctx, ev, handler, typ, id, current)
	}

	if current == nil {
		return p.errorPatch(ev, fmt.Sprintf("Instance %s not mounted.", ev.Instance))
	}

	fn, ok := handler.Events[ev.Event]
	if !ok {
		return p.errorPatch(ev, fmt.Sprintf("Unknown event '%s' for %s", ev.Event, typ))
	}

	next, err := fn(ctx, ev.Payload, engine.Clone(current))
	if err != nil {
		p.logger.Error("event handler failed", "type", typ, "event", ev.Event, "error", err)
		return p.errorPatch(ev, err.Error())
	}

	diff := engine.Diff(current, next)
	p.logger.Debug("event applied",
		"type", typ, "id", id, "event", ev.Event, "changed", len(diff))

	if err := p.store.Persist(ctx, typ, id, diff, next); err != nil {
		// Stored state stays at its last successfully-persisted value.
		p.logger.Error("store persist failed", "type", typ, "id", id, "error", err)
		return p.errorPatch(ev, fmt.Sprintf("persist %s: %v", ev.Instance, err))
	}

	// An empty diff is a valid result: no observable change.
	return bindUpdates(ev.Instance, diff)
}

// processMount handles the mount state machine. A fresh instance invokes
// the mount function and persists; an already-mounted instance re-hydrates
// from stored state without invoking mount again, so reloads and transport
// switches never lose state.
func (p *Processor) processMount(ctx context.Context, ev *protocol.Event, handler *Handler, typ, id string, current engine.State) []protocol.Patch {
	if current == nil {
		if handler.Mount == nil {
			return p.errorPatch(ev, fmt.Sprintf("Type '%s' has no mount handler", typ))
		}
		params := map[string]any{}
		for k, v := range ev.Payload {
			params[k] = v
		}
		params[strings.ToLower(typ)+"Id"] = id

		state, err := handler.Mount(ctx, params)
		if err != nil {
			p.logger.Error("mount failed", "type", typ, "id", id, "error", err)
			return p.errorPatch(ev, err.Error())
		}
		current = engine.Clone(state)
		if err := p.store.Persist(ctx, typ, id, current, current); err != nil {
			p.logger.Error("store persist failed", "type", typ, "id", id, "error", err)
			return p.errorPatch(ev, fmt.Sprintf("persist %s: %v", ev.Instance, err))
		}
		p.logger.Info("instance mounted", "type", typ, "id", id, "props", len(current))
	} else {
		p.logger.Debug("instance re-hydrated", "type", typ, "id", id)
	}

	// Schema patches precede bind updates: the consumer needs the schema
	// to validate the values.
	patches := p.schemaPatches(ctx, ev.Instance, typ)
	return append(patches, bindUpdates(ev.Instance, current)...)
}

// schemaPatches resolves the type's schema plus every referenced child
// type's schema. Provider failures skip the schema push rather than failing
// the mount.
func (p *Processor) schemaPatches(ctx context.Context, instance, typ string) []protocol.Patch {
	if p.schemas == nil {
		return nil
	}
	root, err := p.schemas.Schema(ctx, typ)
	if err != nil {
		p.logger.Warn("schema provider failed", "type", typ, "error", err)
		return nil
	}
	if root == nil {
		return nil
	}
	patches := []protocol.Patch{protocol.NewSchemaPatch(instance, typ, root)}
	for _, child := range schema.ReferencedChildTypes(root) {
		cs, err := p.schemas.Schema(ctx, child)
		if err != nil {
			p.logger.Warn("schema provider failed", "type", child, "error", err)
			continue
		}
		if cs != nil {
			patches = append(patches, protocol.NewSchemaPatch(instance, child, cs))
		}
	}
	return patches
}

func (p *Processor) errorPatch(ev *protocol.Event, message string) []protocol.Patch {
	p.logger.Warn("message rejected", "event", ev.Event, "instance", ev.Instance, "message", message)
	return []protocol.Patch{protocol.NewErrorPatch(message)}
}

// bindUpdates emits one bindUpdate per key, sorted for deterministic wire
// output.
func bindUpdates(instance string, props engine.State) []protocol.Patch {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	patches := make([]protocol.Patch, 0, len(keys))
	for _, k := range keys {
		patches = append(patches, protocol.NewBindUpdatePatch(instance, k, props[k]))
	}
	return patches
}
