package bind

import (
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/net/html"

	"github.com/edoloughlin/nasc/pkg/engine"
	"github.com/edoloughlin/nasc/pkg/protocol"
	"github.com/edoloughlin/nasc/pkg/schema"
)

// Sender delivers event envelopes to the server; the transport client
// satisfies it.
type Sender interface {
	Send(ev *protocol.Event) error
}

// Diagnostic is one user-visible validation finding, deduplicated by
// (Message, Path).
type Diagnostic struct {
	Message string
	Path    string
}

// Reporter receives validation diagnostics as they are first seen.
type Reporter interface {
	Report(d Diagnostic)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(d Diagnostic)

// Report implements Reporter.
func (f ReporterFunc) Report(d Diagnostic) {
	f(d)
}

// Config configures a binding session.
type Config struct {
	// MapScopeToType resolves a scope identifier without an explicit type
	// attribute or "Type:" prefix to its type name. Optional.
	MapScopeToType func(scope string) string

	// MapScopeToID resolves a scope identifier to the instance id when the
	// scope string itself is not "Type:id". Default: the scope string.
	MapScopeToID func(scope string) string

	// Reporter receives validation diagnostics. Default logs them.
	Reporter Reporter

	// Logger is the session's logger.
	Logger *slog.Logger
}

// Session is the per-connect binding context: scope containers, the
// binding index, cached instance state, pushed schemas and diagnostic
// bookkeeping all live here so independent sessions never leak into each
// other.
type Session struct {
	doc    *html.Node
	sender Sender
	cfg    Config
	logger *slog.Logger

	containers []*scopeContainer
	index      map[indexKey][]*boundElement

	state          map[string]engine.State
	schemas        map[string]*schema.Schema
	validatedTypes map[string]bool
	checkedValues  map[string]bool
	seenDiags      map[string]bool
	warnedOnce     map[string]bool
	diags          []Diagnostic
}

// NewSession builds a session over a parsed document and discovers its
// scope containers. Discovery happens exactly once; the binding index is
// refreshed only when reconciliation itself changes the tree.
func NewSession(doc *html.Node, sender Sender, cfg Config) *Session {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default().With("component", "bind")
	}
	if cfg.MapScopeToID == nil {
		cfg.MapScopeToID = func(scope string) string { return scope }
	}
	s := &Session{
		doc:            doc,
		sender:         sender,
		cfg:            cfg,
		logger:         cfg.Logger,
		index:          map[indexKey][]*boundElement{},
		state:          map[string]engine.State{},
		schemas:        map[string]*schema.Schema{},
		validatedTypes: map[string]bool{},
		checkedValues:  map[string]bool{},
		seenDiags:      map[string]bool{},
		warnedOnce:     map[string]bool{},
	}
	if s.cfg.Reporter == nil {
		s.cfg.Reporter = ReporterFunc(func(d Diagnostic) {
			s.logger.Error("validation", "message", d.Message, "path", d.Path)
		})
	}
	s.discoverScopes()
	return s
}

// Containers returns the resolved scope containers, for inspection.
func (s *Session) Containers() []*scopeContainer {
	return s.containers
}

// Mount sends one mount event per distinct (instance, type) pair. Duplicate
// scope declarations for the same pair do not double-mount. Safe to call
// again after a transport fallback; the server re-hydrates idempotently.
func (s *Session) Mount() {
	sent := map[string]bool{}
	for _, c := range s.containers {
		if sent[c.instance] {
			continue
		}
		sent[c.instance] = true
		err := s.sender.Send(&protocol.Event{
			Event:    protocol.MountEvent,
			Instance: c.instance,
			Type:     c.typ,
			Payload:  map[string]any{strings.ToLower(c.typ) + "Id": c.id},
		})
		if err != nil {
			s.logger.Error("mount send failed", "instance", c.instance, "error", err)
		}
	}
}

// Submit builds and sends the event declared by a form's na-submit
// attribute, with the form's named control values as payload.
func (s *Session) Submit(form *html.Node) error {
	event := attr(form, "na-submit")
	if event == "" {
		return fmt.Errorf("submit: form has no na-submit attribute")
	}
	container := s.containerFor(form)
	if container == nil {
		return fmt.Errorf("submit: no enclosing scope container")
	}

	payload := map[string]any{}
	for _, control := range elements(form, false, isFormControl) {
		name := attr(control, "name")
		if name == "" {
			continue
		}
		if isElement(control, "input") && strings.EqualFold(attr(control, "type"), "checkbox") {
			if !hasAttr(control, "checked") {
				continue
			}
			if v := attr(control, "value"); v != "" {
				payload[name] = v
			} else {
				payload[name] = "on"
			}
			continue
		}
		if isElement(control, "textarea") {
			payload[name] = textContent(control)
			continue
		}
		payload[name] = attr(control, "value")
	}

	return s.sender.Send(&protocol.Event{
		Event:    event,
		Instance: container.instance,
		Type:     container.typ,
		Payload:  payload,
	})
}

// Click builds and sends the event declared by the nearest na-click
// ancestor, collecting its data-* attributes as payload.
func (s *Session) Click(el *html.Node) error {
	target := closest(el, func(n *html.Node) bool { return hasAttr(n, "na-click") })
	if target == nil {
		return fmt.Errorf("click: no na-click element")
	}
	container := s.containerFor(target)
	if container == nil {
		return fmt.Errorf("click: no enclosing scope container")
	}

	payload := map[string]any{}
	for _, a := range target.Attr {
		if strings.HasPrefix(a.Key, "data-") {
			payload[strings.TrimPrefix(a.Key, "data-")] = a.Val
		}
	}

	return s.sender.Send(&protocol.Event{
		Event:    attr(target, "na-click"),
		Instance: container.instance,
		Type:     container.typ,
		Payload:  payload,
	})
}

// Diagnostics returns the accumulated validation findings.
func (s *Session) Diagnostics() []Diagnostic {
	out := make([]Diagnostic, len(s.diags))
	copy(out, s.diags)
	return out
}

// Dismiss clears the visible diagnostics. Seen findings stay deduplicated:
// a dismissed finding does not reappear.
func (s *Session) Dismiss() {
	s.diags = nil
}

// InstanceState returns the session's cached state for an instance.
func (s *Session) InstanceState(instance string) engine.State {
	return s.state[instance]
}

func (s *Session) containerFor(n *html.Node) *scopeContainer {
	node := closest(n, func(el *html.Node) bool { return hasAttr(el, "na-scope") })
	if node == nil {
		return nil
	}
	for _, c := range s.containers {
		if c.node == node {
			return c
		}
	}
	return nil
}

func (s *Session) report(message, path string) {
	key := message + " @ " + path
	if s.seenDiags[key] {
		return
	}
	s.seenDiags[key] = true
	d := Diagnostic{Message: message, Path: path}
	s.diags = append(s.diags, d)
	s.cfg.Reporter.Report(d)
}

func (s *Session) warnOnce(msg string) {
	if s.warnedOnce[msg] {
		return
	}
	s.warnedOnce[msg] = true
	s.logger.Warn(msg)
}

func isFormControl(n *html.Node) bool {
	return isElement(n, "input") || isElement(n, "textarea") || isElement(n, "select")
}
