package bind

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/edoloughlin/nasc/pkg/protocol"
)

// scopeContainer is one DOM subtree root declaring which instance it
// renders.
type scopeContainer struct {
	node        *html.Node
	scope       string // raw na-scope value
	typ         string
	id          string
	instance    string // "Type:id"
	interactive bool
}

// Node returns the container's DOM root.
func (c *scopeContainer) Node() *html.Node { return c.node }

// Instance returns the resolved "Type:id" identity.
func (c *scopeContainer) Instance() string { return c.instance }

// Type returns the resolved type name.
func (c *scopeContainer) Type() string { return c.typ }

type indexKey struct {
	instance string
	prop     string // top-level property feeding the binding
}

// boundElement is one indexed binding: an element handle plus its parsed
// expression. The index replaces per-patch attribute-selector queries.
type boundElement struct {
	node *html.Node
	expr expr

	// nameBinding marks form controls bound through their name attribute
	// rather than na-bind.
	nameBinding bool
}

// discoverScopes inspects every scope container once, resolves its type,
// and builds the binding index. Containers without a resolvable type are
// excluded: interactive ones raise a validation error, display-only ones a
// one-time warning.
func (s *Session) discoverScopes() {
	nodes := elements(s.doc, false, func(n *html.Node) bool { return hasAttr(n, "na-scope") })
	for _, node := range nodes {
		scope := attr(node, "na-scope")
		c := s.resolveContainer(node, scope)
		if c == nil {
			if isInteractive(node) {
				s.report(fmt.Sprintf("Unresolvable type for interactive scope '%s'", scope), domPath(node))
			} else {
				s.warnOnce(fmt.Sprintf("scope '%s' has no resolvable type; excluded from mount", scope))
			}
			continue
		}
		s.containers = append(s.containers, c)
		s.indexContainer(c)
	}
	s.logger.Debug("scopes discovered", "containers", len(s.containers), "bindings", len(s.index))
}

// resolveContainer resolves (type, id) for a scope declaration. The
// explicit na-type attribute wins, then a "Type:" prefix in the scope
// string, then the MapScopeToType hook.
func (s *Session) resolveContainer(node *html.Node, scope string) *scopeContainer {
	typ := attr(node, "na-type")
	id := ""

	if prefix, rest := protocol.SplitInstance(scope); strings.Contains(scope, ":") {
		if typ == "" {
			typ = prefix
		}
		id = rest
	} else {
		if typ == "" && s.cfg.MapScopeToType != nil {
			typ = s.cfg.MapScopeToType(scope)
		}
		id = s.cfg.MapScopeToID(scope)
	}
	if typ == "" {
		return nil
	}

	return &scopeContainer{
		node:        node,
		scope:       scope,
		typ:         typ,
		id:          id,
		instance:    protocol.JoinInstance(typ, id),
		interactive: isInteractive(node),
	}
}

// indexContainer records every binding under the container, keyed by
// (instance, top-level property). Template interiors are excluded; the
// keyed-list reconciler owns them.
func (s *Session) indexContainer(c *scopeContainer) {
	for _, el := range elements(c.node, false, func(n *html.Node) bool { return hasAttr(n, "na-bind") }) {
		e := parseExpr(attr(el, "na-bind"))
		if !e.appliesTo(c.typ) || e.root() == "" {
			continue
		}
		key := indexKey{instance: c.instance, prop: e.root()}
		s.index[key] = append(s.index[key], &boundElement{node: el, expr: e})
	}
	for _, el := range elements(c.node, false, func(n *html.Node) bool {
		return isFormControl(n) && attr(n, "name") != ""
	}) {
		e := parseExpr(attr(el, "name"))
		if e.root() == "" {
			continue
		}
		key := indexKey{instance: c.instance, prop: e.root()}
		s.index[key] = append(s.index[key], &boundElement{node: el, expr: e, nameBinding: true})
	}
}

// isInteractive reports whether the subtree can originate events: it
// declares submit/click events or contains form controls.
func isInteractive(node *html.Node) bool {
	if hasAttr(node, "na-submit") || hasAttr(node, "na-click") {
		return true
	}
	found := elements(node, false, func(n *html.Node) bool {
		return hasAttr(n, "na-submit") || hasAttr(n, "na-click") || isFormControl(n)
	})
	return len(found) > 0
}
