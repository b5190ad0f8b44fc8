package bind

import (
	"fmt"

	"golang.org/x/net/html"

	"github.com/edoloughlin/nasc/pkg/schema"
)

// validateType checks every declared binding that targets the given type
// against its freshly pushed schema. Container-level bindings target the
// container's own type; template-interior bindings target the template's
// item type, so one container is revisited as each of its types' schemas
// arrive. Validation runs once per type, the first time its schema shows
// up; later pushes for the same type are skipped (first-seen wins), so a
// schema that changes mid-session goes unnoticed.
func (s *Session) validateType(typ string) {
	if s.validatedTypes[typ] {
		return
	}
	s.validatedTypes[typ] = true

	doc := s.schemas[typ]
	if doc == nil || doc.Properties == nil {
		return
	}

	for _, c := range s.containers {
		s.validateContainerAgainst(c, typ, doc)
	}
}

func (s *Session) validateContainerAgainst(c *scopeContainer, typ string, doc *schema.Schema) {
	containerDoc := s.schemas[c.typ]

	// Declared na-bind expressions, template interiors included: cloned
	// items inherit these bindings verbatim.
	for _, el := range elements(c.node, true, func(n *html.Node) bool { return hasAttr(n, "na-bind") }) {
		e := parseExpr(attr(el, "na-bind"))
		if e.root() == "" {
			continue
		}
		if s.bindingTargetType(c, el, e, containerDoc) != typ {
			continue
		}
		if !doc.HasProperty(e.root()) {
			s.report(fmt.Sprintf("Unknown binding %s.%s", typ, e.root()), domPath(el))
		}
	}

	// Named form controls.
	for _, el := range elements(c.node, true, func(n *html.Node) bool {
		return isFormControl(n) && attr(n, "name") != ""
	}) {
		prop := attr(el, "name")
		if s.controlTargetType(c, el, containerDoc) != typ {
			continue
		}
		if doc.HasProperty(prop) {
			continue
		}
		// A top-level control whose name exists on a child item type is
		// event input (e.g. add_todo's title field), not a binding mistake.
		if s.isChildItemField(c, el, prop, containerDoc) {
			continue
		}
		s.report(fmt.Sprintf("Unknown field %s.%s", typ, prop), domPath(el))
	}
}

// bindingTargetType resolves which type's schema a binding validates
// against: the element's explicit na-type, the expression's "Type:"
// prefix, the enclosing keyed template's item type (declared or inferred
// through the array property's $ref), an ancestor clone's type scope, or
// the container's own type.
func (s *Session) bindingTargetType(c *scopeContainer, el *html.Node, e expr, containerDoc *schema.Schema) string {
	if t := attr(el, "na-type"); t != "" {
		return t
	}
	if e.typeName != "" {
		return e.typeName
	}
	if tmpl := enclosingTemplate(el, c.node); tmpl != nil {
		if t := attr(tmpl, "na-type"); t != "" {
			return t
		}
		if t := containerDoc.ChildTypeOf(attr(tmpl, "na-each")); t != "" {
			return t
		}
	}
	if scoped := closest(el, func(n *html.Node) bool { return hasAttr(n, "data-na-type-scope") }); scoped != nil {
		if t := attr(scoped, "data-na-type-scope"); t != "" {
			return t
		}
	}
	return c.typ
}

func (s *Session) controlTargetType(c *scopeContainer, el *html.Node, containerDoc *schema.Schema) string {
	if t := attr(el, "na-type"); t != "" {
		return t
	}
	if tmpl := enclosingTemplate(el, c.node); tmpl != nil {
		if t := attr(tmpl, "na-type"); t != "" {
			return t
		}
		if t := containerDoc.ChildTypeOf(attr(tmpl, "na-each")); t != "" {
			return t
		}
	} else if scoped := closest(el, func(n *html.Node) bool { return hasAttr(n, "data-na-type-scope") }); scoped != nil {
		if t := attr(scoped, "data-na-type-scope"); t != "" {
			return t
		}
	}
	return c.typ
}

// isChildItemField applies the event-payload heuristic: the control sits
// outside any template, carries no explicit type, and its name exists on a
// child item type rendered by one of the container's keyed templates.
func (s *Session) isChildItemField(c *scopeContainer, el *html.Node, prop string, containerDoc *schema.Schema) bool {
	if enclosingTemplate(el, c.node) != nil || attr(el, "na-type") != "" {
		return false
	}
	for _, tmpl := range elements(c.node, true, func(n *html.Node) bool {
		return isElement(n, "template") && hasAttr(n, "na-each")
	}) {
		childType := attr(tmpl, "na-type")
		if childType == "" {
			childType = containerDoc.ChildTypeOf(attr(tmpl, "na-each"))
		}
		if childType == "" {
			continue
		}
		if s.schemas[childType].HasProperty(prop) {
			return true
		}
	}
	return false
}

// checkValue validates one pushed value against the cached schema, once
// per (type, property). Unknown properties warn once; kind mismatches are
// reported as diagnostics.
func (s *Session) checkValue(typ, prop string, value any) {
	doc := s.schemas[typ]
	if doc == nil {
		return
	}
	key := typ + "." + prop
	if s.checkedValues[key] {
		return
	}
	s.checkedValues[key] = true

	p, ok := doc.Properties[prop]
	if !ok {
		s.warnOnce(fmt.Sprintf("property %s not declared in schema for %s", prop, typ))
		return
	}
	if p == nil || p.Type == "" || value == nil {
		return
	}
	if !valueMatchesKind(value, p.Type) {
		s.report(fmt.Sprintf("Schema mismatch for %s.%s", typ, prop), s.firstBoundPath(typ, prop))
	}
}

func (s *Session) firstBoundPath(typ, prop string) string {
	for _, c := range s.containers {
		if c.typ != typ {
			continue
		}
		if bound := s.index[indexKey{instance: c.instance, prop: prop}]; len(bound) > 0 {
			return domPath(bound[0].node)
		}
		return domPath(c.node)
	}
	return ""
}

func valueMatchesKind(value any, kind string) bool {
	switch kind {
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		switch value.(type) {
		case float64, int, int64:
			return true
		default:
			return false
		}
	case "integer":
		switch v := value.(type) {
		case int, int64:
			return true
		case float64:
			return v == float64(int64(v))
		default:
			return false
		}
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	default:
		return true
	}
}

// enclosingTemplate finds the keyed template containing el, stopping at
// the container boundary.
func enclosingTemplate(el, boundary *html.Node) *html.Node {
	for cur := el.Parent; cur != nil && cur != boundary; cur = cur.Parent {
		if isElement(cur, "template") && hasAttr(cur, "na-each") {
			return cur
		}
	}
	return nil
}
