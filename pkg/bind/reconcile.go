package bind

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/edoloughlin/nasc/pkg/engine"
	"github.com/edoloughlin/nasc/pkg/protocol"
)

// ApplyPatches applies one inbound patch list in order, synchronously.
// Error patches are logged, schema patches feed the validator, bindUpdate
// patches mutate matching bound elements and keyed lists.
//
// All schema documents in the list are stored before any validation runs:
// a mount batch carries the parent schema followed by its referenced child
// schemas, and validating the parent needs the children resolvable.
func (s *Session) ApplyPatches(patches []protocol.Patch) {
	for i := range patches {
		if p := &patches[i]; p.Action == protocol.ActionSchema {
			s.schemas[p.Type] = p.Schema
		}
	}
	for i := range patches {
		p := &patches[i]
		switch p.Action {
		case protocol.ActionError:
			s.logger.Error("server error patch", "message", p.Message)

		case protocol.ActionSchema:
			s.validateType(p.Type)

		case protocol.ActionBindUpdate:
			s.applyBindUpdate(p)

		default:
			s.logger.Warn("unknown patch action dropped", "action", string(p.Action))
		}
	}
}

func (s *Session) applyBindUpdate(p *protocol.Patch) {
	typ, _ := protocol.SplitInstance(p.Instance)
	s.checkValue(typ, p.Prop, p.Value)

	// Cache the instance's latest state so dotted and absolute paths can
	// resolve beyond the patched top-level property.
	st := s.state[p.Instance]
	if st == nil {
		st = engine.State{}
		s.state[p.Instance] = st
	}
	st[p.Prop] = p.Value

	for _, c := range s.containers {
		if c.instance != p.Instance {
			continue
		}
		if items, ok := p.Value.([]any); ok {
			if tmpl := s.findTemplate(c, p.Prop); tmpl != nil {
				s.applyKeyedList(c, tmpl, items)
				continue
			}
		}
		s.applyScalar(c, p)
	}
}

// applyScalar pushes the new value through every indexed binding fed by the
// patched property.
func (s *Session) applyScalar(c *scopeContainer, p *protocol.Patch) {
	for _, b := range s.index[indexKey{instance: c.instance, prop: p.Prop}] {
		val := p.Value
		if b.expr.path != b.expr.root() || b.expr.absolute {
			// Nested or absolute path: resolve against the cached root state.
			resolved, ok := lookupPath(map[string]any(s.state[c.instance]), b.expr.path)
			if !ok {
				continue
			}
			val = resolved
		}
		setElementValue(b.node, val)
	}
}

// findTemplate locates the keyed template bound to an array property.
func (s *Session) findTemplate(c *scopeContainer, prop string) *html.Node {
	tmpls := elements(c.node, false, func(n *html.Node) bool {
		return isElement(n, "template") && attr(n, "na-each") == prop
	})
	if len(tmpls) == 0 {
		return nil
	}
	return tmpls[0]
}

// applyKeyedList reconciles a live list region against the new array value.
// Rendered nodes are matched to items by key: absent keys detach exactly
// once, matched keys update in place, new keys clone from the template, and
// every node is re-inserted immediately before the template anchor so DOM
// order matches array order. Reusing nodes by key is the load-bearing
// invariant: item identity survives reordering and partial updates.
func (s *Session) applyKeyedList(c *scopeContainer, tmpl *html.Node, items []any) {
	keyName := attr(tmpl, "na-key")
	if keyName == "" {
		s.report("Keyed template requires na-key attribute", domPath(tmpl))
		return
	}
	listRoot := tmpl.Parent
	if listRoot == nil {
		return
	}
	itemType := attr(tmpl, "na-type")

	newKeys := map[string]bool{}
	for _, item := range items {
		if key, ok := itemKey(item, keyName); ok {
			newKeys[key] = true
		}
	}

	// Detach stale nodes first.
	rendered := map[string]*html.Node{}
	for child := listRoot.FirstChild; child != nil; {
		next := child.NextSibling
		if child.Type == html.ElementNode && hasAttr(child, "na-key-val") {
			key := attr(child, "na-key-val")
			if !newKeys[key] {
				listRoot.RemoveChild(child)
			} else {
				rendered[key] = child
			}
		}
		child = next
	}

	for _, item := range items {
		key, ok := itemKey(item, keyName)
		if !ok {
			s.warnOnce("list item missing key '" + keyName + "'")
			continue
		}
		child := rendered[key]
		if child == nil {
			proto := firstElementChild(tmpl)
			if proto == nil {
				s.report("Keyed template has no element content", domPath(tmpl))
				return
			}
			child = cloneTree(proto)
			setAttr(child, "na-key-val", key)
			if itemType != "" {
				setAttr(child, "data-na-type-scope", itemType)
			}
			rendered[key] = child
		} else if itemType != "" && !hasAttr(child, "data-na-type-scope") {
			setAttr(child, "data-na-type-scope", itemType)
		}

		// Append/move keeps DOM order equal to array order.
		moveBefore(listRoot, child, tmpl)
		s.updateItemBindings(c, child, item, key)
	}
}

// updateItemBindings refreshes bindings inside one rendered list item.
// Relative paths resolve against the item; absolute paths against the
// container instance's root state.
func (s *Session) updateItemBindings(c *scopeContainer, child *html.Node, item any, key string) {
	bound := elements(child, false, func(n *html.Node) bool { return hasAttr(n, "na-bind") })
	if hasAttr(child, "na-bind") {
		bound = append([]*html.Node{child}, bound...)
	}
	for _, el := range bound {
		e := parseExpr(attr(el, "na-bind"))
		source := item
		if e.absolute {
			source = map[string]any(s.state[c.instance])
		}
		val, ok := lookupPath(source, e.path)
		if !ok {
			continue
		}
		setElementValue(el, val)
	}

	// Propagate the key into data-id hooks used by click payloads.
	for _, el := range elements(child, false, func(n *html.Node) bool { return hasAttr(n, "data-id") }) {
		setAttr(el, "data-id", key)
	}
	if hasAttr(child, "data-id") {
		setAttr(child, "data-id", key)
	}
}

// setElementValue writes a value into an element the way its tag expects:
// checked state for checkboxes, value for other form controls, text content
// otherwise. Controls bound by name get the same treatment as na-bind
// targets, so a named checkbox toggles its checked state rather than
// receiving a value string.
func setElementValue(el *html.Node, val any) {
	switch {
	case isElement(el, "input"):
		if strings.EqualFold(attr(el, "type"), "checkbox") {
			if truthy(val) {
				setAttr(el, "checked", "")
			} else {
				removeAttr(el, "checked")
			}
			return
		}
		setAttr(el, "value", formatValue(val))
	case isElement(el, "select"):
		setAttr(el, "value", formatValue(val))
	case isElement(el, "textarea"):
		setText(el, formatValue(val))
	default:
		setText(el, formatValue(val))
	}
}

func itemKey(item any, keyName string) (string, bool) {
	obj, ok := item.(map[string]any)
	if !ok {
		return "", false
	}
	v, ok := obj[keyName]
	if !ok {
		return "", false
	}
	return formatValue(v), true
}
