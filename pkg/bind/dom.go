// Package bind resolves DOM scope containers to server instances, applies
// incoming patches to bound elements (scalar bindings, nested paths and
// keyed template lists), and validates declared bindings against pushed
// schemas with deduplicated diagnostics.
//
// The DOM is an x/net/html node tree. Unlike a browser, the parser attaches
// <template> children directly to the template element, so tree walks here
// explicitly treat templates as boundaries: template content is inert until
// the keyed-list reconciler clones it.
package bind

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// attr returns the value of the named attribute, or "".
func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

// hasAttr reports whether the node carries the named attribute.
func hasAttr(n *html.Node, name string) bool {
	for _, a := range n.Attr {
		if a.Key == name {
			return true
		}
	}
	return false
}

// setAttr sets or replaces the named attribute.
func setAttr(n *html.Node, name, value string) {
	for i := range n.Attr {
		if n.Attr[i].Key == name {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: value})
}

// removeAttr removes the named attribute if present.
func removeAttr(n *html.Node, name string) {
	for i := range n.Attr {
		if n.Attr[i].Key == name {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

func isElement(n *html.Node, tag string) bool {
	return n != nil && n.Type == html.ElementNode && n.Data == tag
}

// elements collects descendant elements of root (excluding root itself)
// matching pred. When intoTemplates is false the walk stops at <template>
// boundaries, matching browser reachability.
func elements(root *html.Node, intoTemplates bool, pred func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var visit func(n *html.Node)
	visit = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode {
				if pred(c) {
					out = append(out, c)
				}
				if isElement(c, "template") && !intoTemplates {
					continue
				}
			}
			visit(c)
		}
	}
	visit(root)
	return out
}

// closest walks the parent chain, including n itself, for the first node
// matching pred.
func closest(n *html.Node, pred func(*html.Node) bool) *html.Node {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Type == html.ElementNode && pred(cur) {
			return cur
		}
	}
	return nil
}

// setText replaces a node's children with a single text node.
func setText(n *html.Node, text string) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
}

// textContent concatenates a node's descendant text.
func textContent(n *html.Node) string {
	var b strings.Builder
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	return b.String()
}

// cloneTree deep-copies a detached subtree.
func cloneTree(n *html.Node) *html.Node {
	clone := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
		Attr:      append([]html.Attribute(nil), n.Attr...),
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		clone.AppendChild(cloneTree(c))
	}
	return clone
}

// moveBefore detaches child from wherever it is and re-inserts it before
// anchor under parent. Moving (not recreating) is what preserves unrelated
// item identity across reorders.
func moveBefore(parent, child, anchor *html.Node) {
	if child.Parent != nil {
		child.Parent.RemoveChild(child)
	}
	parent.InsertBefore(child, anchor)
}

// firstElementChild returns the node's first element child.
func firstElementChild(n *html.Node) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return c
		}
	}
	return nil
}

// domPath renders a short selector-ish path for diagnostics, at most five
// ancestors deep.
func domPath(n *html.Node) string {
	var parts []string
	for cur := n; cur != nil && cur.Type == html.ElementNode && len(parts) < 5; cur = cur.Parent {
		sel := cur.Data
		switch {
		case attr(cur, "id") != "":
			sel += "#" + attr(cur, "id")
		case attr(cur, "na-bind") != "":
			sel += fmt.Sprintf("[na-bind=%q]", attr(cur, "na-bind"))
		case attr(cur, "name") != "":
			sel += fmt.Sprintf("[name=%q]", attr(cur, "name"))
		}
		parts = append([]string{sel}, parts...)
	}
	return strings.Join(parts, " > ")
}
