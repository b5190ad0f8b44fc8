package bind

import (
	"testing"

	"golang.org/x/net/html"

	"github.com/edoloughlin/nasc/pkg/protocol"
)

const todoListDoc = `
	<div na-scope="TodoList:my-list">
		<span na-bind="id"></span>
		<div id="list">
			<template na-each="items" na-key="id" na-type="TodoItem">
				<li>
					<span na-bind="title"></span>
					<input type="checkbox" na-bind="completed">
					<span na-bind="$.id"></span>
					<button na-click="remove_todo" data-id="">x</button>
				</li>
			</template>
		</div>
	</div>`

func item(id, title string, completed bool) map[string]any {
	return map[string]any{"id": id, "title": title, "completed": completed}
}

func applyItems(s *Session, items []any) {
	s.ApplyPatches([]protocol.Patch{protocol.NewBindUpdatePatch("TodoList:my-list", "items", items)})
}

// renderedItems returns the list's rendered children in DOM order, keyed.
func renderedItems(t *testing.T, s *Session) ([]string, map[string]*html.Node) {
	t.Helper()
	lists := elements(s.doc, true, func(n *html.Node) bool { return attr(n, "id") == "list" })
	if len(lists) != 1 {
		t.Fatalf("list roots = %d", len(lists))
	}
	var order []string
	nodes := map[string]*html.Node{}
	for c := lists[0].FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && hasAttr(c, "na-key-val") {
			key := attr(c, "na-key-val")
			order = append(order, key)
			nodes[key] = c
		}
	}
	return order, nodes
}

func itemText(t *testing.T, node *html.Node, bindExpr string) string {
	t.Helper()
	found := elements(node, true, func(n *html.Node) bool { return attr(n, "na-bind") == bindExpr })
	if len(found) == 0 {
		t.Fatalf("no %q binding under item", bindExpr)
	}
	return textContent(found[0])
}

func TestKeyedListInitialRender(t *testing.T) {
	s, _ := testSession(t, todoListDoc)

	s.ApplyPatches([]protocol.Patch{
		protocol.NewBindUpdatePatch("TodoList:my-list", "id", "my-list"),
	})
	applyItems(s, []any{
		item("1", "Learn Nasc", true),
		item("2", "Build an app", false),
	})

	order, nodes := renderedItems(t, s)
	if len(order) != 2 || order[0] != "1" || order[1] != "2" {
		t.Fatalf("order = %v, want [1 2]", order)
	}
	if got := itemText(t, nodes["1"], "title"); got != "Learn Nasc" {
		t.Errorf("item 1 title = %q", got)
	}
	cb := elements(nodes["1"], true, func(n *html.Node) bool { return isElement(n, "input") })
	if !hasAttr(cb[0], "checked") {
		t.Errorf("completed item not checked")
	}
	cb = elements(nodes["2"], true, func(n *html.Node) bool { return isElement(n, "input") })
	if hasAttr(cb[0], "checked") {
		t.Errorf("incomplete item checked")
	}
	// Absolute binding resolves against the container instance's state.
	if got := itemText(t, nodes["1"], "$.id"); got != "my-list" {
		t.Errorf("absolute binding = %q, want my-list", got)
	}
	// Item type scope propagated onto the clone.
	if got := attr(nodes["1"], "data-na-type-scope"); got != "TodoItem" {
		t.Errorf("data-na-type-scope = %q, want TodoItem", got)
	}
	// data-id propagated for click payloads.
	btns := elements(nodes["2"], true, func(n *html.Node) bool { return isElement(n, "button") })
	if got := attr(btns[0], "data-id"); got != "2" {
		t.Errorf("button data-id = %q, want 2", got)
	}
}

func TestKeyedListReorderPreservesNodeIdentity(t *testing.T) {
	s, _ := testSession(t, todoListDoc)
	applyItems(s, []any{item("1", "a", false), item("2", "b", false), item("3", "c", false)})

	_, before := renderedItems(t, s)

	applyItems(s, []any{item("3", "c", false), item("1", "a", false), item("2", "b", false)})

	order, after := renderedItems(t, s)
	if len(order) != 3 || order[0] != "3" || order[1] != "1" || order[2] != "2" {
		t.Fatalf("order = %v, want [3 1 2]", order)
	}
	for _, key := range []string{"1", "2", "3"} {
		if before[key] != after[key] {
			t.Errorf("item %s node recreated on reorder", key)
		}
	}
}

func TestKeyedListRemovalDetaches(t *testing.T) {
	s, _ := testSession(t, todoListDoc)
	applyItems(s, []any{item("1", "a", false), item("2", "b", false)})
	applyItems(s, []any{item("2", "b", false)})

	order, nodes := renderedItems(t, s)
	if len(order) != 1 || order[0] != "2" {
		t.Fatalf("order = %v, want [2]", order)
	}
	if nodes["2"].Parent == nil {
		t.Errorf("surviving item detached")
	}
}

func TestKeyedListAdditionClonesTemplate(t *testing.T) {
	s, _ := testSession(t, todoListDoc)
	applyItems(s, []any{item("1", "a", false)})
	_, before := renderedItems(t, s)

	applyItems(s, []any{item("1", "a", false), item("2", "new", true)})

	order, after := renderedItems(t, s)
	if len(order) != 2 {
		t.Fatalf("order = %v, want two items", order)
	}
	if before["1"] != after["1"] {
		t.Errorf("existing item recreated on addition")
	}
	if got := itemText(t, after["2"], "title"); got != "new" {
		t.Errorf("new item title = %q", got)
	}
}

func TestKeyedListUpdateInPlace(t *testing.T) {
	s, _ := testSession(t, todoListDoc)
	applyItems(s, []any{item("1", "before", false)})
	_, nodes := renderedItems(t, s)
	node := nodes["1"]

	applyItems(s, []any{item("1", "after", true)})

	if got := itemText(t, node, "title"); got != "after" {
		t.Errorf("title = %q, want after (updated in place)", got)
	}
	cb := elements(node, true, func(n *html.Node) bool { return isElement(n, "input") })
	if !hasAttr(cb[0], "checked") {
		t.Errorf("toggled item not checked")
	}
}

func TestKeyedListEmptyArrayClearsAll(t *testing.T) {
	s, _ := testSession(t, todoListDoc)
	applyItems(s, []any{item("1", "a", false), item("2", "b", false)})
	applyItems(s, []any{})

	order, _ := renderedItems(t, s)
	if len(order) != 0 {
		t.Errorf("order = %v, want empty", order)
	}
}

func TestKeyedListTemplateSurvivesReconciliation(t *testing.T) {
	s, _ := testSession(t, todoListDoc)
	applyItems(s, []any{item("1", "a", false)})
	applyItems(s, []any{})
	applyItems(s, []any{item("9", "again", false)})

	order, nodes := renderedItems(t, s)
	if len(order) != 1 || order[0] != "9" {
		t.Fatalf("order = %v, want [9]", order)
	}
	if got := itemText(t, nodes["9"], "title"); got != "again" {
		t.Errorf("title = %q", got)
	}
}

func TestKeyedListRequiresKeyAttribute(t *testing.T) {
	s, _ := testSession(t, `
		<div na-scope="TodoList:my-list">
			<div><template na-each="items"><li></li></template></div>
		</div>`)

	applyItems(s, []any{item("1", "a", false)})

	diags := s.Diagnostics()
	if len(diags) != 1 {
		t.Fatalf("diags = %v, want key-required finding", diags)
	}
}

func TestKeyedListItemMissingKeySkipped(t *testing.T) {
	s, _ := testSession(t, todoListDoc)
	applyItems(s, []any{
		item("1", "a", false),
		map[string]any{"title": "keyless"},
	})

	order, _ := renderedItems(t, s)
	if len(order) != 1 || order[0] != "1" {
		t.Errorf("order = %v, want keyed item only", order)
	}
}
