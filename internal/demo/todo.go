// Package demo ships the reference handlers and schemas used by the nascd
// demo server and by end-to-end tests.
package demo

import (
	"context"
	"fmt"
	"time"

	"github.com/edoloughlin/nasc/pkg/engine"
	"github.com/edoloughlin/nasc/pkg/processor"
)

// TodoListHandler manages an ordered list of todo items. Every event
// returns the full next state; the processor diffs and persists it.
func TodoListHandler() *processor.Handler {
	return &processor.Handler{
		Mount:  todoMount,
		Events: map[string]processor.EventFunc{
			"add_todo":    todoAdd,
			"toggle_todo": todoToggle,
			"move_up":     todoMoveUp,
			"move_down":   todoMoveDown,
			"remove_todo": todoRemove,
		},
	}
}

func todoMount(_ context.Context, params map[string]any) (engine.State, error) {
	id, _ := params["todolistId"].(string)
	if id == "" {
		id = "my-list"
	}
	return engine.State{
		"id": id,
		"items": []any{
			map[string]any{"id": "1", "title": "Learn Nasc", "completed": true},
			map[string]any{"id": "2", "title": "Build an app", "completed": false},
		},
	}, nil
}

func todoAdd(_ context.Context, payload map[string]any, current engine.State) (engine.State, error) {
	title, _ := payload["title"].(string)
	if title == "" {
		title = "New Todo"
	}
	items := todoItems(current)
	items = append(items, map[string]any{
		"id":        fmt.Sprintf("%d", time.Now().UnixMilli()),
		"title":     title,
		"completed": false,
	})
	current["items"] = items
	return current, nil
}

func todoToggle(_ context.Context, payload map[string]any, current engine.State) (engine.State, error) {
	id := payloadID(payload)
	items := todoItems(current)
	for _, it := range items {
		item, ok := it.(map[string]any)
		if !ok || item["id"] != id {
			continue
		}
		done, _ := item["completed"].(bool)
		item["completed"] = !done
	}
	current["items"] = items
	return current, nil
}

func todoMoveUp(_ context.Context, payload map[string]any, current engine.State) (engine.State, error) {
	items := todoItems(current)
	idx := todoIndex(items, payloadID(payload))
	if idx <= 0 {
		return current, nil
	}
	items[idx-1], items[idx] = items[idx], items[idx-1]
	current["items"] = items
	return current, nil
}

func todoMoveDown(_ context.Context, payload map[string]any, current engine.State) (engine.State, error) {
	items := todoItems(current)
	idx := todoIndex(items, payloadID(payload))
	if idx < 0 || idx >= len(items)-1 {
		return current, nil
	}
	items[idx], items[idx+1] = items[idx+1], items[idx]
	current["items"] = items
	return current, nil
}

func todoRemove(_ context.Context, payload map[string]any, current engine.State) (engine.State, error) {
	id := payloadID(payload)
	items := todoItems(current)
	kept := items[:0]
	for _, it := range items {
		if item, ok := it.(map[string]any); ok && item["id"] == id {
			continue
		}
		kept = append(kept, it)
	}
	current["items"] = kept
	return current, nil
}

func todoItems(current engine.State) []any {
	items, _ := current["items"].([]any)
	return items
}

func todoIndex(items []any, id string) int {
	for i, it := range items {
		if item, ok := it.(map[string]any); ok && item["id"] == id {
			return i
		}
	}
	return -1
}

func payloadID(payload map[string]any) string {
	switch v := payload["id"].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%d", int64(v))
	default:
		return ""
	}
}
