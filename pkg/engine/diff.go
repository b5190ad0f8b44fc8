// Package engine computes the minimal top-level property delta between two
// state snapshots. State values are JSON-shaped: strings, numbers, booleans,
// nil, []any and map[string]any.
package engine

import (
	"encoding/json"
	"fmt"
)

// State is one instance's JSON-serializable property mapping. The protocol
// treats it as opaque beyond its top-level keys.
type State map[string]any

// Diff returns the set of top-level keys whose values differ between prev
// and next, mapped to the next value. A key present on only one side is a
// difference. The result's key set is order-insensitive and Diff itself is
// pure: neither input is modified.
func Diff(prev, next State) State {
	changed := State{}
	for k, pv := range prev {
		nv, ok := next[k]
		if !ok || !Equal(pv, nv) {
			changed[k] = nv
		}
	}
	for k, nv := range next {
		if _, ok := prev[k]; !ok {
			changed[k] = nv
		}
	}
	return changed
}

// Equal reports deep equality of two JSON-shaped values. Numbers compare by
// value regardless of Go representation, so states decoded from JSON and
// states built literally in handler code compare correctly.
func Equal(a, b any) bool {
	if sv, ok := a.(State); ok {
		a = map[string]any(sv)
	}
	if sv, ok := b.(State); ok {
		b = map[string]any(sv)
	}
	switch av := a.(type) {
	case nil:
		return b == nil
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			w, ok := bv[k]
			if !ok || !Equal(v, w) {
				return false
			}
		}
		return true
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		af, aok := toFloat(a)
		bf, bok := toFloat(b)
		if aok || bok {
			return aok && bok && af == bf
		}
		// Non-JSON Go values (structs, typed slices) fall back to their
		// canonical JSON form. encoding/json sorts object keys, so this
		// stays order-insensitive.
		return canonical(a) == canonical(b)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func canonical(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("!%T", v)
	}
	return string(data)
}

// Clone deep-copies a state through its JSON representation, normalizing
// every value to the JSON-shaped types. Handlers receive clones so no state
// is ever shared by reference across a Store boundary.
func Clone(s State) State {
	if s == nil {
		return nil
	}
	out, _ := CloneValue(map[string]any(s)).(map[string]any)
	if out == nil {
		out = map[string]any{}
	}
	return State(out)
}

// CloneValue deep-copies a single JSON-shaped value.
func CloneValue(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}
