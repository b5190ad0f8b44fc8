package bind

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// expr is a parsed binding expression: an optional "Type:" prefix, then a
// dotted path. A leading "$" marks the path absolute: it resolves against
// the container instance's root state even inside a keyed template item.
type expr struct {
	typeName string
	path     string
	absolute bool
}

func parseExpr(s string) expr {
	e := expr{}
	if i := strings.IndexByte(s, ':'); i >= 0 {
		e.typeName = s[:i]
		s = s[i+1:]
	}
	if strings.HasPrefix(s, "$") {
		e.absolute = true
		s = strings.TrimPrefix(s, "$")
		s = strings.TrimPrefix(s, ".")
	}
	e.path = s
	return e
}

// root returns the path's first segment: the top-level property whose
// bindUpdate patches feed this binding.
func (e expr) root() string {
	if i := strings.IndexByte(e.path, '.'); i >= 0 {
		return e.path[:i]
	}
	return e.path
}

// appliesTo reports whether the expression binds into the given type when
// hosted by a container of that type. Typed expressions only match their
// named type.
func (e expr) appliesTo(containerType string) bool {
	return e.typeName == "" || e.typeName == containerType
}

// lookupPath evaluates a dotted path against a JSON-shaped value. An empty
// path yields the value itself.
func lookupPath(value any, path string) (any, bool) {
	if path == "" {
		return value, true
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, false
	}
	res := gjson.GetBytes(data, path)
	if !res.Exists() {
		return nil, false
	}
	return res.Value(), true
}

// formatValue renders a bound value for text content or a value attribute.
func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

// truthy mirrors the checkbox coercion: anything but nil, false, "", and 0
// checks the box.
func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case float64:
		return val != 0
	case int:
		return val != 0
	default:
		return true
	}
}
