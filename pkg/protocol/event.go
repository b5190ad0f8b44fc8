package protocol

import (
	"encoding/json"
	"strings"
)

// MountEvent is the reserved event name that creates or re-hydrates an
// instance. It is the only event permitted to create state ex nihilo.
const MountEvent = "mount"

// Event is the client-to-server message envelope.
type Event struct {
	// Event is the handler event name (e.g. "mount", "add_todo").
	Event string `json:"event"`

	// Instance identifies the target as "Type:id".
	Instance string `json:"instance"`

	// Type optionally names the instance's type explicitly. When set it
	// overrides the prefix parsed out of Instance.
	Type string `json:"type,omitempty"`

	// Payload carries event arguments (form fields, data-* attributes).
	Payload map[string]any `json:"payload"`

	// ClientID is the client-generated identifier used to route patches
	// back over the push channel. Persisted across reloads by the client.
	ClientID string `json:"clientId,omitempty"`

	// EventID optionally correlates the event with its patch delivery.
	EventID string `json:"eventId,omitempty"`
}

// InstanceParts splits the target into its (type, id) pair. The explicit
// Type field wins over the "Type:" prefix of Instance.
func (e *Event) InstanceParts() (typ, id string) {
	typ, id = SplitInstance(e.Instance)
	if e.Type != "" {
		typ = e.Type
		if !strings.Contains(e.Instance, ":") {
			id = e.Instance
		}
	}
	return typ, id
}

// SplitInstance splits an "Type:id" instance string on its first colon.
// A string without a colon is all type and no id.
func SplitInstance(instance string) (typ, id string) {
	if i := strings.IndexByte(instance, ':'); i >= 0 {
		return instance[:i], instance[i+1:]
	}
	return instance, ""
}

// JoinInstance builds the "Type:id" instance string.
func JoinInstance(typ, id string) string {
	return typ + ":" + id
}

// EncodeEvent encodes an event envelope as wire JSON.
func EncodeEvent(e *Event) ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEvent decodes a wire JSON event envelope.
func DecodeEvent(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
