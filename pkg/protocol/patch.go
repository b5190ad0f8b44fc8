package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/edoloughlin/nasc/pkg/schema"
)

// Action is the type of a patch directive.
type Action string

// Patch action constants.
const (
	// ActionSchema pushes a type's schema document to the client.
	ActionSchema Action = "schema"
	// ActionBindUpdate carries one changed top-level property's new value.
	ActionBindUpdate Action = "bindUpdate"
	// ActionError reports a processing failure. It is non-fatal to the channel.
	ActionError Action = "error"
)

// Patch is a single server-to-client directive. Exactly one of the three
// variants is populated, selected by Action.
type Patch struct {
	Action   Action         // variant tag
	Instance string         // "Type:id" the patch applies to (schema, bindUpdate)
	Type     string         // schema's type name (schema)
	Schema   *schema.Schema // schema document (schema)
	Prop     string         // changed top-level property (bindUpdate)
	Value    any            // new property value (bindUpdate)
	Message  string         // failure description (error)
}

// NewSchemaPatch creates a schema patch for the given instance and type.
func NewSchemaPatch(instance, typ string, s *schema.Schema) Patch {
	return Patch{Action: ActionSchema, Instance: instance, Type: typ, Schema: s}
}

// NewBindUpdatePatch creates a bindUpdate patch for one changed property.
func NewBindUpdatePatch(instance, prop string, value any) Patch {
	return Patch{Action: ActionBindUpdate, Instance: instance, Prop: prop, Value: value}
}

// NewErrorPatch creates an error patch carrying a message.
func NewErrorPatch(message string) Patch {
	return Patch{Action: ActionError, Message: message}
}

// patchWire is the JSON envelope for all patch variants. Fields irrelevant
// to a variant are omitted on the wire.
type patchWire struct {
	Action   Action          `json:"action"`
	Instance string          `json:"instance,omitempty"`
	Type     string          `json:"type,omitempty"`
	Schema   *schema.Schema  `json:"schema,omitempty"`
	Prop     string          `json:"prop,omitempty"`
	Value    json.RawMessage `json:"value,omitempty"`
	Message  string          `json:"message,omitempty"`
}

// MarshalJSON encodes exactly the fields that belong to the patch's variant.
func (p Patch) MarshalJSON() ([]byte, error) {
	w := patchWire{Action: p.Action}
	switch p.Action {
	case ActionSchema:
		w.Instance = p.Instance
		w.Type = p.Type
		w.Schema = p.Schema
	case ActionBindUpdate:
		w.Instance = p.Instance
		w.Prop = p.Prop
		raw, err := json.Marshal(p.Value)
		if err != nil {
			return nil, fmt.Errorf("marshal bindUpdate value for %q: %w", p.Prop, err)
		}
		w.Value = raw
	case ActionError:
		w.Message = p.Message
	default:
		return nil, fmt.Errorf("unknown patch action %q", p.Action)
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes a patch, tolerating unknown fields for forward
// compatibility.
func (p *Patch) UnmarshalJSON(data []byte) error {
	var w patchWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	p.Action = w.Action
	p.Instance = w.Instance
	p.Type = w.Type
	p.Schema = w.Schema
	p.Prop = w.Prop
	p.Message = w.Message
	p.Value = nil
	if len(w.Value) > 0 {
		if err := json.Unmarshal(w.Value, &p.Value); err != nil {
			return fmt.Errorf("decode bindUpdate value for %q: %w", w.Prop, err)
		}
	}
	return nil
}

// EncodePatches encodes a patch list as the wire JSON array.
func EncodePatches(patches []Patch) ([]byte, error) {
	if patches == nil {
		patches = []Patch{}
	}
	return json.Marshal(patches)
}

// DecodePatches decodes a wire JSON array into a patch list.
func DecodePatches(data []byte) ([]Patch, error) {
	var patches []Patch
	if err := json.Unmarshal(data, &patches); err != nil {
		return nil, err
	}
	return patches, nil
}
