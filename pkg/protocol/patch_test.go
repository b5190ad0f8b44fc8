package protocol

import (
	"strings"
	"testing"

	"github.com/edoloughlin/nasc/pkg/schema"
)

func TestBindUpdatePatchWire(t *testing.T) {
	p := NewBindUpdatePatch("User:u1", "name", "Ada")
	data, err := p.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(data)
	if !strings.Contains(s, `"action":"bindUpdate"`) {
		t.Errorf("wire missing action tag: %s", s)
	}
	if strings.Contains(s, "message") || strings.Contains(s, "schema") {
		t.Errorf("bindUpdate wire carries foreign variant fields: %s", s)
	}

	var got Patch
	if err := got.UnmarshalJSON(data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Action != ActionBindUpdate || got.Instance != "User:u1" || got.Prop != "name" || got.Value != "Ada" {
		t.Errorf("round trip = %+v", got)
	}
}

func TestErrorPatchWireOmitsInstance(t *testing.T) {
	data, err := NewErrorPatch("boom").MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(data)
	if strings.Contains(s, "instance") || strings.Contains(s, "prop") {
		t.Errorf("error wire carries foreign variant fields: %s", s)
	}
	if !strings.Contains(s, `"message":"boom"`) {
		t.Errorf("error wire missing message: %s", s)
	}
}

func TestSchemaPatchRoundTrip(t *testing.T) {
	doc := &schema.Schema{
		Type:       "object",
		Properties: map[string]*schema.Property{"name": {Type: "string"}},
	}
	data, err := EncodePatches([]Patch{NewSchemaPatch("User:u1", "User", doc)})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	patches, err := DecodePatches(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(patches) != 1 {
		t.Fatalf("len(patches) = %d, want 1", len(patches))
	}
	p := patches[0]
	if p.Action != ActionSchema || p.Type != "User" {
		t.Errorf("schema patch = %+v", p)
	}
	if !p.Schema.HasProperty("name") {
		t.Errorf("schema document lost in transit: %+v", p.Schema)
	}
}

func TestBindUpdateNullValueSurvives(t *testing.T) {
	// A removed property arrives as an explicit null value.
	patches, err := DecodePatches([]byte(`[{"action":"bindUpdate","instance":"User:u1","prop":"email","value":null}]`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if patches[0].Value != nil {
		t.Errorf("null value = %v, want nil", patches[0].Value)
	}
}

func TestMarshalUnknownActionFails(t *testing.T) {
	if _, err := (Patch{Action: "purple"}).MarshalJSON(); err == nil {
		t.Errorf("marshal of unknown action succeeded")
	}
}

func TestEncodePatchesNilIsEmptyArray(t *testing.T) {
	data, err := EncodePatches(nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(data) != "[]" {
		t.Errorf("EncodePatches(nil) = %s, want []", data)
	}
}

func TestSplitInstance(t *testing.T) {
	typ, id := SplitInstance("TodoList:my-list")
	if typ != "TodoList" || id != "my-list" {
		t.Errorf("SplitInstance = (%q, %q)", typ, id)
	}

	// Only the first colon splits; ids may contain colons.
	typ, id = SplitInstance("Doc:a:b")
	if typ != "Doc" || id != "a:b" {
		t.Errorf("SplitInstance(Doc:a:b) = (%q, %q)", typ, id)
	}

	typ, id = SplitInstance("bare")
	if typ != "bare" || id != "" {
		t.Errorf("SplitInstance(bare) = (%q, %q)", typ, id)
	}
}

func TestEventRoundTrip(t *testing.T) {
	ev := &Event{
		Event:    "add_todo",
		Instance: "TodoList:my-list",
		Type:     "TodoList",
		Payload:  map[string]any{"title": "Ship it"},
		ClientID: "c1",
		EventID:  "e1",
	}
	data, err := EncodeEvent(ev)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Event != ev.Event || got.Instance != ev.Instance || got.ClientID != ev.ClientID || got.EventID != ev.EventID {
		t.Errorf("round trip = %+v", got)
	}
	if got.Payload["title"] != "Ship it" {
		t.Errorf("payload = %v", got.Payload)
	}
}

func TestDecodeEventMalformed(t *testing.T) {
	if _, err := DecodeEvent([]byte("{nope")); err == nil {
		t.Errorf("malformed event decoded without error")
	}
}
