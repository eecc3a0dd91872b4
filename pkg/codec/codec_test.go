package codec

import (
	"bytes"
	"testing"
)

type attrMessage struct {
	Action string         `cbor:"action"`
	Name   string         `cbor:"name,omitempty"`
	Value  any            `cbor:"value,omitempty"`
	Extra  map[string]any `cbor:"extra,omitempty"`
}

func TestRoundtrip(t *testing.T) {
	in := attrMessage{Action: "set_attribute", Name: "spine_C_00_jnt"}
	data, err := Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var out attrMessage
	if err := Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.Action != in.Action || out.Name != in.Name {
		t.Errorf("roundtrip = %+v, want %+v", out, in)
	}
}

func TestDeterministicMapOrder(t *testing.T) {
	a := map[string]int{"z": 1, "a": 2, "m": 3}
	b := map[string]int{"m": 3, "z": 1, "a": 2}
	da, err := Marshal(a)
	if err != nil {
		t.Fatal(err)
	}
	db, err := Marshal(b)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(da, db) {
		t.Errorf("encodings differ: %x vs %x", da, db)
	}
}

func TestAnyDecodesStringKeyedMaps(t *testing.T) {
	data, err := Marshal(attrMessage{Action: "x", Value: map[string]any{"driver": "ctl"}})
	if err != nil {
		t.Fatal(err)
	}
	var out attrMessage
	if err := Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	m, ok := out.Value.(map[string]any)
	if !ok {
		t.Fatalf("Value type = %T, want map[string]any", out.Value)
	}
	if m["driver"] != "ctl" {
		t.Errorf("driver = %v, want ctl", m["driver"])
	}
}

func TestStream(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	for _, a := range []string{"create", "rename", "delete"} {
		if err := enc.Encode(attrMessage{Action: a}); err != nil {
			t.Fatal(err)
		}
	}
	dec := NewDecoder(&buf)
	for _, want := range []string{"create", "rename", "delete"} {
		var m attrMessage
		if err := dec.Decode(&m); err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if m.Action != want {
			t.Errorf("action = %q, want %q", m.Action, want)
		}
	}
}
