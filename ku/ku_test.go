package ku

import (
	"bytes"
	"encoding/json"
	"testing"
)

func newValidKU() *KU {
	return &KU{
		SchemaID:    "ku.v1",
		Type:        "ku.note",
		ContentType: DefaultContentType,
		Payload:     map[string]interface{}{"title": "T", "n": 42},
		Parents:     []string{},
		Sources:     []map[string]interface{}{},
		Tests:       []string{},
		Tags:        []string{"x"},
		Provenance:  Provenance{AgentPubkey: ""},
	}
}

func TestValidateOK(t *testing.T) {
	if err := Validate(newValidKU()); err != nil {
		t.Fatalf("expected valid KU, got %v", err)
	}
}

func TestValidateMissingFields(t *testing.T) {
	cases := []func(*KU){
		func(k *KU) { k.SchemaID = "" },
		func(k *KU) { k.Type = "" },
		func(k *KU) { k.ContentType = "" },
		func(k *KU) { k.Payload = nil },
		func(k *KU) { k.Parents = nil },
		func(k *KU) { k.Sources = nil },
		func(k *KU) { k.Tests = nil },
		func(k *KU) { k.Tags = nil },
	}
	for i, mutate := range cases {
		k := newValidKU()
		mutate(k)
		if err := Validate(k); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}

// TestNormalizeNumbersConvertsWholeNumbers covers the real ingestion path:
// a decoder configured with UseNumber (as ingest's readJSON is) produces
// json.Number leaves, which NormalizeNumbers must turn into int64 (for
// whole numbers) or float64 (otherwise) so the canonicalizer's "shortest
// encoding" rule does not depend on which JSON decoder produced the KU.
func TestNormalizeNumbersConvertsWholeNumbers(t *testing.T) {
	raw := []byte(`{"payload":{"n":42,"f":3.5,"nested":{"m":7},"list":[1,2.5]},"sources":[{"s":10}]}`)

	var decoded struct {
		Payload map[string]interface{}   `json:"payload"`
		Sources []map[string]interface{} `json:"sources"`
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}

	k := &KU{Payload: decoded.Payload, Sources: decoded.Sources}
	NormalizeNumbers(k)

	if v, ok := k.Payload["n"].(int64); !ok || v != 42 {
		t.Fatalf("expected payload.n to normalize to int64(42), got %#v", k.Payload["n"])
	}
	if v, ok := k.Payload["f"].(float64); !ok || v != 3.5 {
		t.Fatalf("expected payload.f to normalize to float64(3.5), got %#v", k.Payload["f"])
	}
	nested, ok := k.Payload["nested"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected payload.nested to remain a map, got %#v", k.Payload["nested"])
	}
	if v, ok := nested["m"].(int64); !ok || v != 7 {
		t.Fatalf("expected nested.m to normalize to int64(7), got %#v", nested["m"])
	}
	list, ok := k.Payload["list"].([]interface{})
	if !ok {
		t.Fatalf("expected payload.list to remain a slice, got %#v", k.Payload["list"])
	}
	if v, ok := list[0].(int64); !ok || v != 1 {
		t.Fatalf("expected list[0] to normalize to int64(1), got %#v", list[0])
	}
	if v, ok := list[1].(float64); !ok || v != 2.5 {
		t.Fatalf("expected list[1] to normalize to float64(2.5), got %#v", list[1])
	}
	if v, ok := k.Sources[0]["s"].(int64); !ok || v != 10 {
		t.Fatalf("expected sources[0].s to normalize to int64(10), got %#v", k.Sources[0]["s"])
	}
}
