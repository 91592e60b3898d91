package canon

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sgn-project/sgnd/ku"
)

func sampleKU() *ku.KU {
	return &ku.KU{
		SchemaID:    "ku.v1",
		Type:        "ku.note",
		ContentType: "application/json",
		Payload:     map[string]interface{}{"title": "T", "n": int64(42)},
		Parents:     []string{},
		Sources:     []map[string]interface{}{},
		Tests:       []string{},
		Tags:        []string{"x"},
		Provenance:  ku.Provenance{AgentPubkey: ""},
	}
}

// TestCIDDeterministic covers P1: building the same logical KU via two
// different map-literal key orders must yield the same CID, because Go
// maps carry no order and canonical CBOR sorts keys regardless.
func TestCIDDeterministic(t *testing.T) {
	a := sampleKU()
	b := sampleKU()
	b.Payload = map[string]interface{}{"n": int64(42), "title": "T"}

	cidA, err := CID(a)
	if err != nil {
		t.Fatalf("CID(a): %v", err)
	}
	cidB, err := CID(b)
	if err != nil {
		t.Fatalf("CID(b): %v", err)
	}
	if cidA != cidB {
		t.Fatalf("expected identical CIDs, got %s vs %s", cidA, cidB)
	}
}

func TestCIDStripsSignature(t *testing.T) {
	unsignedCID, err := CID(sampleKU())
	if err != nil {
		t.Fatal(err)
	}

	signed := sampleKU()
	signed.Sig = &ku.Sig{Alg: "ed25519", Prehash: "none", Context: "sgn-ku-v1", KeyID: "abc", Signature: "xyz"}
	signedCID, err := CID(signed)
	if err != nil {
		t.Fatal(err)
	}

	if unsignedCID != signedCID {
		t.Fatalf("sig field must not affect CID: %s vs %s", unsignedCID, signedCID)
	}
}

// TestCIDMatchesAcrossJSONAndLiteralConstruction covers the regression
// behind P1/§4.1 step 2: a KU built by decoding real JSON (where every
// number first lands as json.Number, then ku.NormalizeNumbers per the
// ingest path) must canonicalize identically to one built with Go
// integer literals directly, since both represent the same whole-number
// payload field and the spec mandates the shortest CBOR encoding for it.
func TestCIDMatchesAcrossJSONAndLiteralConstruction(t *testing.T) {
	literal := sampleKU()

	raw := []byte(`{"schema_id":"ku.v1","type":"ku.note","content_type":"application/json","payload":{"title":"T","n":42},"parents":[],"sources":[],"tests":[],"tags":["x"],"provenance":{"agent_pubkey":""}}`)
	var decoded ku.KU
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	ku.NormalizeNumbers(&decoded)

	literalCID, err := CID(literal)
	if err != nil {
		t.Fatalf("CID(literal): %v", err)
	}
	decodedCID, err := CID(&decoded)
	if err != nil {
		t.Fatalf("CID(decoded): %v", err)
	}
	if literalCID != decodedCID {
		t.Fatalf("expected identical CIDs for the same whole-number payload field, got %s vs %s", literalCID, decodedCID)
	}
}

func TestCIDPrefix(t *testing.T) {
	c, err := CID(sampleKU())
	if err != nil {
		t.Fatal(err)
	}
	if len(c) <= len(cidPrefix) || c[:len(cidPrefix)] != cidPrefix {
		t.Fatalf("expected %q prefix, got %s", cidPrefix, c)
	}
}
