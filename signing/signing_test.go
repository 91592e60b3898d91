package signing

import (
	"crypto/ed25519"
	"testing"

	"github.com/sgn-project/sgnd/errors"
	"github.com/sgn-project/sgnd/ku"
)

func sampleKU() *ku.KU {
	return &ku.KU{
		SchemaID:    "ku.v1",
		Type:        "ku.note",
		ContentType: "application/json",
		Payload:     map[string]interface{}{"title": "T"},
		Parents:     []string{},
		Sources:     []map[string]interface{}{},
		Tests:       []string{},
		Tags:        []string{},
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}

	k := sampleKU()
	if err := Sign(k, priv, pub); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if err := Verify(k, pub); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerifyTamperedSignature(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}

	k := sampleKU()
	if err := Sign(k, priv, pub); err != nil {
		t.Fatal(err)
	}

	tampered := []byte(k.Sig.Signature)
	tampered[0] ^= 0xFF
	k.Sig.Signature = string(tampered)

	err = Verify(k, pub)
	if err == nil {
		t.Fatal("expected verification failure on tampered signature")
	}
	var verr *VerifyError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *VerifyError, got %T: %v", err, err)
	}
}

func TestVerifyTamperedPayload(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}

	k := sampleKU()
	if err := Sign(k, priv, pub); err != nil {
		t.Fatal(err)
	}
	k.Payload["title"] = "tampered"

	if err := Verify(k, pub); err == nil {
		t.Fatal("expected verification failure after payload tamper")
	}
}

func TestVerifyMissingSig(t *testing.T) {
	pub, _, _ := ed25519.GenerateKey(nil)
	k := sampleKU()
	err := Verify(k, pub)
	var verr *VerifyError
	if !errors.As(err, &verr) || verr.Reason != ReasonMissingSig {
		t.Fatalf("expected missing_sig, got %v", err)
	}
}

func TestKeyIDDeterministic(t *testing.T) {
	pub1, _, _ := ed25519.GenerateKey(nil)
	pub2, _, _ := ed25519.GenerateKey(nil)

	id1a, err := KeyID(pub1)
	if err != nil {
		t.Fatal(err)
	}
	id1b, err := KeyID(pub1)
	if err != nil {
		t.Fatal(err)
	}
	id2, err := KeyID(pub2)
	if err != nil {
		t.Fatal(err)
	}

	if id1a != id1b {
		t.Fatalf("key_id must depend only on pub: %s != %s", id1a, id1b)
	}
	if id1a == id2 {
		t.Fatalf("different keys must yield different ids")
	}
}
