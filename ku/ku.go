// Package ku defines the Knowledge Unit document model: the signed,
// content-addressed JSON record gossiped between daemons.
package ku

import (
	"encoding/json"

	"github.com/sgn-project/sgnd/errors"
)

// Sig is the detached Ed25519 signature attached to a signed KU.
type Sig struct {
	Alg       string `json:"alg" cbor:"alg"`
	Prehash   string `json:"prehash" cbor:"prehash"`
	Context   string `json:"context" cbor:"context"`
	KeyID     string `json:"key_id" cbor:"key_id"`
	Signature string `json:"signature" cbor:"signature"` // base64url, unpadded
}

const (
	SigAlg     = "ed25519"
	SigPrehash = "none"
	SigContext = "sgn-ku-v1"
)

// Provenance carries the signing key and creation timestamp of a KU.
type Provenance struct {
	AgentPubkey string `json:"agent_pubkey" cbor:"agent_pubkey"`
	CreatedAt   string `json:"created_at,omitempty" cbor:"created_at,omitempty"`
}

// KU is a Knowledge Unit as defined in §3 of the data model: an ordered
// record of required fields plus an optional detached signature.
type KU struct {
	SchemaID    string                 `json:"schema_id" cbor:"schema_id"`
	Type        string                 `json:"type" cbor:"type"`
	ContentType string                 `json:"content_type" cbor:"content_type"`
	Payload     map[string]interface{} `json:"payload" cbor:"payload"`
	Parents     []string               `json:"parents" cbor:"parents"`
	Sources     []map[string]interface{} `json:"sources" cbor:"sources"`
	Tests       []string               `json:"tests" cbor:"tests"`
	Provenance  Provenance             `json:"provenance" cbor:"provenance"`
	Tags        []string               `json:"tags" cbor:"tags"`

	Sig *Sig `json:"sig,omitempty" cbor:"sig,omitempty"`
	// Signatures is a legacy multi-sig field. Never populated by this
	// implementation but stripped during canonicalization if present on
	// KUs received from other nodes.
	Signatures []Sig `json:"signatures,omitempty" cbor:"signatures,omitempty"`
}

const DefaultContentType = "application/json"

// AttestationRotateKey is the payload shape of a "ku.attestation.rotate_key" KU.
type AttestationRotateKey struct {
	PrevKeyID string `json:"prev_key_id"`
	NewKeyID  string `json:"new_key_id"`
	Reason    string `json:"reason"`
	Ts        string `json:"ts"`
	PrevSig   string `json:"prev_sig"`
}

const TypeAttestationRotateKey = "ku.attestation.rotate_key"

// Validate checks invariant 2 of §3: all non-sig required fields are
// present and the listed array fields are arrays (never null in JSON
// terms — callers should default to empty slices before this call).
func Validate(k *KU) error {
	if k.SchemaID == "" {
		return errors.New("missing schema_id")
	}
	if k.Type == "" {
		return errors.New("missing type")
	}
	if k.ContentType == "" {
		return errors.New("missing content_type")
	}
	if k.Payload == nil {
		return errors.New("missing payload")
	}
	if k.Parents == nil {
		return errors.New("parents must be an array")
	}
	if k.Sources == nil {
		return errors.New("sources must be an array")
	}
	if k.Tests == nil {
		return errors.New("tests must be an array")
	}
	if k.Tags == nil {
		return errors.New("tags must be an array")
	}
	return nil
}

// ParsePayload re-decodes a KU's payload into a typed struct, used for
// the narrow set of payload shapes this daemon understands (e.g. key
// rotation attestations).
func ParsePayload(k *KU, out interface{}) error {
	raw, err := json.Marshal(k.Payload)
	if err != nil {
		return errors.Wrap(err, "re-encoding payload")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Wrap(err, "decoding payload")
	}
	return nil
}

// NormalizeNumbers walks Payload and every entry of Sources, replacing each
// json.Number leaf (produced by a decoder configured with UseNumber) with
// an int64 if it parses as a whole number, or a float64 otherwise. Without
// this, every JSON number decodes to float64 and the canonicalizer CBOR-
// encodes it as a floating-point value regardless of whether the literal
// was a whole number, violating §4.1 step 2's "integers use the shortest
// encoding" rule and making canonical bytes (and therefore the CID and any
// signature over it) depend on which JSON decoder produced the KU.
func NormalizeNumbers(k *KU) {
	if k.Payload != nil {
		k.Payload = normalizeValue(k.Payload).(map[string]interface{})
	}
	for i, src := range k.Sources {
		if src != nil {
			k.Sources[i] = normalizeValue(src).(map[string]interface{})
		}
	}
}

func normalizeValue(v interface{}) interface{} {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]interface{}:
		for k, vv := range t {
			t[k] = normalizeValue(vv)
		}
		return t
	case []interface{}:
		for i, vv := range t {
			t[i] = normalizeValue(vv)
		}
		return t
	default:
		return v
	}
}
