// Package canon implements the Canonicalizer (C1): deterministic byte
// encoding of a Knowledge Unit and its content identifier.
package canon

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-multihash"

	"github.com/sgn-project/sgnd/errors"
	"github.com/sgn-project/sgnd/ku"
)

// cidPrefix is the legacy string label fixed by wire compatibility; the
// hash underneath is SHA-256, never BLAKE3 — see the normative resolution
// in the design notes.
const cidPrefix = "cid-blake3:"

var encMode = mustEncMode()

func mustEncMode() cbor.EncMode {
	m, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return m
}

// unsigned is the wire shape encoded for canonicalization: every KU field
// except sig/signatures, in a fixed struct field order. CBOR canonical mode
// sorts map keys regardless, but an explicit struct (rather than a
// map[string]interface{} built by hand) keeps the set of fields exactly
// pinned to the data model in §3.
type unsigned struct {
	SchemaID    string                    `cbor:"schema_id"`
	Type        string                    `cbor:"type"`
	ContentType string                    `cbor:"content_type"`
	Payload     map[string]interface{}    `cbor:"payload"`
	Parents     []string                  `cbor:"parents"`
	Sources     []map[string]interface{}  `cbor:"sources"`
	Tests       []string                  `cbor:"tests"`
	Provenance  ku.Provenance             `cbor:"provenance"`
	Tags        []string                  `cbor:"tags"`
}

func stripSig(k *ku.KU) unsigned {
	return unsigned{
		SchemaID:    k.SchemaID,
		Type:        k.Type,
		ContentType: k.ContentType,
		Payload:     k.Payload,
		Parents:     k.Parents,
		Sources:     k.Sources,
		Tests:       k.Tests,
		Provenance:  k.Provenance,
		Tags:        k.Tags,
	}
}

// CanonicalBytes produces the deterministic CBOR encoding of k with sig
// and signatures removed, per §4.1 steps 1-2.
func CanonicalBytes(k *ku.KU) ([]byte, error) {
	b, err := encMode.Marshal(stripSig(k))
	if err != nil {
		return nil, errors.Wrap(err, "canonical cbor encoding")
	}
	return b, nil
}

// CID computes the content identifier of k: SHA-256 of the canonical
// bytes, wrapped as a CIDv1 (dag-cbor / sha2-256), base32-lower (no
// padding) encoded, and prefixed with the legacy "cid-blake3:" label.
func CID(k *ku.KU) (string, error) {
	canonical, err := CanonicalBytes(k)
	if err != nil {
		return "", err
	}
	return CIDFromBytes(canonical)
}

// CIDFromBytes wraps already-canonicalized bytes into a CID string. Exposed
// separately so the attestation rotation flow can CID-address a bare
// payload without round-tripping it through a full KU.
func CIDFromBytes(canonical []byte) (string, error) {
	mh, err := multihash.Sum(canonical, multihash.SHA2_256, -1)
	if err != nil {
		return "", errors.Wrap(err, "computing sha2-256 multihash")
	}
	c := cid.NewCidV1(cid.DagCBOR, mh)
	encoded, err := multibase.Encode(multibase.Base32, c.Bytes())
	if err != nil {
		return "", errors.Wrap(err, "base32 encoding cid")
	}
	// multibase.Encode prepends its own one-character base identifier
	// ('b' for base32-lower); strip it, the spec's prefix replaces it.
	return cidPrefix + encoded[1:], nil
}
