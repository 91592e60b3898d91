package trust

import (
	"crypto/ed25519"
	"encoding/base64"

	"github.com/fxamacker/cbor/v2"

	"github.com/sgn-project/sgnd/errors"
	"github.com/sgn-project/sgnd/ku"
)

// rotationPayload is the canonicalized subset of AttestationRotateKey
// signed by prev_sig: everything except prev_sig itself.
type rotationPayload struct {
	PrevKeyID string `cbor:"prev_key_id"`
	NewKeyID  string `cbor:"new_key_id"`
	Reason    string `cbor:"reason"`
	Ts        string `cbor:"ts"`
}

// ApplyRotation processes a "ku.attestation.rotate_key" KU per §4.3:
// verify prev_sig over the canonical bytes of the payload using
// prevPub, check is_trusted(prev_key_id), then add(new_key_id) and,
// if the stated reason is "compromised", also revoke prev_key_id.
func (s *Store) ApplyRotation(payload *ku.AttestationRotateKey, prevPub ed25519.PublicKey) error {
	encMode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return errors.Wrap(err, "building canonical cbor encoder")
	}
	bytes, err := encMode.Marshal(rotationPayload{
		PrevKeyID: payload.PrevKeyID,
		NewKeyID:  payload.NewKeyID,
		Reason:    payload.Reason,
		Ts:        payload.Ts,
	})
	if err != nil {
		return errors.Wrap(err, "canonicalizing rotation payload")
	}

	sig, err := base64.RawURLEncoding.DecodeString(payload.PrevSig)
	if err != nil {
		return errors.Wrap(err, "decoding prev_sig")
	}
	if !ed25519.Verify(prevPub, bytes, sig) {
		return errors.New("rotation attestation: prev_sig does not verify")
	}

	decision := s.IsTrusted(payload.PrevKeyID)
	if !decision.Trusted {
		return errors.Newf("rotation attestation: prev_key_id not trusted (%s)", decision.Reason)
	}

	if err := s.Add(payload.NewKeyID, nil); err != nil {
		return errors.Wrap(err, "adding rotated key")
	}

	if payload.Reason == "compromised" {
		if err := s.Revoke(payload.PrevKeyID, "rotated_due_to_compromise"); err != nil {
			return errors.Wrap(err, "revoking compromised key")
		}
	}
	return nil
}
