// Package signing implements the Signer/Verifier (C2): detached Ed25519
// signatures over a KU's canonical bytes, and the stable key identifier
// derived from a public key's SPKI DER encoding.
package signing

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"

	"github.com/multiformats/go-multibase"

	"github.com/sgn-project/sgnd/canon"
	"github.com/sgn-project/sgnd/errors"
	"github.com/sgn-project/sgnd/ku"
)

// Reason is a stable verify-failure code, matching §4.2 exactly.
type Reason string

const (
	ReasonMissingSig     Reason = "missing_sig"
	ReasonBadSigHeader   Reason = "bad_sig_header"
	ReasonKeyMismatch    Reason = "key_mismatch"
	ReasonBadSignature   Reason = "bad_signature"
)

// VerifyError wraps a verify failure reason so callers can branch on it
// with errors.As without string matching.
type VerifyError struct {
	Reason Reason
}

func (e *VerifyError) Error() string { return string(e.Reason) }

func fail(reason Reason) error {
	return errors.WithStack(&VerifyError{Reason: reason})
}

// KeyID derives key_id(pub) = base32lower(sha256(SPKI-DER(pub))).
func KeyID(pub ed25519.PublicKey) (string, error) {
	spki, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", errors.Wrap(err, "marshaling SPKI DER")
	}
	sum := sha256.Sum256(spki)
	encoded, err := multibase.Encode(multibase.Base32, sum[:])
	if err != nil {
		return "", errors.Wrap(err, "base32 encoding key id")
	}
	return encoded[1:], nil // drop multibase's leading base-identifier byte
}

// Sign attaches a detached Ed25519 signature to k. k.Sig must be nil; the
// caller is responsible for not double-signing.
func Sign(k *ku.KU, priv ed25519.PrivateKey, pub ed25519.PublicKey) error {
	if k.Sig != nil {
		return errors.New("ku is already signed")
	}

	keyID, err := KeyID(pub)
	if err != nil {
		return err
	}

	canonical, err := canon.CanonicalBytes(k)
	if err != nil {
		return errors.Wrap(err, "canonicalizing ku for signing")
	}

	sig := ed25519.Sign(priv, canonical)

	k.Sig = &ku.Sig{
		Alg:       ku.SigAlg,
		Prehash:   ku.SigPrehash,
		Context:   ku.SigContext,
		KeyID:     keyID,
		Signature: base64.RawURLEncoding.EncodeToString(sig),
	}
	return nil
}

// Verify recomputes canonical bytes with sig stripped, recomputes key_id
// from pub, checks it against sig.key_id, then checks the Ed25519
// signature. Returns a *VerifyError with one of the four reasons in §4.2
// on failure.
func Verify(k *ku.KU, pub ed25519.PublicKey) error {
	if k.Sig == nil {
		return fail(ReasonMissingSig)
	}
	sig := k.Sig

	if sig.Alg != ku.SigAlg || sig.Prehash != ku.SigPrehash || sig.Context != ku.SigContext {
		return fail(ReasonBadSigHeader)
	}

	keyID, err := KeyID(pub)
	if err != nil {
		return errors.Wrap(err, "deriving key id for verification")
	}
	if keyID != sig.KeyID {
		return fail(ReasonKeyMismatch)
	}

	canonical, err := canon.CanonicalBytes(k)
	if err != nil {
		return errors.Wrap(err, "canonicalizing ku for verification")
	}

	rawSig, err := base64.RawURLEncoding.DecodeString(sig.Signature)
	if err != nil {
		return fail(ReasonBadSignature)
	}

	if !ed25519.Verify(pub, canonical, rawSig) {
		return fail(ReasonBadSignature)
	}
	return nil
}
