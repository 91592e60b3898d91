package ingest

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"

	"github.com/sgn-project/sgnd/errors"
)

// parsePubPEM decodes a PEM-encoded SPKI public key and asserts it is
// Ed25519, the only algorithm §4.2 signs with.
func parsePubPEM(pemStr string) (ed25519.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, errors.New("pub_pem: not valid PEM")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, errors.Wrap(err, "pub_pem: parse SPKI")
	}
	edPub, ok := pub.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("pub_pem: not an ed25519 key")
	}
	return edPub, nil
}
