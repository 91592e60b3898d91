package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sgn-project/sgnd/errors"
	"github.com/sgn-project/sgnd/signing"
)

var keygenOut string

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an Ed25519 signing keypair and print its key_id",
	RunE: func(cmd *cobra.Command, args []string) error {
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return errors.Wrap(err, "generating keypair")
		}

		keyID, err := signing.KeyID(pub)
		if err != nil {
			return errors.Wrap(err, "computing key_id")
		}

		pubDER, err := x509.MarshalPKIXPublicKey(pub)
		if err != nil {
			return errors.Wrap(err, "marshaling public key")
		}
		privDER, err := x509.MarshalPKCS8PrivateKey(priv)
		if err != nil {
			return errors.Wrap(err, "marshaling private key")
		}

		pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
		privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})

		if keygenOut == "" {
			fmt.Printf("key_id: %s\n\n%s\n%s", keyID, pubPEM, privPEM)
			return nil
		}

		if err := os.WriteFile(keygenOut+".pub.pem", pubPEM, 0644); err != nil {
			return errors.Wrap(err, "writing public key")
		}
		if err := os.WriteFile(keygenOut+".key.pem", privPEM, 0600); err != nil {
			return errors.Wrap(err, "writing private key")
		}
		fmt.Printf("key_id: %s\nwrote %s.pub.pem and %s.key.pem\n", keyID, keygenOut, keygenOut)
		return nil
	},
}

func init() {
	keygenCmd.Flags().StringVar(&keygenOut, "out", "", "file prefix to write <out>.pub.pem/<out>.key.pem instead of stdout")
}
