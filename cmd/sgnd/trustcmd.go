package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sgn-project/sgnd/errors"
	"github.com/sgn-project/sgnd/trust"
)

var trustPath string

var trustCmd = &cobra.Command{
	Use:   "trust",
	Short: "Inspect and edit the trust policy document",
}

var trustAddCmd = &cobra.Command{
	Use:   "add <key_id>",
	Short: "Add a key_id to the allow-list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := trust.Open(trustPath, nil)
		if err != nil {
			return errors.Wrap(err, "opening trust store")
		}
		if err := store.Add(args[0], nil); err != nil {
			return errors.Wrap(err, "adding key")
		}
		fmt.Printf("added %s to allow-list\n", args[0])
		return nil
	},
}

var trustRevokeCmd = &cobra.Command{
	Use:   "revoke <key_id> <reason>",
	Short: "Revoke a key_id",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := trust.Open(trustPath, nil)
		if err != nil {
			return errors.Wrap(err, "opening trust store")
		}
		if err := store.Revoke(args[0], args[1]); err != nil {
			return errors.Wrap(err, "revoking key")
		}
		fmt.Printf("revoked %s: %s\n", args[0], args[1])
		return nil
	},
}

var trustModeCmd = &cobra.Command{
	Use:   "mode [enforce|warn]",
	Short: "Show or set the trust mode",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := trust.Open(trustPath, nil)
		if err != nil {
			return errors.Wrap(err, "opening trust store")
		}
		if len(args) == 0 {
			fmt.Println(store.Mode())
			return nil
		}
		if err := store.SetMode(args[0]); err != nil {
			return errors.Wrap(err, "setting trust mode")
		}
		fmt.Printf("trust mode set to %s\n", args[0])
		return nil
	},
}

func init() {
	trustCmd.PersistentFlags().StringVar(&trustPath, "trust-file", "./trust.json", "path to the trust JSON document")
	trustCmd.AddCommand(trustAddCmd, trustRevokeCmd, trustModeCmd)
}
