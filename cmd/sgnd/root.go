package main

import (
	"github.com/spf13/cobra"

	"github.com/sgn-project/sgnd/internal/version"
)

var rootCmd = &cobra.Command{
	Use:           "sgnd",
	Short:         "Gossip daemon for signed, content-addressed knowledge units",
	Version:       version.Get().String(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(keygenCmd)
	rootCmd.AddCommand(trustCmd)
	rootCmd.AddCommand(versionCmd)
}
