// Command sgnd runs the gossip daemon: the HTTP publish/verify surface,
// the WebSocket fan-out hub, and the trust policy engine.
package main

import (
	"os"

	"github.com/sgn-project/sgnd/logger"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.Errorw("command failed", "error", err)
		os.Exit(1)
	}
}
