package main

import (
	"os"

	"github.com/mcoot/liveshard/internal/cli"
)

// server runs a shard directly; it is the same as `liveshard serve`
func main() {
	cmd := cli.NewServeCmd()
	cmd.Use = "server"
	cmd.SilenceUsage = true
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
