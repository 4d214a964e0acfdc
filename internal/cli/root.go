package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfg    *Config
	client *Client
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cfg = DefaultConfig()

	rootCmd := &cobra.Command{
		Use:   "liveshard",
		Short: "Run or drive a liveshard session shard",
		Long: `liveshard runs a session shard (serve) and drives a running shard over
its JSON API: sessions, character rigs, receipts, game passes, moderation,
and the per-player state stream.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			client = NewClient(cfg.ServerURL, cfg.Executor)
			return nil
		},
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "Server URL (env: LIVESHARD_SERVER)")
	rootCmd.PersistentFlags().Int64Var(&cfg.Executor, "executor", cfg.Executor, "Developer user id for moderation (env: LIVESHARD_EXECUTOR)")
	rootCmd.PersistentFlags().StringVarP(&cfg.Output, "output", "o", cfg.Output, "Output format: text, json")
	rootCmd.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Verbose output")

	// Add subcommands
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newSessionCmd())
	rootCmd.AddCommand(newCharacterCmd())
	rootCmd.AddCommand(newReceiptCmd())
	rootCmd.AddCommand(newGamePassCmd())
	rootCmd.AddCommand(newModerationCmd())
	rootCmd.AddCommand(newEventsCmd())
	rootCmd.AddCommand(newHealthCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		var apiErr *Error
		if cfg.Verbose && errors.As(err, &apiErr) && apiErr.RequestID != "" {
			fmt.Fprintf(os.Stderr, "Request ID: %s\n", apiErr.RequestID)
		}
		os.Exit(1)
	}
}

func output(cmd *cobra.Command) *Output {
	return NewOutput(cfg.Output, cmd.OutOrStdout())
}
