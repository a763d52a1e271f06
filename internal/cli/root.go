// Package cli provides the command-line interface for voss.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/raphaelgruber/voss-go/internal/app"
	"github.com/raphaelgruber/voss-go/internal/config"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose bool

	cfg      config.Config
	logger   *slog.Logger
	closeLog = func() error { return nil }

	// Lazily built on first use; commands that only talk to a remote
	// server never connect to the database.
	voss *app.App

	stdin = bufio.NewReader(os.Stdin)
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "voss",
	Short: "Administer and talk to the V.O.S.S. oracle",
	Long: `voss manages the V.O.S.S. chat backend: accounts, chats, the echo
memory and the symbolic vocabulary. The chat command talks to a running
voss-server instead of the database.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.Load()
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		logger, closeLog = config.SetupLogger("voss-cli", cfg.LogFile, level)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if voss != nil {
			if err := voss.Close(context.Background()); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
			}
		}
		_ = closeLog()
	},
}

// openApp connects to the database and builds the requested providers.
func openApp(ctx context.Context, opts app.Options) (*app.App, error) {
	if voss != nil && (!opts.Embeddings || voss.Memory != nil) && (!opts.Completion || voss.Conversation != nil) {
		return voss, nil
	}
	if voss != nil {
		_ = voss.Close(ctx)
	}
	a, err := app.New(ctx, cfg, logger, opts)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	voss = a
	return voss, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(usersCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(actCmd)
	rootCmd.AddCommand(chatsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(recallCmd)
	rootCmd.AddCommand(symbolsCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(wipeCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(statsCmd)
}
