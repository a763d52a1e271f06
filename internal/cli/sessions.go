package cli

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/voss-go/internal/app"
	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage login sessions",
}

var sessionsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete expired sessions",
	Args:  cobra.NoArgs,
	RunE:  runSessionsPrune,
}

func init() {
	sessionsCmd.AddCommand(sessionsPruneCmd)
}

func runSessionsPrune(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx, app.Options{})
	if err != nil {
		return err
	}
	n, err := a.DB.DeleteExpiredSessions(ctx)
	if err != nil {
		return fmt.Errorf("prune sessions: %w", err)
	}
	fmt.Printf("Removed %d expired session(s).\n", n)
	return nil
}
