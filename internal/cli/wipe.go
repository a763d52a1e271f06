package cli

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/voss-go/internal/app"
	"github.com/spf13/cobra"
)

var wipeForce bool

var wipeCmd = &cobra.Command{
	Use:   "wipe",
	Short: "Delete all users, sessions, chats and memories",
	Long: `Delete every record from the database. The schema is kept.
Requires confirmation unless --force is used.

Examples:
  voss wipe
  voss wipe --force`,
	Args: cobra.NoArgs,
	RunE: runWipe,
}

func init() {
	wipeCmd.Flags().BoolVarP(&wipeForce, "force", "f", false, "skip confirmation")
}

func runWipe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if !wipeForce {
		fmt.Printf("About to delete all data in %s/%s\n", cfg.SurrealDBNamespace, cfg.SurrealDBDatabase)
		ok, err := confirm("\nContinue?")
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	a, err := openApp(ctx, app.Options{})
	if err != nil {
		return err
	}
	if err := a.WipeData(ctx); err != nil {
		return fmt.Errorf("wipe: %w", err)
	}

	fmt.Println(defaultTheme.successStyle().Render("Database wiped."))
	return nil
}
