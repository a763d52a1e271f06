package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/raphaelgruber/voss-go/internal/app"
	"github.com/raphaelgruber/voss-go/internal/models"
	"github.com/raphaelgruber/voss-go/internal/service"
	"github.com/spf13/cobra"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List registered users",
	Long: `List every registered user with tone, lore act and collected symbols.

Examples:
  voss users
  voss users -v`,
	Args: cobra.NoArgs,
	RunE: runUsers,
}

func runUsers(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx, app.Options{})
	if err != nil {
		return err
	}

	users, err := a.Identity.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	if len(users) == 0 {
		fmt.Println("No users found.")
		return nil
	}

	header(fmt.Sprintf("Users (%d)", len(users)))
	for _, u := range users {
		fmt.Printf("- %s [%s] %s\n", u.Username, u.Profile.Tone, defaultTheme.hintStyle().Render(u.Act))
		if verbose {
			fmt.Printf("  id: %s, age: %d, chats: %d\n", u.ActorID(), u.Profile.Age, len(u.ThreadIDs))
			if len(u.Symbols) > 0 {
				fmt.Printf("  symbols: %s\n", strings.Join(u.Symbols, ", "))
			}
			if u.Profile.Custom != "" {
				fmt.Printf("  custom: %s\n", u.Profile.Custom)
			}
		}
	}
	return nil
}

// lookupUser resolves a username to its record.
func lookupUser(ctx context.Context, a *app.App, name string) (*models.User, error) {
	user, err := a.DB.GetUserByUsername(ctx, service.NormalizeUsername(name))
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user not found: %s", name)
	}
	return user, nil
}
