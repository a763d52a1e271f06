package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/raphaelgruber/voss-go/internal/app"
	"github.com/raphaelgruber/voss-go/internal/models"
	"github.com/spf13/cobra"
)

var actCmd = &cobra.Command{
	Use:   "act <name> <act>",
	Short: "Move a user to another lore act",
	Long: `Move a user to another lore act. The act can be given as its number,
its full title or the word after the dash.

Acts:
  1  Act I – The Wound
  2  Act II – The Reckoning
  3  Act III – The Return

Examples:
  voss act nyx 2
  voss act nyx reckoning`,
	Args: cobra.ExactArgs(2),
	RunE: runAct,
}

func runAct(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	act, ok := parseAct(args[1])
	if !ok {
		return fmt.Errorf("unknown act: %s", args[1])
	}

	a, err := openApp(ctx, app.Options{})
	if err != nil {
		return err
	}
	user, err := lookupUser(ctx, a, args[0])
	if err != nil {
		return err
	}
	if err := a.Identity.SetAct(ctx, user.ActorID(), act); err != nil {
		return fmt.Errorf("set act: %w", err)
	}

	fmt.Println(defaultTheme.successStyle().Render(fmt.Sprintf("%s is now in %s", user.Username, act)))
	return nil
}

// parseAct accepts "2", "Act II – The Reckoning", "the reckoning" or "reckoning".
func parseAct(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		if n < 1 || n > len(models.Acts) {
			return "", false
		}
		return models.Acts[n-1], true
	}
	want := strings.ToLower(s)
	for _, act := range models.Acts {
		lower := strings.ToLower(act)
		if lower == want {
			return act, true
		}
		_, title, found := strings.Cut(lower, " – ")
		if found && (title == want || strings.TrimPrefix(title, "the ") == want) {
			return act, true
		}
	}
	return "", false
}
