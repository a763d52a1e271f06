package cli

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/voss-go/internal/app"
	"github.com/raphaelgruber/voss-go/internal/models"
	"github.com/spf13/cobra"
)

var historyLimit int

var chatsCmd = &cobra.Command{
	Use:   "chats <name>",
	Short: "List a user's chats",
	Long: `List a user's chats, most recently updated first.

Examples:
  voss chats nyx`,
	Args: cobra.ExactArgs(1),
	RunE: runChats,
}

var historyCmd = &cobra.Command{
	Use:   "history <name> <chat-id>",
	Short: "Print the turns of a chat",
	Long: `Print the turns of one of the user's chats in order. The first turn is
the oracle's greeting.

Examples:
  voss history nyx 0b7c...
  voss history nyx 0b7c... --limit 5`,
	Args: cobra.ExactArgs(2),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 0, "show only the last n turns (0 = all)")
}

func runChats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx, app.Options{})
	if err != nil {
		return err
	}
	user, err := lookupUser(ctx, a, args[0])
	if err != nil {
		return err
	}

	chats, err := a.DB.ListThreads(ctx, user.ActorID())
	if err != nil {
		return fmt.Errorf("list chats: %w", err)
	}
	if len(chats) == 0 {
		fmt.Println("No chats found.")
		return nil
	}

	header(fmt.Sprintf("Chats of %s (%d)", user.Username, len(chats)))
	for _, c := range chats {
		id, err := models.RecordIDString(c.ID)
		if err != nil {
			continue
		}
		fmt.Printf("- %s  %s\n", id, c.Title)
		if verbose {
			fmt.Printf("  %s\n", defaultTheme.hintStyle().Render(c.Preview))
			fmt.Printf("  updated %s\n", c.UpdatedAt.Format("2006-01-02 15:04"))
		}
	}
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx, app.Options{})
	if err != nil {
		return err
	}
	user, err := lookupUser(ctx, a, args[0])
	if err != nil {
		return err
	}

	thread, err := a.DB.GetThread(ctx, args[1])
	if err != nil {
		return fmt.Errorf("get chat: %w", err)
	}
	if thread == nil || thread.Owner != user.ActorID() {
		return fmt.Errorf("chat not found: %s", args[1])
	}

	turns := thread.Turns
	if historyLimit > 0 && len(turns) > historyLimit {
		turns = turns[len(turns)-historyLimit:]
	}

	header(fmt.Sprintf("%s (%d turns)", thread.Title, len(thread.Turns)))
	for _, t := range turns {
		printTurn(t)
	}
	return nil
}

func printTurn(t models.Turn) {
	if t.User != "" {
		fmt.Printf("%s %s\n", defaultTheme.headerStyle().Render("you:"), t.User)
	}
	fmt.Printf("%s %s\n\n", defaultTheme.oracleStyle().Render("voss:"), t.Assistant)
}
