package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/raphaelgruber/voss-go/internal/app"
	"github.com/raphaelgruber/voss-go/internal/prompt"
	"github.com/spf13/cobra"
)

var recallLimit int

var recallCmd = &cobra.Command{
	Use:   "recall <name> <query...>",
	Short: "Show the echoes a message would retrieve",
	Long: `Run echo retrieval for a user exactly as a chat message would and print
the entries that would be placed in the prompt, most similar first.

Examples:
  voss recall nyx "what does the mirror mean?"
  voss recall nyx tower -k 5`,
	Args: cobra.MinimumNArgs(2),
	RunE: runRecall,
}

func init() {
	recallCmd.Flags().IntVarP(&recallLimit, "limit", "k", 0, "number of echoes (default VOSS_ECHO_LIMIT)")
}

func runRecall(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx, app.Options{Embeddings: true})
	if err != nil {
		return err
	}
	user, err := lookupUser(ctx, a, args[0])
	if err != nil {
		return err
	}

	limit := recallLimit
	if limit <= 0 {
		limit = cfg.EchoLimit
	}
	query := strings.Join(args[1:], " ")

	total, err := a.DB.CountMemories(ctx, user.ActorID())
	if err != nil {
		return fmt.Errorf("count memories: %w", err)
	}

	echoes := a.Memory.Retrieve(ctx, user.ActorID(), query, limit)
	header(fmt.Sprintf("Echoes for %q (%d of %d stored)", query, len(echoes), total))
	if len(echoes) == 0 {
		fmt.Println(defaultTheme.hintStyle().Render("No echoes. Retrieval failures are logged with -v."))
		return nil
	}
	for i, e := range echoes {
		fmt.Printf("%d. %s  %s\n", i+1, defaultTheme.oracleStyle().Render(fmt.Sprintf("[%.3f]", e.Distance)), prompt.FormatEcho(e))
		if verbose {
			thread := "-"
			if e.Thread != nil {
				thread = *e.Thread
			}
			fmt.Printf("   tone: %s, chat: %s, at: %s\n", e.Tone, thread, e.CreatedAt.Format("2006-01-02 15:04"))
		}
	}
	return nil
}
