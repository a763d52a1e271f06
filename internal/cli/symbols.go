package cli

import (
	"fmt"
	"strings"

	"github.com/raphaelgruber/voss-go/internal/service"
	"github.com/spf13/cobra"
)

var symbolsCmd = &cobra.Command{
	Use:   "symbols [text...]",
	Short: "Show the symbol vocabulary or detect symbols in text",
	Long: `Without arguments, list the configured motifs (VOSS_SYMBOLS_FILE or the
built-in set). With text, print the symbols a chat message would reveal.

Examples:
  voss symbols
  voss symbols "I found a chain letter by the river"`,
	RunE: runSymbols,
}

func runSymbols(cmd *cobra.Command, args []string) error {
	vocab, err := service.LoadVocabulary(cfg.SymbolsFile)
	if err != nil {
		return err
	}

	if len(args) == 0 {
		motifs := vocab.Motifs()
		header(fmt.Sprintf("Motifs (%d)", len(motifs)))
		for _, m := range motifs {
			fmt.Printf("- %-14s %s\n", m.Keyword, defaultTheme.oracleStyle().Render(m.Symbol))
		}
		return nil
	}

	found := vocab.Detect(strings.Join(args, " "))
	if len(found) == 0 {
		fmt.Println("No symbols revealed.")
		return nil
	}
	for _, s := range found {
		fmt.Println(defaultTheme.oracleStyle().Render(s))
	}
	return nil
}
