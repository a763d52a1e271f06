package cli

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/voss-go/internal/client"
	"github.com/raphaelgruber/voss-go/internal/metrics"
	"github.com/spf13/cobra"
)

var statsServer string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show server runtime statistics",
	Long: `Show a running server's in-memory statistics: call counts and timings
for embeddings, completions and store queries, token usage, and how many
exchanges could not be indexed.

Examples:
  voss stats
  voss stats --server http://localhost:5000`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().StringVarP(&statsServer, "server", "s", "", "server URL (default VOSS_SERVER_URL or http://localhost:5000)")
}

func runStats(cmd *cobra.Command, args []string) error {
	stats, err := client.New(statsServer).Stats(context.Background())
	if err != nil {
		return fmt.Errorf("get server stats: %w", err)
	}
	printServerStats(stats)
	return nil
}

// printServerStats displays server runtime statistics.
func printServerStats(stats *metrics.Snapshot) {
	header("Server Statistics (in-memory, since restart)")
	fmt.Printf("Uptime: %.1f seconds\n", stats.UptimeSeconds)
	fmt.Printf("Exchanges not indexed: %d\n", stats.MemoryIndexSkipped)

	if stats.Embedding != nil {
		fmt.Printf("\nEmbeddings:\n")
		printOpStats(stats.Embedding)
	}

	if stats.LLMGenerate != nil {
		fmt.Printf("\nLLM Generate:\n")
		printOpStats(stats.LLMGenerate)
		printTokenStats(stats.LLMGenerate)
	}

	if stats.DBQuery != nil {
		fmt.Printf("\nDB Query:\n")
		printOpStats(stats.DBQuery)
	}

	if stats.DBSearch != nil {
		fmt.Printf("\nDB Search:\n")
		printOpStats(stats.DBSearch)
	}
}

// printOpStats displays timing statistics for an operation.
func printOpStats(op *metrics.OperationSnapshot) {
	fmt.Printf("  Calls: %d, Failures: %d, Total: %dms\n", op.Count, op.Failures, op.TotalTimeMs)
	fmt.Printf("  Time: avg %.1fms, min %dms, max %dms\n",
		op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs)
}

// printTokenStats displays token statistics if available.
func printTokenStats(op *metrics.OperationSnapshot) {
	if op.TotalInputTokens == nil || op.TotalOutputTokens == nil {
		return
	}
	fmt.Printf("  Tokens In:  %d total", *op.TotalInputTokens)
	if op.AvgInputTokens != nil {
		fmt.Printf(", avg %.0f", *op.AvgInputTokens)
	}
	fmt.Println()

	fmt.Printf("  Tokens Out: %d total", *op.TotalOutputTokens)
	if op.AvgOutputTokens != nil {
		fmt.Printf(", avg %.0f", *op.AvgOutputTokens)
	}
	fmt.Println()
}
