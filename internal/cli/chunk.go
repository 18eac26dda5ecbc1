package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/sdlcfactory/internal/chunk"
)

// chunkBatch is one batch as reported by the chunk command.
type chunkBatch struct {
	Index  int      `json:"index"`
	Tokens int      `json:"tokens"`
	Keys   []string `json:"keys,omitempty"`
	Lines  int      `json:"lines,omitempty"`
}

var chunkCmd = &cobra.Command{
	Use:   "chunk [file...]",
	Short: "Show how files would be batched under a token budget",
	Long: `Preview the batching applied before review calls. With one file the text is
split by lines; with several files each file is one block, as per-role code is.
Tokens are estimated at four characters per token.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		budget, _ := cmd.Flags().GetInt("budget")
		format, _ := cmd.Flags().GetString("format")

		var batches []chunkBatch
		if len(args) == 1 {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			for i, b := range chunk.Lines(string(data), budget) {
				batches = append(batches, chunkBatch{
					Index:  i + 1,
					Tokens: chunk.EstimateTokens(b),
					Lines:  len(chunk.SplitLines(b)),
				})
			}
		} else {
			blocks := make([]chunk.Block, 0, len(args))
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}
				blocks = append(blocks, chunk.Block{Key: path, Text: string(data)})
			}
			for i, batch := range chunk.Blocks(blocks, budget) {
				keys := make([]string, 0, len(batch))
				for _, b := range batch {
					keys = append(keys, b.Key)
				}
				batches = append(batches, chunkBatch{Index: i + 1, Tokens: chunk.Size(batch), Keys: keys})
			}
		}

		if format == "json" {
			return writeJSON(cmd, batches)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%d batch(es) at budget %d\n", len(batches), budget)
		for _, b := range batches {
			if b.Keys != nil {
				fmt.Fprintf(out, "  %d: ~%d tokens %v\n", b.Index, b.Tokens, b.Keys)
				continue
			}
			fmt.Fprintf(out, "  %d: ~%d tokens, %d lines\n", b.Index, b.Tokens, b.Lines)
		}
		return nil
	},
}

func init() {
	chunkCmd.Flags().Int("budget", 5800, "token budget per batch")
	chunkCmd.Flags().String("format", "text", "Output format: text or json")
}
