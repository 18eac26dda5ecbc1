// Package chunk splits oversized artifacts into size-bounded batches so each
// batch fits the context budget of a capacity-limited generation call.
//
// Sizes are measured in approximate tokens (see EstimateTokens). Packing is
// greedy, single pass and order preserving: flattening the returned batches
// reproduces the input entries exactly.
package chunk

import "strings"

// CharsPerToken is the character-to-token ratio used by EstimateTokens.
const CharsPerToken = 4

// EstimateTokens approximates the token count of text as len(text)/4.
// It is the only size estimator used for batching.
func EstimateTokens(text string) int {
	return len(text) / CharsPerToken
}

// Block is one keyed entry of a mapping-shaped artifact, e.g. one role's code.
type Block struct {
	Key  string `json:"key"`
	Text string `json:"text"`
}

// Pack greedily groups entries into batches whose summed size stays within
// budget. A batch is closed only when adding the next entry would exceed the
// budget and the batch already holds something, so an entry larger than the
// budget is placed alone rather than dropped or split. A budget below 1 is
// treated as 1. Empty input yields nil.
func Pack[T any](entries []T, budget int, size func(T) int) [][]T {
	if len(entries) == 0 {
		return nil
	}
	if budget < 1 {
		budget = 1
	}

	var batches [][]T
	var current []T
	used := 0
	for _, e := range entries {
		n := size(e)
		if used+n > budget && len(current) > 0 {
			batches = append(batches, current)
			current = nil
			used = 0
		}
		current = append(current, e)
		used += n
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}

// Blocks batches keyed blocks by the estimated size of their text.
func Blocks(blocks []Block, budget int) [][]Block {
	return Pack(blocks, budget, func(b Block) int { return EstimateTokens(b.Text) })
}

// Lines batches a multi-line text by lines. Each batch is returned rejoined
// with "\n". A single trailing newline is not treated as an extra empty line.
func Lines(text string, budget int) []string {
	lines := SplitLines(text)
	packed := Pack(lines, budget, EstimateTokens)
	out := make([]string, 0, len(packed))
	for _, b := range packed {
		out = append(out, strings.Join(b, "\n"))
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// SplitLines splits text into lines, ignoring one trailing newline.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.TrimSuffix(text, "\n")
	return strings.Split(text, "\n")
}

// Size returns the summed estimated size of a batch of blocks.
func Size(batch []Block) int {
	total := 0
	for _, b := range batch {
		total += EstimateTokens(b.Text)
	}
	return total
}

// Exceeds reports whether the blocks together exceed budget and therefore need
// batching.
func Exceeds(blocks []Block, budget int) bool {
	return Size(blocks) > budget
}
