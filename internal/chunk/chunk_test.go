package chunk

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 0, EstimateTokens("abc"))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 5, EstimateTokens(strings.Repeat("x", 20)))
}

func TestBlocks_EachEntryFillsBudget(t *testing.T) {
	in := []Block{
		{Key: "a", Text: strings.Repeat("x", 20)},
		{Key: "b", Text: strings.Repeat("y", 20)},
	}

	got := Blocks(in, 4)

	require.Len(t, got, 2)
	assert.Equal(t, []Block{in[0]}, got[0])
	assert.Equal(t, []Block{in[1]}, got[1])
}

func TestBlocks_SmallInputIsOneBatch(t *testing.T) {
	in := []Block{{Key: "backend", Text: "func main() {}"}, {Key: "frontend", Text: "<div/>"}}

	got := Blocks(in, 5500)

	require.Len(t, got, 1)
	assert.Equal(t, in, got[0])
}

func TestBlocks_Empty(t *testing.T) {
	assert.Empty(t, Blocks(nil, 10))
	assert.Empty(t, Lines("", 10))
}

func TestBlocks_GroupsUntilBudget(t *testing.T) {
	in := []Block{
		{Key: "a", Text: strings.Repeat("a", 16)}, // 4
		{Key: "b", Text: strings.Repeat("b", 16)}, // 4
		{Key: "c", Text: strings.Repeat("c", 16)}, // 4
	}

	got := Blocks(in, 8)

	require.Len(t, got, 2)
	assert.Equal(t, []string{"a", "b"}, keys(got[0]))
	assert.Equal(t, []string{"c"}, keys(got[1]))
}

func TestBlocks_OversizedEntryAlone(t *testing.T) {
	in := []Block{
		{Key: "small", Text: "abcd"},
		{Key: "huge", Text: strings.Repeat("z", 400)},
		{Key: "tail", Text: "abcd"},
	}

	got := Blocks(in, 10)

	require.Len(t, got, 3)
	assert.Equal(t, []string{"huge"}, keys(got[1]))
}

func TestLines_SplitsByLine(t *testing.T) {
	text := strings.Join([]string{
		strings.Repeat("1", 8),
		strings.Repeat("2", 8),
		strings.Repeat("3", 8),
	}, "\n")

	got := Lines(text, 4)

	require.Len(t, got, 2)
	assert.Equal(t, strings.Repeat("1", 8)+"\n"+strings.Repeat("2", 8), got[0])
	assert.Equal(t, strings.Repeat("3", 8), got[1])
}

func TestLines_TrailingNewlineIgnored(t *testing.T) {
	got := Lines("one\ntwo\n", 100)
	require.Len(t, got, 1)
	assert.Equal(t, "one\ntwo", got[0])
}

func TestPack_BudgetBelowOne(t *testing.T) {
	got := Pack([]int{1, 1, 1}, 0, func(n int) int { return n })
	assert.Len(t, got, 3)
}

// TestBlocks_Properties checks round-trip and budget on random inputs.
func TestBlocks_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for iter := 0; iter < 200; iter++ {
		n := rng.Intn(12)
		in := make([]Block, n)
		for i := range in {
			in[i] = Block{Key: fmt.Sprintf("k%d", i), Text: strings.Repeat("c", rng.Intn(120))}
		}
		budget := 1 + rng.Intn(25)

		got := Blocks(in, budget)

		var flat []Block
		for _, batch := range got {
			require.NotEmpty(t, batch, "no batch may be empty")
			if len(batch) > 1 {
				assert.LessOrEqual(t, Size(batch), budget, "multi-entry batch over budget")
			}
			flat = append(flat, batch...)
		}
		if n == 0 {
			assert.Empty(t, flat)
			continue
		}
		assert.Equal(t, in, flat, "flattened batches must reproduce input")
	}
}

func TestLines_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for iter := 0; iter < 100; iter++ {
		lines := make([]string, 1+rng.Intn(30))
		for i := range lines {
			lines[i] = strings.Repeat("l", rng.Intn(40))
		}
		text := strings.Join(lines, "\n")
		if text == "" {
			continue
		}

		got := Lines(text, 1+rng.Intn(20))

		assert.Equal(t, strings.TrimSuffix(text, "\n"), strings.Join(got, "\n"))
	}
}

func keys(batch []Block) []string {
	out := make([]string, len(batch))
	for i, b := range batch {
		out[i] = b.Key
	}
	return out
}
