// Package stage implements the twelve pipeline stages. Each stage takes a
// pipeline.State by value and returns the next one. Generation failures are
// recorded in the feedback log and never abort a run; only reviewer I/O
// failures and context cancellation surface as errors.
package stage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/lucasnoah/sdlcfactory/internal/chunk"
	"github.com/lucasnoah/sdlcfactory/internal/human"
	"github.com/lucasnoah/sdlcfactory/internal/llm"
	"github.com/lucasnoah/sdlcfactory/internal/logging"
	"github.com/lucasnoah/sdlcfactory/internal/pipeline"
	"github.com/lucasnoah/sdlcfactory/internal/prompt"
)

// Func is one stage transformation.
type Func func(ctx context.Context, s pipeline.State) (pipeline.State, error)

// Budgets are the per-stage token budgets used for batching.
type Budgets struct {
	CodeReview     int `yaml:"code_review" json:"code_review"`
	Security       int `yaml:"security" json:"security"`
	Tests          int `yaml:"tests" json:"tests"`
	TestReview     int `yaml:"test_review" json:"test_review"`
	ContextWindow  int `yaml:"context_window" json:"context_window"`
	PromptReserve  int `yaml:"prompt_reserve" json:"prompt_reserve"`
	MinChunkBudget int `yaml:"min_chunk_budget" json:"min_chunk_budget"`
}

// DefaultBudgets keep every request under a 6k-token rate limit.
func DefaultBudgets() Budgets {
	return Budgets{
		CodeReview:     5800,
		Security:       5500,
		Tests:          5500,
		TestReview:     5500,
		ContextWindow:  6000,
		PromptReserve:  1000,
		MinChunkBudget: 1000,
	}
}

// WithDefaults fills unset budgets.
func (b Budgets) WithDefaults() Budgets {
	d := DefaultBudgets()
	fill := func(v *int, def int) {
		if *v <= 0 {
			*v = def
		}
	}
	fill(&b.CodeReview, d.CodeReview)
	fill(&b.Security, d.Security)
	fill(&b.Tests, d.Tests)
	fill(&b.TestReview, d.TestReview)
	fill(&b.ContextWindow, d.ContextWindow)
	fill(&b.PromptReserve, d.PromptReserve)
	fill(&b.MinChunkBudget, d.MinChunkBudget)
	return b
}

// QABudget is the per-batch code budget for QA: whatever is left of the
// context window after the test cases, the feedback and the prompt reserve,
// but never less than MinChunkBudget.
func (b Budgets) QABudget(testCases, feedback string) int {
	left := b.ContextWindow - (chunk.EstimateTokens(testCases) + chunk.EstimateTokens(feedback) + b.PromptReserve)
	return max(b.MinChunkBudget, left)
}

// OutputFunc receives the raw output of every stage attempt.
type OutputFunc func(stage pipeline.StageID, attempt int, output string)

// Options configures an Engine.
type Options struct {
	Models      llm.Models
	Reviewer    human.Reviewer
	Prompts     *prompt.Set
	Budgets     Budgets
	MaxWorkers  int // cap on discovered roles; 0 means no cap
	Parallelism int // concurrent generation calls within a stage; 0 means 4
}

// Engine runs stages against the configured models and reviewer.
type Engine struct {
	models      llm.Models
	reviewer    human.Reviewer
	prompts     *prompt.Set
	budgets     Budgets
	maxWorkers  int
	parallelism int

	progress io.Writer // live progress output; nil = silent
	log      *logging.Logger
	output   OutputFunc
}

// NewEngine creates a stage engine.
func NewEngine(opts Options) *Engine {
	if opts.Prompts == nil {
		opts.Prompts = prompt.NewSet("")
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 4
	}
	return &Engine{
		models:      opts.Models,
		reviewer:    opts.Reviewer,
		prompts:     opts.Prompts,
		budgets:     opts.Budgets.WithDefaults(),
		maxWorkers:  opts.MaxWorkers,
		parallelism: opts.Parallelism,
		log:         logging.Nop(),
	}
}

// SetProgress sets a writer for live progress output (e.g. os.Stderr).
func (e *Engine) SetProgress(w io.Writer) {
	e.progress = w
}

// SetLogger sets the structured debug logger.
func (e *Engine) SetLogger(l *logging.Logger) {
	if l != nil {
		e.log = l
	}
}

// ForRun returns a copy of e whose stage outputs go to fn and whose log
// entries carry runID. The copy shares models and reviewer with e.
func (e *Engine) ForRun(runID string, reviewer human.Reviewer, fn OutputFunc) *Engine {
	cp := *e
	cp.output = fn
	cp.log = e.log.WithRun(runID)
	if reviewer != nil {
		cp.reviewer = reviewer
	}
	return &cp
}

// Budgets returns the effective budgets.
func (e *Engine) Budgets() Budgets { return e.budgets }

func (e *Engine) logf(format string, args ...any) {
	if e.progress != nil {
		fmt.Fprintf(e.progress, "  → "+format+"\n", args...)
	}
}

func (e *Engine) capture(stage pipeline.StageID, attempt int, out string) {
	if e.output != nil && out != "" {
		e.output(stage, attempt, out)
	}
}

// Funcs maps every stage ID to its transformation.
func (e *Engine) Funcs() map[pipeline.StageID]Func {
	return map[pipeline.StageID]Func{
		pipeline.StageCollectRequirements: e.CollectRequirements,
		pipeline.StageGenerateStory:       e.GenerateStory,
		pipeline.StageReviewStory:         e.ReviewStory,
		pipeline.StageDraftDesign:         e.DraftDesign,
		pipeline.StageReviewDesign:        e.ReviewDesign,
		pipeline.StageGenerateCode:        e.GenerateCode,
		pipeline.StageCollectCode:         e.CollectCode,
		pipeline.StageReviewCode:          e.ReviewCode,
		pipeline.StageSecurityReview:      e.SecurityReview,
		pipeline.StageGenerateTests:       e.GenerateTests,
		pipeline.StageReviewTests:         e.ReviewTests,
		pipeline.StageRunQA:               e.RunQA,
	}
}

// errorEntry formats the feedback-log marker for a failed generation.
func errorEntry(label string, attempt int, err error) string {
	return fmt.Sprintf("%s %v", errorPrefix(label, attempt), err)
}

func errorPrefix(label string, attempt int) string {
	return fmt.Sprintf("[%s Attempt %d]: ERROR:", label, attempt)
}

// pendingFailure returns the error marker left by generation attempt
// attempt of label, if that attempt failed.
func pendingFailure(s pipeline.State, label string, attempt int) (string, bool) {
	if attempt <= 0 {
		return "", false
	}
	i := strings.LastIndex(s.FeedbackLog, errorPrefix(label, attempt))
	if i < 0 {
		return "", false
	}
	return strings.TrimSpace(s.FeedbackLog[i:]), true
}

// confirmRetry shows a failed generation to the reviewer. Approval retries;
// anything else abandons the run with human.ErrAborted.
func (e *Engine) confirmRetry(ctx context.Context, id pipeline.StageID, what string, attempt int, marker string) error {
	e.logf("%s generation failed; asking whether to retry", what)
	resp, err := e.reviewer.Review(ctx, human.Request{
		Stage:    id,
		Title:    fmt.Sprintf("%s generation failed (attempt %d)", what, attempt),
		Artifact: marker,
		Attempt:  attempt,
		Failed:   true,
	})
	if err != nil {
		return fmt.Errorf("%s review: %w", strings.ToLower(what), err)
	}
	if !resp.Approved {
		return fmt.Errorf("%s generation failed and was not retried: %w", strings.ToLower(what), human.ErrAborted)
	}
	return nil
}

// batchResult is one generation call's outcome within a stage.
type batchResult struct {
	text string
	err  error
}

// fanOut runs n generation calls with bounded concurrency. Results are placed
// by index, so completion order never affects the output.
func (e *Engine) fanOut(ctx context.Context, n int, call func(ctx context.Context, i int) (string, error)) []batchResult {
	results := make([]batchResult, n)
	var g errgroup.Group
	g.SetLimit(e.parallelism)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			text, err := call(ctx, i)
			results[i] = batchResult{text: text, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// batchLabel names batch i of n.
func batchLabel(i, n int) string {
	return fmt.Sprintf("Batch %d/%d", i+1, n)
}

// joinBatches concatenates responses in batch order. A single batch is
// returned unlabelled; errored batches render as an ERROR line.
func joinBatches(results []batchResult) string {
	if len(results) == 1 {
		if results[0].err != nil {
			return "ERROR: " + results[0].err.Error()
		}
		return results[0].text
	}
	parts := make([]string, len(results))
	for i, r := range results {
		body := r.text
		if r.err != nil {
			body = "ERROR: " + r.err.Error()
		}
		parts[i] = fmt.Sprintf("[%s]: %s", batchLabel(i, len(results)), body)
	}
	return strings.Join(parts, "\n\n")
}

// firstError returns the first failed batch's error.
func firstError(results []batchResult) error {
	for i, r := range results {
		if r.err != nil {
			if len(results) == 1 {
				return r.err
			}
			return fmt.Errorf("%s: %w", strings.ToLower(batchLabel(i, len(results))), r.err)
		}
	}
	return nil
}

// priorFeedback returns the feedback log, or "" while it holds only the
// sentinel.
func priorFeedback(s pipeline.State) string {
	if !s.HasFeedback() {
		return ""
	}
	return strings.TrimSpace(s.FeedbackLog)
}
