package stage

import (
	"context"
	"fmt"
	"strings"

	"github.com/lucasnoah/sdlcfactory/internal/chunk"
	"github.com/lucasnoah/sdlcfactory/internal/llm"
	"github.com/lucasnoah/sdlcfactory/internal/pipeline"
	"github.com/lucasnoah/sdlcfactory/internal/prompt"
	"github.com/lucasnoah/sdlcfactory/internal/verdict"
)

// review is one chunked, verdict-producing generation pass.
type review struct {
	stage  pipeline.StageID
	label  string // feedback-log label, e.g. "Code Review"
	name   prompt.Name
	model  llm.Generator
	rule   verdict.Rule
	inputs []string    // per-batch primary input
	vars   prompt.Vars // shared template vars
	key    string      // template var receiving each batch input
}

// runReview issues one call per batch and returns the labelled combined response
// and the combined verdict. Any failed batch counts as rework.
func (e *Engine) runReview(ctx context.Context, r review) (string, bool) {
	n := len(r.inputs)
	if n > 1 {
		e.logf("%s: input split into %d batches", strings.ToLower(r.label), n)
	}
	results := e.fanOut(ctx, n, func(ctx context.Context, i int) (string, error) {
		vars := prompt.Vars{r.key: r.inputs[i], "batch_label": batchLabel(i, n)}
		for k, v := range r.vars {
			vars[k] = v
		}
		system, user, err := e.prompts.Build(r.name, vars)
		if err != nil {
			return "", err
		}
		return r.model.Generate(ctx, system, user)
	})

	accepted := make([]bool, n)
	for i, res := range results {
		accepted[i] = res.err == nil && verdict.Extract(res.text, r.rule)
	}
	if err := firstError(results); err != nil {
		e.log.Warn("review batch failed", "stage", string(r.stage), "error", err)
	}
	return joinBatches(results), verdict.Combine(accepted)
}

// codeBatches renders the generated code into batches within budget, each
// as "# ROLE" sections in role order.
func codeBatches(code pipeline.CodeMap, budget int) []string {
	batches := chunk.Blocks(code.Blocks(), budget)
	out := make([]string, len(batches))
	for i, b := range batches {
		m := make(pipeline.CodeMap, len(b))
		for j, blk := range b {
			m[j] = pipeline.CodeEntry{Role: blk.Key, Text: blk.Text}
		}
		out[i] = m.Render()
	}
	return out
}

// ReviewCode runs the automated code review.
func (e *Engine) ReviewCode(ctx context.Context, s pipeline.State) (pipeline.State, error) {
	if s.GeneratedCode.Len() == 0 {
		e.logf("no generated code; skipping code review")
		return s, nil
	}
	attempt := s.CodeReviewAttempts + 1
	e.logf("code review (attempt %d)", attempt)

	text, ok := e.runReview(ctx, review{
		stage:  pipeline.StageReviewCode,
		label:  "Code Review",
		name:   prompt.CodeReview,
		model:  e.models.Coder,
		rule:   verdict.CodeReview,
		inputs: codeBatches(s.GeneratedCode, e.budgets.CodeReview),
		key:    "code",
		vars:   prompt.Vars{"feedback": priorFeedback(s)},
	})
	e.capture(pipeline.StageReviewCode, attempt, text)

	out := s.Clone()
	out.CodeReviewAttempts = attempt
	out.CodeReviewVerdict = pipeline.Revise
	if ok {
		out.CodeReviewVerdict = pipeline.Approve
	}
	e.logf("code review verdict: %s", out.CodeReviewVerdict)
	return out.AppendFeedback(fmt.Sprintf("[Code Review Attempt %d]: %s", attempt, text)), nil
}

// SecurityReview runs the security review.
func (e *Engine) SecurityReview(ctx context.Context, s pipeline.State) (pipeline.State, error) {
	if s.GeneratedCode.Len() == 0 {
		e.logf("no generated code; skipping security review")
		return s, nil
	}
	attempt := s.SecurityAttempts + 1
	e.logf("security review (attempt %d)", attempt)

	text, ok := e.runReview(ctx, review{
		stage:  pipeline.StageSecurityReview,
		label:  "Security Review",
		name:   prompt.Security,
		model:  e.models.General,
		rule:   verdict.Security,
		inputs: codeBatches(s.GeneratedCode, e.budgets.Security),
		key:    "code",
		vars:   prompt.Vars{"feedback": priorFeedback(s)},
	})
	e.capture(pipeline.StageSecurityReview, attempt, text)

	out := s.Clone()
	out.SecurityAttempts = attempt
	out.SecurityVerdict = pipeline.Fix
	if ok {
		out.SecurityVerdict = pipeline.Secure
	}
	e.logf("security verdict: %s", out.SecurityVerdict)
	return out.AppendFeedback(fmt.Sprintf("[Security Review Attempt %d]: %s", attempt, text)), nil
}

// GenerateTests writes test cases for the generated code, one call per code
// batch. If any batch fails the previous test cases are kept.
func (e *Engine) GenerateTests(ctx context.Context, s pipeline.State) (pipeline.State, error) {
	if s.GeneratedCode.Len() == 0 {
		e.logf("no generated code; skipping test generation")
		return s, nil
	}
	attempt := s.TestGenAttempts + 1
	e.logf("generating test cases (attempt %d)", attempt)

	testFeedback := s.TestCaseFeedback
	if testFeedback == pipeline.NoTestCaseFeedback {
		testFeedback = ""
	}
	batches := codeBatches(s.GeneratedCode, e.budgets.Tests)
	results := e.fanOut(ctx, len(batches), func(ctx context.Context, i int) (string, error) {
		system, user, err := e.prompts.Build(prompt.Tests, prompt.Vars{
			"code":          batches[i],
			"batch_label":   batchLabel(i, len(batches)),
			"test_feedback": testFeedback,
		})
		if err != nil {
			return "", err
		}
		return e.models.Coder.Generate(ctx, system, user)
	})

	out := s.Clone()
	out.TestGenAttempts = attempt
	if err := firstError(results); err != nil {
		e.log.Warn("test generation failed", "attempt", attempt, "error", err)
		return out.AppendFeedback(errorEntry("Test Generation", attempt, err)), nil
	}
	out.TestCases = joinBatches(results)
	e.capture(pipeline.StageGenerateTests, attempt, out.TestCases)
	return out, nil
}

// ReviewTests reviews the test cases, batched by line.
func (e *Engine) ReviewTests(ctx context.Context, s pipeline.State) (pipeline.State, error) {
	if strings.TrimSpace(s.TestCases) == "" {
		e.logf("no test cases; skipping test review")
		return s, nil
	}
	attempt := s.TestReviewAttempts + 1
	e.logf("test case review (attempt %d)", attempt)

	text, ok := e.runReview(ctx, review{
		stage:  pipeline.StageReviewTests,
		label:  "Test Case Review",
		name:   prompt.TestReview,
		model:  e.models.Coder,
		rule:   verdict.TestReview,
		inputs: chunk.Lines(s.TestCases, e.budgets.TestReview),
		key:    "test_cases",
	})
	e.capture(pipeline.StageReviewTests, attempt, text)

	entry := fmt.Sprintf("[Test Case Review Attempt %d]: %s", attempt, text)
	out := s.Clone()
	out.TestReviewAttempts = attempt
	out.TestReviewVerdict = pipeline.Revise
	if ok {
		out.TestReviewVerdict = pipeline.Approve
	}
	if out.TestCaseFeedback == pipeline.NoTestCaseFeedback || out.TestCaseFeedback == "" {
		out.TestCaseFeedback = entry
	} else {
		out.TestCaseFeedback += "\n" + entry
	}
	e.logf("test review verdict: %s", out.TestReviewVerdict)
	return out.AppendFeedback(entry), nil
}

// RunQA has the model execute the test cases against the code. The code
// budget shrinks as the test cases and feedback grow.
func (e *Engine) RunQA(ctx context.Context, s pipeline.State) (pipeline.State, error) {
	if s.GeneratedCode.Len() == 0 || strings.TrimSpace(s.TestCases) == "" {
		e.logf("missing code or test cases; skipping QA")
		return s, nil
	}
	attempt := s.QAAttempts + 1
	feedback := priorFeedback(s)
	budget := e.budgets.QABudget(s.TestCases, feedback)
	e.logf("QA run (attempt %d, code budget %d tokens)", attempt, budget)

	text, ok := e.runReview(ctx, review{
		stage:  pipeline.StageRunQA,
		label:  "QA",
		name:   prompt.QA,
		model:  e.models.Coder,
		rule:   verdict.QA,
		inputs: codeBatches(s.GeneratedCode, budget),
		key:    "code",
		vars:   prompt.Vars{"test_cases": s.TestCases, "feedback": feedback},
	})
	e.capture(pipeline.StageRunQA, attempt, text)

	out := s.Clone()
	out.QAAttempts = attempt
	out.QAVerdict = pipeline.Fail
	if ok {
		out.QAVerdict = pipeline.Pass
	}
	e.logf("QA verdict: %s", out.QAVerdict)
	return out.AppendFeedback(fmt.Sprintf("[QA Attempt %d]: %s", attempt, text)), nil
}
