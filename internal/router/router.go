// Package router holds the decision functions that pick the next stage after
// a review. Every bounded loop checks its attempt cap before looking at the
// verdict, so a loop exits once the cap is reached whatever the reviews say.
package router

import (
	"fmt"

	"github.com/lucasnoah/sdlcfactory/internal/pipeline"
)

// Default attempt caps per bounded loop.
const (
	DefaultCodeReviewCap = 2
	DefaultSecurityCap   = 2
	DefaultTestReviewCap = 2
	DefaultQACap         = 1
)

// Caps holds the attempt cap for each bounded loop.
type Caps struct {
	CodeReview int `yaml:"code_review" json:"code_review"`
	Security   int `yaml:"security" json:"security"`
	TestReview int `yaml:"test_review" json:"test_review"`
	QA         int `yaml:"qa" json:"qa"`
}

// DefaultCaps returns the stock caps.
func DefaultCaps() Caps {
	return Caps{
		CodeReview: DefaultCodeReviewCap,
		Security:   DefaultSecurityCap,
		TestReview: DefaultTestReviewCap,
		QA:         DefaultQACap,
	}
}

// WithDefaults fills zero caps from the defaults.
func (c Caps) WithDefaults() Caps {
	d := DefaultCaps()
	if c.CodeReview <= 0 {
		c.CodeReview = d.CodeReview
	}
	if c.Security <= 0 {
		c.Security = d.Security
	}
	if c.TestReview <= 0 {
		c.TestReview = d.TestReview
	}
	if c.QA <= 0 {
		c.QA = d.QA
	}
	return c
}

// Decision is a routing outcome.
type Decision struct {
	Next   pipeline.StageID
	Forced bool   // accept branch taken because the cap was reached
	Reason string // human-readable, for logs and events
}

// Func decides the successor of a routed stage.
type Func func(s pipeline.State) Decision

// bounded applies cap-then-verdict precedence for one loop.
func bounded(loop string, attempts, limit int, accepted bool, accept, rework pipeline.StageID) Decision {
	if attempts >= limit {
		return Decision{
			Next:   accept,
			Forced: !accepted,
			Reason: fmt.Sprintf("%s: attempt cap %d reached (%d attempts)", loop, limit, attempts),
		}
	}
	if accepted {
		return Decision{Next: accept, Reason: fmt.Sprintf("%s: accepted", loop)}
	}
	return Decision{Next: rework, Reason: fmt.Sprintf("%s: rework (attempt %d/%d)", loop, attempts, limit)}
}

// AfterStory routes after the human story review. The loop is unbounded.
func AfterStory(s pipeline.State) Decision {
	if s.StoryVerdict == pipeline.Approve {
		return Decision{Next: pipeline.StageDraftDesign, Reason: "story: approved"}
	}
	return Decision{Next: pipeline.StageGenerateStory, Reason: "story: changes requested"}
}

// AfterDesign routes after the human design review. The loop is unbounded.
func AfterDesign(s pipeline.State) Decision {
	if s.DesignVerdict == pipeline.Approve {
		return Decision{Next: pipeline.StageGenerateCode, Reason: "design: approved"}
	}
	return Decision{Next: pipeline.StageDraftDesign, Reason: "design: changes requested"}
}

// AfterCodeReview routes after the automated code review.
func (c Caps) AfterCodeReview(s pipeline.State) Decision {
	return bounded("code review", s.CodeReviewAttempts, c.CodeReview,
		s.CodeReviewVerdict == pipeline.Approve,
		pipeline.StageSecurityReview, pipeline.StageGenerateCode)
}

// AfterSecurity routes after the security review.
func (c Caps) AfterSecurity(s pipeline.State) Decision {
	return bounded("security review", s.SecurityAttempts, c.Security,
		s.SecurityVerdict == pipeline.Secure,
		pipeline.StageGenerateTests, pipeline.StageGenerateCode)
}

// AfterTestReview routes after the test-case review.
func (c Caps) AfterTestReview(s pipeline.State) Decision {
	return bounded("test review", s.TestReviewAttempts, c.TestReview,
		s.TestReviewVerdict == pipeline.Approve,
		pipeline.StageRunQA, pipeline.StageGenerateTests)
}

// AfterQA routes after the QA run. The accept branch ends the run.
func (c Caps) AfterQA(s pipeline.State) Decision {
	return bounded("qa", s.QAAttempts, c.QA,
		s.QAVerdict == pipeline.Pass,
		pipeline.Terminal, pipeline.StageGenerateCode)
}

// MaxAutomatedSteps bounds the stage executions after design approval.
// Attempt counters never reset within a run, so each bounded loop can send the
// run back at most cap times in total. Every return to generate-code costs a
// full cycle: generate-code, collect-code, review-code, security-review,
// generate-tests, review-tests and run-qa. Each test-review rework costs two
// more steps. The bound only fails to hold when review stages no-op because
// generation keeps producing nothing.
func (c Caps) MaxAutomatedSteps() int {
	c = c.WithDefaults()
	const cycle = 7
	codeCycles := 1 + c.CodeReview + c.Security + c.QA
	return codeCycles*cycle + 2*c.TestReview
}
