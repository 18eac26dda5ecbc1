// Package human provides the reviewer used at the two manually reviewed
// stages and for collecting requirements.
package human

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lucasnoah/sdlcfactory/internal/pipeline"
)

var (
	// ErrAborted is returned when a review is abandoned before a verdict
	// arrives, or when a failed generation is not retried.
	ErrAborted = errors.New("review aborted")

	// ErrRetriesExhausted is returned by AutoApprove once a generation has
	// failed more often than it is willing to retry.
	ErrRetriesExhausted = errors.New("generation retries exhausted")
)

// DefaultAutoRetries is how many failed generations AutoApprove retries
// before giving up.
const DefaultAutoRetries = 2

// Request describes an artifact awaiting a human verdict. When Failed is set
// the artifact is the generation error instead: approving retries the
// generation and declining abandons the run.
type Request struct {
	RunID    string           `json:"run_id"`
	Stage    pipeline.StageID `json:"stage"`
	Title    string           `json:"title"`
	Artifact string           `json:"artifact"`
	Attempt  int              `json:"attempt,omitempty"`
	Failed   bool             `json:"failed,omitempty"`
}

// Response is a human verdict plus optional free-text feedback.
type Response struct {
	Approved bool   `json:"approved"`
	Feedback string `json:"feedback,omitempty"`
}

// Reviewer obtains requirements and verdicts from a person.
type Reviewer interface {
	Requirements(ctx context.Context) (string, error)
	Review(ctx context.Context, req Request) (Response, error)
}

// CleanFeedback strips an optional "reject:" prefix and surrounding space.
func CleanFeedback(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= len("reject:") && strings.EqualFold(s[:len("reject:")], "reject:") {
		s = strings.TrimSpace(s[len("reject:"):])
	}
	return s
}

// AutoApprove approves every artifact. It serves unattended runs and tests.
type AutoApprove struct {
	Text    string // requirements returned by Requirements
	Retries int    // failed generations to retry; 0 means DefaultAutoRetries
}

// Requirements returns the preset requirements.
func (a AutoApprove) Requirements(ctx context.Context) (string, error) {
	if strings.TrimSpace(a.Text) == "" {
		return "", errors.New("no requirements provided for unattended run")
	}
	return a.Text, nil
}

// Review approves artifacts and retries failed generations until Retries
// retries have been spent.
func (a AutoApprove) Review(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	if req.Failed {
		retries := a.Retries
		if retries <= 0 {
			retries = DefaultAutoRetries
		}
		if req.Attempt > retries {
			return Response{}, fmt.Errorf("%s after %d attempts: %w", req.Stage, req.Attempt, ErrRetriesExhausted)
		}
	}
	return Response{Approved: true}, nil
}
