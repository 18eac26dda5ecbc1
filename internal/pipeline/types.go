package pipeline

import "strings"

// StageID names a node in the pipeline graph.
type StageID string

const (
	StageCollectRequirements StageID = "collect-requirements"
	StageGenerateStory       StageID = "generate-story"
	StageReviewStory         StageID = "review-story"
	StageDraftDesign         StageID = "draft-design"
	StageReviewDesign        StageID = "review-design"
	StageGenerateCode        StageID = "generate-code"
	StageCollectCode         StageID = "collect-code"
	StageReviewCode          StageID = "review-code"
	StageSecurityReview      StageID = "security-review"
	StageGenerateTests       StageID = "generate-tests"
	StageReviewTests         StageID = "review-tests"
	StageRunQA               StageID = "run-qa"

	// Terminal is the marker that ends a run.
	Terminal StageID = "__end__"
)

// AllStages lists every stage in topological order of first execution.
var AllStages = []StageID{
	StageCollectRequirements,
	StageGenerateStory,
	StageReviewStory,
	StageDraftDesign,
	StageReviewDesign,
	StageGenerateCode,
	StageCollectCode,
	StageReviewCode,
	StageSecurityReview,
	StageGenerateTests,
	StageReviewTests,
	StageRunQA,
}

// Review is the verdict of an approve/revise review.
type Review string

const (
	Approve Review = "approve"
	Revise  Review = "revise"
)

// Security is the verdict of the security review.
type Security string

const (
	Secure Security = "secure"
	Fix    Security = "fix"
)

// QA is the verdict of the QA run.
type QA string

const (
	Pass QA = "pass"
	Fail QA = "fail"
)

// NormalizeReview maps anything other than an exact "approve" to Revise.
func NormalizeReview(s string) Review {
	if strings.EqualFold(strings.TrimSpace(s), string(Approve)) {
		return Approve
	}
	return Revise
}

// NormalizeSecurity maps anything other than an exact "secure" to Fix.
func NormalizeSecurity(s string) Security {
	if strings.EqualFold(strings.TrimSpace(s), string(Secure)) {
		return Secure
	}
	return Fix
}

// NormalizeQA maps anything other than an exact "pass" to Fail.
func NormalizeQA(s string) QA {
	if strings.EqualFold(strings.TrimSpace(s), string(Pass)) {
		return Pass
	}
	return Fail
}

// Run statuses.
const (
	StatusPending        = "pending"
	StatusInProgress     = "in_progress"
	StatusAwaitingReview = "awaiting_review"
	StatusCompleted      = "completed"
	StatusFailed         = "failed"
	StatusAborted        = "aborted"
)

// RunRecord is the persisted record of a single pipeline run.
type RunRecord struct {
	ID           string              `json:"id"`
	Status       string              `json:"status"`
	CurrentStage StageID             `json:"current_stage"`
	Steps        int                 `json:"steps"`
	StageHistory []StageHistoryEntry `json:"stage_history"`
	State        State               `json:"state"`
	Error        string              `json:"error,omitempty"`
	CreatedAt    string              `json:"created_at"`
	UpdatedAt    string              `json:"updated_at"`
}

// StageHistoryEntry records one stage execution and the routing decision
// that followed it.
type StageHistoryEntry struct {
	Stage    StageID `json:"stage"`
	Attempt  int     `json:"attempt"`
	Next     StageID `json:"next"`
	Forced   bool    `json:"forced,omitempty"`
	NoOp     bool    `json:"no_op,omitempty"`
	Duration string  `json:"duration"`
}
