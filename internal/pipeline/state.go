package pipeline

import (
	"fmt"
	"strings"

	"github.com/lucasnoah/sdlcfactory/internal/chunk"
)

// Sentinels distinguishing "no feedback yet" from real feedback.
const (
	NoFeedback         = "No feedback yet."
	NoStoryFeedback    = "No user story feedback yet."
	NoDesignFeedback   = "No design feedback yet."
	NoTestCaseFeedback = "No test case feedback yet."

	// StoryApproved is stored in UserStoryFeedback once the story is accepted.
	StoryApproved = "approved"
)

// CodeEntry is one role's entry in a CodeMap.
type CodeEntry struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// CodeMap is an ordered role -> text mapping. Order is the order in which
// roles were discovered and is preserved through batching and rendering.
type CodeMap []CodeEntry

// Get returns the text for role.
func (m CodeMap) Get(role string) (string, bool) {
	for _, e := range m {
		if e.Role == role {
			return e.Text, true
		}
	}
	return "", false
}

// Set returns a copy of m with role set to text. A new role is appended.
func (m CodeMap) Set(role, text string) CodeMap {
	out := m.Clone()
	for i := range out {
		if out[i].Role == role {
			out[i].Text = text
			return out
		}
	}
	return append(out, CodeEntry{Role: role, Text: text})
}

// Len returns the number of roles.
func (m CodeMap) Len() int { return len(m) }

// Roles returns the role names in order.
func (m CodeMap) Roles() []string {
	out := make([]string, len(m))
	for i, e := range m {
		out[i] = e.Role
	}
	return out
}

// Clone returns an independent copy.
func (m CodeMap) Clone() CodeMap {
	if m == nil {
		return nil
	}
	out := make(CodeMap, len(m))
	copy(out, m)
	return out
}

// Blocks converts the map into chunker input.
func (m CodeMap) Blocks() []chunk.Block {
	out := make([]chunk.Block, len(m))
	for i, e := range m {
		out[i] = chunk.Block{Key: e.Role, Text: e.Text}
	}
	return out
}

// Render formats the map as "# ROLE\n<text>" sections, the shape of the
// final code artifact.
func (m CodeMap) Render() string {
	var b strings.Builder
	for _, e := range m {
		fmt.Fprintf(&b, "# %s\n%s\n\n", strings.ToUpper(e.Role), strings.TrimSpace(e.Text))
	}
	return strings.TrimSpace(b.String())
}

// State is the artifact set threaded through every stage. Stages take a State
// by value and return a new one; slices are cloned before mutation so earlier
// snapshots never observe later edits.
type State struct {
	Requirements string `json:"requirements"`

	UserStory         string `json:"user_story"`
	UserStoryFeedback string `json:"user_story_feedback"`
	StoryVerdict      Review `json:"story_verdict"`
	StoryAttempts     int    `json:"story_attempts"`

	DesignDoc      string `json:"design_doc"`
	DesignFeedback string `json:"design_feedback"`
	DesignVerdict  Review `json:"design_verdict"`
	DesignAttempts int    `json:"design_attempts"`

	WorkerTasks     CodeMap `json:"worker_tasks,omitempty"`
	GeneratedCode   CodeMap `json:"generated_code,omitempty"`
	CodeGenAttempts int     `json:"code_gen_attempts"`

	CodeReviewVerdict  Review `json:"code_review_verdict"`
	CodeReviewAttempts int    `json:"code_review_attempts"`

	SecurityVerdict  Security `json:"security_verdict"`
	SecurityAttempts int      `json:"security_attempts"`

	TestCases          string `json:"test_cases"`
	TestCaseFeedback   string `json:"test_case_feedback"`
	TestGenAttempts    int    `json:"test_gen_attempts"`
	TestReviewVerdict  Review `json:"test_review_verdict"`
	TestReviewAttempts int    `json:"test_review_attempts"`

	QAVerdict  QA  `json:"qa_verdict"`
	QAAttempts int `json:"qa_attempts"`

	// FeedbackLog is append-only; every entry starts on a new line.
	FeedbackLog string `json:"feedback_log"`

	FinalCode      string `json:"final_code,omitempty"`
	FinalTestCases string `json:"final_test_cases,omitempty"`
}

// NewState returns a fresh state seeded with requirements and the default
// (rework) verdicts.
func NewState(requirements string) State {
	return State{
		Requirements:      requirements,
		UserStoryFeedback: NoStoryFeedback,
		StoryVerdict:      Revise,
		DesignFeedback:    NoDesignFeedback,
		DesignVerdict:     Revise,
		CodeReviewVerdict: Revise,
		SecurityVerdict:   Fix,
		TestCaseFeedback:  NoTestCaseFeedback,
		TestReviewVerdict: Revise,
		QAVerdict:         Fail,
		FeedbackLog:       NoFeedback,
	}
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	out := s
	out.WorkerTasks = s.WorkerTasks.Clone()
	out.GeneratedCode = s.GeneratedCode.Clone()
	return out
}

// AppendFeedback returns a copy of s with entry appended to the feedback log.
func (s State) AppendFeedback(entry string) State {
	out := s.Clone()
	out.FeedbackLog = s.FeedbackLog + "\n" + entry
	return out
}

// HasFeedback reports whether anything beyond the sentinel has been logged.
func (s State) HasFeedback() bool {
	return strings.TrimSpace(s.FeedbackLog) != "" && s.FeedbackLog != NoFeedback
}

// Attempts returns the attempt counter owned by stage, or -1 if the stage
// owns none.
func (s State) Attempts(stage StageID) int {
	switch stage {
	case StageGenerateStory:
		return s.StoryAttempts
	case StageDraftDesign:
		return s.DesignAttempts
	case StageGenerateCode:
		return s.CodeGenAttempts
	case StageReviewCode:
		return s.CodeReviewAttempts
	case StageSecurityReview:
		return s.SecurityAttempts
	case StageGenerateTests:
		return s.TestGenAttempts
	case StageReviewTests:
		return s.TestReviewAttempts
	case StageRunQA:
		return s.QAAttempts
	}
	return -1
}

// FinalTests extracts test code from the generated test-case text. When the
// text holds markdown fences only the fenced bodies are kept, each without its
// language tag; otherwise the whole text is returned trimmed.
func FinalTests(testCases string) string {
	parts := strings.Split(testCases, "```")
	if len(parts) < 3 {
		return strings.TrimSpace(testCases)
	}
	var bodies []string
	for i := 1; i < len(parts); i += 2 {
		body := parts[i]
		if nl := strings.IndexByte(body, '\n'); nl >= 0 {
			if tag := strings.TrimSpace(body[:nl]); tag != "" && !strings.ContainsAny(tag, " \t(){};=") {
				body = body[nl+1:]
			}
		}
		if body = strings.TrimSpace(body); body != "" {
			bodies = append(bodies, body)
		}
	}
	return strings.Join(bodies, "\n\n")
}
