// Package verdict classifies free-text review output into a coarse
// accept/rework decision.
//
// Only the first non-blank line of a response is inspected. A keyword matches
// case-insensitively at the start of a word, so "insecure" never reads as
// "secure" and "unapproved" never reads as "approve". When both keywords
// appear the reject keyword wins; when neither appears the result is rework.
package verdict

import (
	"regexp"
	"strings"
)

// Rule names the accept and reject keywords for one review stage.
type Rule struct {
	Name   string
	Accept string
	Reject string

	accept *regexp.Regexp
	reject *regexp.Regexp
}

// NewRule compiles a rule for the given keywords.
func NewRule(name, accept, reject string) Rule {
	return Rule{
		Name:   name,
		Accept: accept,
		Reject: reject,
		accept: wordStart(accept),
		reject: wordStart(reject),
	}
}

func wordStart(kw string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(kw))
}

// Per-stage rules.
var (
	CodeReview = NewRule("code-review", "approve", "revise")
	Security   = NewRule("security", "secure", "fix")
	TestReview = NewRule("test-review", "approve", "revise")
	QA         = NewRule("qa", "pass", "fail")
)

var batchLabel = regexp.MustCompile(`^\[Batch \d+/\d+\]:`)

// FirstLine returns the first non-blank line of response, trimmed. Batch
// labels of the form "[Batch i/n]:" are skipped so a labelled response is
// judged on its own first line.
func FirstLine(response string) string {
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if label := batchLabel.FindString(line); label != "" {
			line = strings.TrimSpace(line[len(label):])
			if line == "" {
				continue
			}
		}
		return line
	}
	return ""
}

// Extract reports whether response carries the rule's accept verdict.
func Extract(response string, r Rule) bool {
	line := FirstLine(response)
	if line == "" {
		return false
	}
	if r.reject == nil || r.accept == nil {
		r = NewRule(r.Name, r.Accept, r.Reject)
	}
	if r.reject.MatchString(line) {
		return false
	}
	return r.accept.MatchString(line)
}

// Combine merges per-batch results: the whole is accepted only if every batch
// was. An empty slice is rework.
func Combine(results []bool) bool {
	if len(results) == 0 {
		return false
	}
	for _, ok := range results {
		if !ok {
			return false
		}
	}
	return true
}
