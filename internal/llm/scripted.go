package llm

import (
	"context"
	"strings"
	"sync"
)

// Call records one request seen by a Scripted generator.
type Call struct {
	System string
	User   string
}

// Reply is a canned answer. A non-nil Err makes the call fail.
type Reply struct {
	Text string
	Err  error
}

// Scripted is a deterministic Generator for tests and dry runs. Replies are
// chosen by the first rule whose substring appears in the system instruction;
// unmatched calls get Default. It is safe for concurrent use.
type Scripted struct {
	mu      sync.Mutex
	rules   []scriptRule
	Default Reply
	calls   []Call
}

type scriptRule struct {
	match   string
	replies []Reply
	next    int
}

// NewScripted returns a Scripted generator answering unmatched calls with def.
func NewScripted(def string) *Scripted {
	return &Scripted{Default: Reply{Text: def}}
}

// On registers replies for calls whose system instruction contains match.
// Replies are consumed in order; the last one repeats.
func (s *Scripted) On(match string, replies ...Reply) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, scriptRule{match: match, replies: replies})
	return s
}

// Text is shorthand for a successful Reply.
func Text(s string) Reply { return Reply{Text: s} }

// Generate returns the scripted reply for the call.
func (s *Scripted) Generate(ctx context.Context, system, user string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{System: system, User: user})

	reply := s.Default
	for i := range s.rules {
		r := &s.rules[i]
		if !strings.Contains(system, r.match) || len(r.replies) == 0 {
			continue
		}
		reply = r.replies[r.next]
		if r.next < len(r.replies)-1 {
			r.next++
		}
		break
	}
	if reply.Err != nil {
		return "", &GenerationError{Role: "scripted", Err: reply.Err}
	}
	return reply.Text, nil
}

// Calls returns a copy of the recorded calls.
func (s *Scripted) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallsMatching counts recorded calls whose system instruction contains match.
func (s *Scripted) CallsMatching(match string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if strings.Contains(c.System, match) {
			n++
		}
	}
	return n
}
