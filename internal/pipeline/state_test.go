package pipeline

import "testing"

func TestNewStateDefaults(t *testing.T) {
	s := NewState("req")
	if s.FeedbackLog != NoFeedback {
		t.Errorf("FeedbackLog = %q", s.FeedbackLog)
	}
	if s.HasFeedback() {
		t.Error("fresh state should report no feedback")
	}
	if s.StoryVerdict != Revise || s.SecurityVerdict != Fix || s.QAVerdict != Fail {
		t.Errorf("default verdicts = %q %q %q", s.StoryVerdict, s.SecurityVerdict, s.QAVerdict)
	}
	for _, st := range AllStages {
		if n := s.Attempts(st); n > 0 {
			t.Errorf("Attempts(%s) = %d, want 0", st, n)
		}
	}
}

func TestAppendFeedbackDoesNotMutateOriginal(t *testing.T) {
	before := NewState("req")
	after := before.AppendFeedback("Code Review:\nrevise")

	if before.FeedbackLog != NoFeedback {
		t.Errorf("original mutated: %q", before.FeedbackLog)
	}
	want := NoFeedback + "\nCode Review:\nrevise"
	if after.FeedbackLog != want {
		t.Errorf("FeedbackLog = %q, want %q", after.FeedbackLog, want)
	}
	if !after.HasFeedback() {
		t.Error("HasFeedback should be true after append")
	}
}

func TestCloneIsolatesCodeMaps(t *testing.T) {
	a := NewState("req")
	a.GeneratedCode = CodeMap{}.Set("backend", "v1")
	b := a.Clone()
	b.GeneratedCode[0].Text = "v2"

	if got, _ := a.GeneratedCode.Get("backend"); got != "v1" {
		t.Errorf("original code = %q, want v1", got)
	}
}

func TestCodeMapSetPreservesOrder(t *testing.T) {
	m := CodeMap{}.Set("backend", "b").Set("frontend", "f").Set("backend", "b2")

	roles := m.Roles()
	if len(roles) != 2 || roles[0] != "backend" || roles[1] != "frontend" {
		t.Errorf("Roles = %v", roles)
	}
	if got, ok := m.Get("backend"); !ok || got != "b2" {
		t.Errorf("Get(backend) = %q, %v", got, ok)
	}
	if _, ok := m.Get("db"); ok {
		t.Error("Get(db) should miss")
	}
	blocks := m.Blocks()
	if len(blocks) != 2 || blocks[1].Key != "frontend" {
		t.Errorf("Blocks = %+v", blocks)
	}
}

func TestCodeMapRender(t *testing.T) {
	m := CodeMap{{Role: "backend", Text: "  package main  "}, {Role: "frontend", Text: "<div/>"}}
	want := "# BACKEND\npackage main\n\n# FRONTEND\n<div/>"
	if got := m.Render(); got != want {
		t.Errorf("Render = %q, want %q", got, want)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want Review
	}{
		{"approve", Approve},
		{" Approve ", Approve},
		{"revise", Revise},
		{"maybe", Revise},
		{"", Revise},
	}
	for _, tt := range tests {
		if got := NormalizeReview(tt.in); got != tt.want {
			t.Errorf("NormalizeReview(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if NormalizeSecurity("SECURE") != Secure || NormalizeSecurity("x") != Fix {
		t.Error("NormalizeSecurity")
	}
	if NormalizeQA("pass") != Pass || NormalizeQA("passed") != Fail {
		t.Error("NormalizeQA")
	}
}

func TestFinalTests(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"fenced with tag", "Here are tests:\n```python\ndef test_a():\n    assert True\n```\n", "def test_a():\n    assert True"},
		{"two fences", "```go\nfunc A() {}\n```\ntext\n```\nfunc B() {}\n```", "func A() {}\n\nfunc B() {}"},
		{"no fences", "  plain tests  ", "plain tests"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FinalTests(tt.in); got != tt.want {
				t.Errorf("FinalTests = %q, want %q", got, tt.want)
			}
		})
	}
}
