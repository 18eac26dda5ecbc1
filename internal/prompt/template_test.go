package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRender_SimpleVars(t *testing.T) {
	got, err := Render("Generate code for {{role}} using {{lang}}.", Vars{"role": "Backend", "lang": "Go"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := "Generate code for Backend using Go."; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRender_MissingVarsSortedOnce(t *testing.T) {
	_, err := Render("{{b}} {{a}} {{b}}", Vars{})
	if err == nil {
		t.Fatal("expected error")
	}
	if want := "missing template variables: a, b"; err.Error() != want {
		t.Errorf("err = %q, want %q", err, want)
	}
}

func TestRender_Conditionals(t *testing.T) {
	tmpl := "Start.{{#if feedback}}\nFeedback: {{feedback}}\n{{/if}}End."
	tests := []struct {
		name string
		vars Vars
		want string
	}{
		{"present", Vars{"feedback": "add tests"}, "Start.\nFeedback: add tests\nEnd."},
		{"absent", Vars{}, "Start.End."},
		{"empty", Vars{"feedback": ""}, "Start.End."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Render(tmpl, tt.vars)
			if err != nil {
				t.Fatalf("Render: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRender_NestedConditionals(t *testing.T) {
	tmpl := "{{#if a}}A{{#if b}}B{{/if}}a{{/if}}."
	cases := map[string]Vars{
		"Aa.":  {"a": "1"},
		"ABa.": {"a": "1", "b": "1"},
		".":    {"b": "1"},
	}
	for want, vars := range cases {
		got, err := Render(tmpl, vars)
		if err != nil {
			t.Fatalf("Render(%v): %v", vars, err)
		}
		if got != want {
			t.Errorf("Render(%v) = %q, want %q", vars, got, want)
		}
	}
}

func TestRender_ValueWithTemplateSyntaxIsLiteral(t *testing.T) {
	got, err := Render("code: {{code}}", Vars{"code": "tmpl := `{{name}} {{/if}}`"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got != "code: tmpl := `{{name}} {{/if}}`" {
		t.Errorf("got %q", got)
	}
}

func TestRender_Malformed(t *testing.T) {
	if _, err := Render("x{{/if}}", Vars{}); err == nil || !strings.Contains(err.Error(), "dangling") {
		t.Errorf("dangling close: err = %v", err)
	}
	if _, err := Render("{{#if a}}x", Vars{"a": "1"}); err == nil || !strings.Contains(err.Error(), "unclosed") {
		t.Errorf("unclosed open: err = %v", err)
	}
}

func TestBuiltinsRender(t *testing.T) {
	s := NewSet("")
	vars := Vars{
		"requirements": "todo app", "previous_story": "", "story_feedback": "",
		"user_story": "story", "design_feedback": "", "design_doc": "doc",
		"role": "Backend", "task": "do it", "feedback": "",
		"code": "func main() {}", "batch_label": "Batch 1/1",
		"test_feedback": "", "test_cases": "tests",
	}
	for _, n := range []Name{Story, Design, Roles, Worker, CodeReview, Security, Tests, TestReview, QA} {
		sys, user, err := s.Build(n, vars)
		if err != nil {
			t.Errorf("Build(%s): %v", n, err)
			continue
		}
		if sys == "" || user == "" {
			t.Errorf("Build(%s) produced empty prompt", n)
		}
		if strings.Contains(user, "{{") {
			t.Errorf("Build(%s) left placeholders: %q", n, user)
		}
	}
}

func TestStoryPromptIncludesRevisionOnlyWithFeedback(t *testing.T) {
	s := NewSet("")
	_, first, err := s.Build(Story, Vars{"requirements": "r", "previous_story": "", "story_feedback": ""})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(first, "Previous Story") {
		t.Error("first story prompt should not mention a previous story")
	}
	_, revised, _ := s.Build(Story, Vars{"requirements": "r", "previous_story": "old", "story_feedback": "shorter"})
	if !strings.Contains(revised, "old") || !strings.Contains(revised, "shorter") {
		t.Errorf("revision prompt missing context: %q", revised)
	}
}

func TestSet_OverrideDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, QA.System()), []byte("custom qa {{batch_label}}"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := NewSet(dir)
	sys, _, err := s.Build(QA, Vars{"batch_label": "B", "test_cases": "t", "code": "c", "feedback": ""})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if sys != "custom qa B" {
		t.Errorf("system = %q, want override", sys)
	}
}

func TestSet_LoadErrors(t *testing.T) {
	s := NewSet(t.TempDir())
	if _, err := s.Load("nope.md"); err == nil {
		t.Error("expected not-found error")
	}
	if _, err := s.Load("../escape.md"); err == nil || !strings.Contains(err.Error(), "escapes") {
		t.Errorf("traversal: err = %v", err)
	}
}

func TestInstall(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "templates")
	keep := filepath.Join(dir, Story.User())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keep, []byte("mine"), 0o644); err != nil {
		t.Fatal(err)
	}

	written, err := Install(dir)
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if len(written) != len(Names())-1 {
		t.Errorf("wrote %d templates, want %d", len(written), len(Names())-1)
	}
	data, _ := os.ReadFile(keep)
	if string(data) != "mine" {
		t.Error("Install overwrote an existing template")
	}

	again, err := Install(dir)
	if err != nil || len(again) != 0 {
		t.Errorf("second Install = %v, %v; want nothing written", again, err)
	}
}
