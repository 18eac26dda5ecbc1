package pipeline

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(t.TempDir())
}

func TestCreateAndGet(t *testing.T) {
	s := newTestStore(t)

	rec, err := s.Create("run-1", "build a todo app")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.ID != "run-1" {
		t.Errorf("ID = %q, want run-1", rec.ID)
	}
	if rec.Status != StatusPending {
		t.Errorf("Status = %q, want %q", rec.Status, StatusPending)
	}
	if rec.CurrentStage != StageCollectRequirements {
		t.Errorf("CurrentStage = %q, want %q", rec.CurrentStage, StageCollectRequirements)
	}
	if rec.State.Requirements != "build a todo app" {
		t.Errorf("Requirements = %q", rec.State.Requirements)
	}

	got, err := s.Get("run-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State.UserStoryFeedback != NoStoryFeedback {
		t.Errorf("UserStoryFeedback = %q, want sentinel", got.State.UserStoryFeedback)
	}
	if got.CreatedAt == "" {
		t.Error("CreatedAt should not be empty")
	}
}

func TestCreateGeneratesID(t *testing.T) {
	s := newTestStore(t)
	rec, err := s.Create("", "x")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(rec.ID) != 36 {
		t.Errorf("generated ID %q is not a uuid", rec.ID)
	}
}

func TestCreateDuplicate(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Create("dup", "a"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.Create("dup", "b"); err == nil {
		t.Fatal("expected error creating duplicate run")
	}
}

func TestGetNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get("missing")
	if !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("err = %v, want ErrRunNotFound", err)
	}
}

func TestUpdate(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Create("u", "req"); err != nil {
		t.Fatal(err)
	}

	err := s.Update("u", func(r *RunRecord) {
		r.Status = StatusInProgress
		r.CurrentStage = StageGenerateStory
		r.State.StoryAttempts = 1
		r.StageHistory = append(r.StageHistory, StageHistoryEntry{Stage: StageCollectRequirements, Next: StageGenerateStory})
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, _ := s.Get("u")
	if got.Status != StatusInProgress {
		t.Errorf("Status = %q", got.Status)
	}
	if got.State.StoryAttempts != 1 {
		t.Errorf("StoryAttempts = %d, want 1", got.State.StoryAttempts)
	}
	if len(got.StageHistory) != 1 {
		t.Errorf("StageHistory len = %d, want 1", len(got.StageHistory))
	}
}

func TestConcurrentUpdatesDoNotCorrupt(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Create("c", "req"); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Update("c", func(r *RunRecord) { r.Steps++ })
		}()
	}
	wg.Wait()

	// Lost updates are acceptable; a torn file is not.
	if _, err := s.Get("c"); err != nil {
		t.Fatalf("Get after concurrent updates: %v", err)
	}
}

func TestListFiltersByStatus(t *testing.T) {
	s := newTestStore(t)
	for _, id := range []string{"a", "b", "c"} {
		if _, err := s.Create(id, "req"); err != nil {
			t.Fatal(err)
		}
	}
	_ = s.Update("b", func(r *RunRecord) { r.Status = StatusCompleted })

	all, err := s.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("List all = %d, want 3", len(all))
	}

	done, _ := s.List(StatusCompleted)
	if len(done) != 1 || done[0].ID != "b" {
		t.Errorf("List completed = %+v, want [b]", done)
	}
}

func TestListSkipsStrayDirectories(t *testing.T) {
	s := newTestStore(t)
	if err := os.MkdirAll(filepath.Join(s.BaseDir(), "not-a-run"), 0o755); err != nil {
		t.Fatal(err)
	}
	runs, err := s.List("")
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 0 {
		t.Errorf("List = %d runs, want 0", len(runs))
	}
}

func TestListMissingBaseDir(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "nope"))
	runs, err := s.List("")
	if err != nil || runs != nil {
		t.Fatalf("List = %v, %v; want nil, nil", runs, err)
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Create("d", "req"); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete("d"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get("d"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Get after delete err = %v", err)
	}
	if err := s.Delete("d"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("second Delete err = %v", err)
	}
}

func TestStageOutputRoundTrip(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Create("o", "req"); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveStageOutput("o", StageReviewCode, 2, "Approve\nlooks fine"); err != nil {
		t.Fatalf("SaveStageOutput: %v", err)
	}
	got, err := s.GetStageOutput("o", StageReviewCode, 2)
	if err != nil {
		t.Fatalf("GetStageOutput: %v", err)
	}
	if got != "Approve\nlooks fine\n" {
		t.Errorf("output = %q", got)
	}
	want := filepath.Join(s.BaseDir(), "o", "stages", "review-code", "attempt-2", "output.md")
	if _, err := os.Stat(want); err != nil {
		t.Errorf("expected %s: %v", want, err)
	}
}

func TestSaveFinal(t *testing.T) {
	s := newTestStore(t)
	path, err := s.SaveFinal("f", "final_code.md", "# BACKEND\ncode")
	if err != nil {
		t.Fatalf("SaveFinal: %v", err)
	}
	if !strings.HasSuffix(path, filepath.Join("f", "final", "final_code.md")) {
		t.Errorf("path = %q", path)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "# BACKEND\ncode\n" {
		t.Errorf("content = %q", data)
	}
}

func TestWriteAtomicLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.json")
	if err := writeJSON(path, map[string]int{"a": 1}); err != nil {
		t.Fatal(err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("dir has %d entries, want 1", len(entries))
	}
	var got map[string]int
	if err := readJSON(path, &got); err != nil || got["a"] != 1 {
		t.Errorf("readJSON = %v, %v", got, err)
	}
}
