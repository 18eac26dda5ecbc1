package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lucasnoah/sdlcfactory/internal/pipeline"
)

// Names of the final artifact files.
const (
	FinalCodeFile  = "final_code.md"
	FinalTestsFile = "final_test_cases.md"
)

// FilePersister writes the final artifacts into the run's directory and,
// when OutputDir is set, into OutputDir/<run id>/ as well.
type FilePersister struct {
	Store     *pipeline.Store
	OutputDir string
}

// Persist writes final_code.md and final_test_cases.md.
func (p *FilePersister) Persist(ctx context.Context, runID string, s pipeline.State) error {
	files := []struct{ name, content string }{
		{FinalCodeFile, s.FinalCode},
		{FinalTestsFile, s.FinalTestCases},
	}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if p.Store != nil {
			if _, err := p.Store.SaveFinal(runID, f.name, f.content); err != nil {
				return err
			}
		}
		if p.OutputDir != "" {
			dir := filepath.Join(p.OutputDir, runID)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create output directory: %w", err)
			}
			if err := os.WriteFile(filepath.Join(dir, f.name), []byte(f.content+"\n"), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", f.name, err)
			}
		}
	}
	return nil
}
