package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/sdlcfactory/internal/human"
	"github.com/lucasnoah/sdlcfactory/internal/orchestrator"
	"github.com/lucasnoah/sdlcfactory/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline from requirements to final code and tests",
	Long: `Run the full pipeline in the terminal. Requirements come from --requirements,
--requirements-file, or an interactive prompt. The story and design are shown for
approval; press enter to approve or type feedback to request a revision.

With --resume the run continues from the stage it stopped at.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		requirements, _ := cmd.Flags().GetString("requirements")
		file, _ := cmd.Flags().GetString("requirements-file")
		autoApprove, _ := cmd.Flags().GetBool("auto-approve")
		resume, _ := cmd.Flags().GetString("resume")
		id, _ := cmd.Flags().GetString("id")
		printCode, _ := cmd.Flags().GetBool("print")

		if file != "" {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read requirements: %w", err)
			}
			requirements = string(data)
		}
		requirements = strings.TrimSpace(requirements)
		if autoApprove && requirements == "" && resume == "" {
			return fmt.Errorf("--auto-approve needs --requirements or --requirements-file")
		}

		a, cleanup, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		var reviewer human.Reviewer = human.NewConsole(cmd.InOrStdin(), cmd.ErrOrStderr())
		if autoApprove {
			reviewer = human.AutoApprove{Text: requirements}
		}

		var (
			runID string
			final pipeline.State
		)
		if resume != "" {
			runID = resume
			fmt.Fprintf(cmd.ErrOrStderr(), "Resuming run %s\n", runID)
			final, err = a.orchestrator(runID, reviewer, nil, cmd.ErrOrStderr()).Resume(cmd.Context(), runID)
		} else {
			rec, cerr := a.store.Create(id, requirements)
			if cerr != nil {
				return fmt.Errorf("create run: %w", cerr)
			}
			runID = rec.ID
			fmt.Fprintf(cmd.ErrOrStderr(), "Run %s\n", runID)
			final, err = a.orchestrator(runID, reviewer, nil, cmd.ErrOrStderr()).Run(cmd.Context(), runID, rec.State)
		}
		if err != nil {
			return fmt.Errorf("run %s: %w", runID, err)
		}

		rec, err := a.store.Get(runID)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Run %s %s after %d steps\n", rec.ID, rec.Status, rec.Steps)
		dir := a.store.FinalDir(rec.ID)
		fmt.Fprintf(w, "  code:  %s\n", filepath.Join(dir, orchestrator.FinalCodeFile))
		fmt.Fprintf(w, "  tests: %s\n", filepath.Join(dir, orchestrator.FinalTestsFile))
		if printCode {
			fmt.Fprintln(w)
			fmt.Fprintln(w, final.FinalCode)
			fmt.Fprintln(w)
			fmt.Fprintln(w, final.FinalTestCases)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringP("requirements", "r", "", "project requirements")
	runCmd.Flags().String("requirements-file", "", "read requirements from a file")
	runCmd.Flags().Bool("auto-approve", false, "approve the story and design without prompting")
	runCmd.Flags().String("resume", "", "resume the run with this ID")
	runCmd.Flags().String("id", "", "ID for the new run (default: generated)")
	runCmd.Flags().Bool("print", false, "print the final code and test cases")
}
