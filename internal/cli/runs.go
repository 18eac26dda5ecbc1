package cli

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/sdlcfactory/internal/analytics"
	"github.com/lucasnoah/sdlcfactory/internal/pipeline"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect stored runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := pipeline.DefaultStore()
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}

		statusFilter, _ := cmd.Flags().GetString("status")
		records, err := store.List(statusFilter)
		if err != nil {
			return fmt.Errorf("list runs: %w", err)
		}

		format, _ := cmd.Flags().GetString("format")
		if format == "json" {
			return writeJSON(cmd, records)
		}
		if len(records) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No runs found.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tSTAGE\tSTEPS\tUPDATED")
		for _, rec := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", rec.ID, rec.Status, rec.CurrentStage, rec.Steps, rec.UpdatedAt)
		}
		return w.Flush()
	},
}

var runsStatusCmd = &cobra.Command{
	Use:   "status [run-id]",
	Short: "Show a run's stage history and attempt counters",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := pipeline.DefaultStore()
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		rec, err := store.Get(args[0])
		if err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		if format == "json" {
			return writeJSON(cmd, rec)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Run:     %s\n", rec.ID)
		fmt.Fprintf(out, "Status:  %s\n", rec.Status)
		fmt.Fprintf(out, "Stage:   %s\n", rec.CurrentStage)
		fmt.Fprintf(out, "Steps:   %d\n", rec.Steps)
		if rec.Error != "" {
			fmt.Fprintf(out, "Error:   %s\n", rec.Error)
		}
		s := rec.State
		fmt.Fprintf(out, "Attempts: story=%d design=%d code=%d review=%d security=%d tests=%d test-review=%d qa=%d\n",
			s.StoryAttempts, s.DesignAttempts, s.CodeGenAttempts, s.CodeReviewAttempts,
			s.SecurityAttempts, s.TestGenAttempts, s.TestReviewAttempts, s.QAAttempts)

		if len(rec.StageHistory) == 0 {
			return nil
		}
		fmt.Fprintln(out)
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "#\tSTAGE\tATTEMPT\tNEXT\tNOTE\tDURATION")
		for i, h := range rec.StageHistory {
			note := ""
			switch {
			case h.NoOp:
				note = "no-op"
			case h.Forced:
				note = "forced"
			}
			fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\t%s\n", i+1, h.Stage, h.Attempt, h.Next, note, h.Duration)
		}
		return w.Flush()
	},
}

var runsLogCmd = &cobra.Command{
	Use:   "log [run-id]",
	Short: "Show a run's event timeline from the event log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		database, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		events, err := analytics.QueryRunTimeline(database, args[0])
		if err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		if format == "json" {
			return writeJSON(cmd, events)
		}
		if len(events) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "No events for run %s.\n", args[0])
			return nil
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tEVENT\tSTAGE\tATTEMPT\tDETAIL")
		for _, e := range events {
			attempt := ""
			if e.Attempt > 0 {
				attempt = strconv.Itoa(e.Attempt)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.Timestamp, e.Event, e.Stage, attempt, e.Detail)
		}
		return w.Flush()
	},
}

var runsOutputCmd = &cobra.Command{
	Use:   "output [run-id] [stage] [attempt]",
	Short: "Print the raw model output captured for one stage attempt",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		attempt, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("invalid attempt %q: %w", args[2], err)
		}
		store, err := pipeline.DefaultStore()
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		out, err := store.GetStageOutput(args[0], pipeline.StageID(args[1]), attempt)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	},
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete [run-id]",
	Short: "Delete a run and its event-log rows",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := pipeline.DefaultStore()
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		if _, err := store.Get(args[0]); err != nil {
			return err
		}
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		database, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		n, err := database.DeleteRun(args[0])
		if err != nil {
			return err
		}
		if err := store.Delete(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s (%d event rows).\n", args[0], n)
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("status", "", "only show runs with this status")
	for _, c := range []*cobra.Command{runsListCmd, runsStatusCmd, runsLogCmd} {
		c.Flags().String("format", "text", "Output format: text or json")
	}
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsStatusCmd)
	runsCmd.AddCommand(runsLogCmd)
	runsCmd.AddCommand(runsOutputCmd)
	runsCmd.AddCommand(runsDeleteCmd)
}
