package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/sdlcfactory/internal/analytics"
	"github.com/lucasnoah/sdlcfactory/internal/db"
)

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Query pipeline performance analytics",
}

// withDB opens the configured database for the duration of fn.
func withDB(fn func(database *db.DB) error) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	database, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer database.Close()
	return fn(database)
}

var analyticsLoopsCmd = &cobra.Command{
	Use:   "loops",
	Short: "Attempts per bounded loop and how often the cap forced progress",
	RunE: func(cmd *cobra.Command, args []string) error {
		since, _ := cmd.Flags().GetString("since")
		format, _ := cmd.Flags().GetString("format")
		return withDB(func(database *db.DB) error {
			stats, err := analytics.QueryLoopStats(database, since)
			if err != nil {
				return err
			}
			if format == "json" {
				return writeJSON(cmd, stats)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STAGE\tRUNS\tEXEC\tNO-OPS\tAVG ATT\tMAX ATT\tFORCED")
			for _, s := range stats {
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%.1f\t%d\t%d (%.0f%%)\n",
					s.Stage, s.Runs, s.Executions, s.NoOps, s.AvgAttempts, s.MaxAttempts, s.Forced, s.ForcedPct)
			}
			return w.Flush()
		})
	},
}

var analyticsDurationsCmd = &cobra.Command{
	Use:   "durations",
	Short: "Average and percentile durations per stage",
	RunE: func(cmd *cobra.Command, args []string) error {
		since, _ := cmd.Flags().GetString("since")
		format, _ := cmd.Flags().GetString("format")
		return withDB(func(database *db.DB) error {
			durations, err := analytics.QueryStageDurations(database, since)
			if err != nil {
				return err
			}
			if format == "json" {
				return writeJSON(cmd, durations)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STAGE\tCOUNT\tAVG\tP50\tP95")
			for _, d := range durations {
				fmt.Fprintf(w, "%s\t%d\t%.1fs\t%.1fs\t%.1fs\n", d.Stage, d.Count, d.Avg, d.P50, d.P95)
			}
			return w.Flush()
		})
	},
}

var analyticsOutcomesCmd = &cobra.Command{
	Use:   "outcomes",
	Short: "Run counts by outcome",
	RunE: func(cmd *cobra.Command, args []string) error {
		since, _ := cmd.Flags().GetString("since")
		format, _ := cmd.Flags().GetString("format")
		return withDB(func(database *db.DB) error {
			o, err := analytics.QueryRunOutcomes(database, since)
			if err != nil {
				return err
			}
			if format == "json" {
				return writeJSON(cmd, o)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Started:   %d\n", o.Started)
			fmt.Fprintf(out, "Completed: %d\n", o.Completed)
			fmt.Fprintf(out, "Failed:    %d\n", o.Failed)
			fmt.Fprintf(out, "Aborted:   %d\n", o.Aborted)
			fmt.Fprintf(out, "Avg steps: %.1f\n", o.AvgSteps)
			return nil
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{analyticsLoopsCmd, analyticsDurationsCmd, analyticsOutcomesCmd} {
		c.Flags().String("since", "", "only count events after this time (YYYY-MM-DD HH:MM:SS)")
		c.Flags().String("format", "text", "Output format: text or json")
		analyticsCmd.AddCommand(c)
	}
}
