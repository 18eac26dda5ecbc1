package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/sdlcfactory/internal/human"
	"github.com/lucasnoah/sdlcfactory/internal/orchestrator"
	"github.com/lucasnoah/sdlcfactory/internal/pipeline"
	"github.com/lucasnoah/sdlcfactory/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start a JSON API for running pipelines remotely. Runs are started with
POST /api/runs, story and design verdicts are submitted with
POST /api/runs/{id}/verdict, and progress streams from GET /api/runs/{id}/events.
When the pending review is marked "failed", approving retries the generation
and rejecting aborts the run.

The server stops on SIGINT or SIGTERM, aborting any run still in progress.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")

		a, cleanup, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		srv := web.NewServer(web.Options{
			Store:  a.store,
			Run:    a.runStored,
			Logger: a.log,
		})
		fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s\n", addr)
		return srv.ListenAndServe(cmd.Context(), addr)
	},
}

// runStored executes a run already created in the store.
func (a *app) runStored(ctx context.Context, runID string, reviewer human.Reviewer, observe orchestrator.Observer) (pipeline.State, error) {
	rec, err := a.store.Get(runID)
	if err != nil {
		return pipeline.State{}, err
	}
	return a.orchestrator(runID, reviewer, observe, nil).Run(ctx, runID, rec.State)
}

func init() {
	serveCmd.Flags().String("addr", "127.0.0.1:8080", "address to listen on")
}
