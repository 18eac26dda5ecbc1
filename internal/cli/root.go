package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

// configFile is the --config flag shared by every command.
var configFile string

var rootCmd = &cobra.Command{
	Use:   "sdlc",
	Short: "sdlc — a staged software-generation pipeline",
	Long: `sdlc turns a block of requirements into a user story, a design document,
per-role code, test cases and a QA verdict. Story and design are reviewed by a
human; code, security, tests and QA are reviewed by the model in bounded loops.

Run state is stored in ~/.sdlc/runs (JSON per run) and ~/.sdlc/sdlc.db (event log).`,
	SilenceUsage: true,
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command's
// context so an active run stops at the next stage boundary.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to sdlc.yaml (default: ./sdlc.yaml, then ~/.sdlc/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(chunkCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(templatesCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(analyticsCmd)
	rootCmd.AddCommand(serveCmd)
}
