package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/sdlcfactory/internal/config"
	"github.com/lucasnoah/sdlcfactory/internal/db"
	"github.com/lucasnoah/sdlcfactory/internal/human"
	"github.com/lucasnoah/sdlcfactory/internal/llm"
	"github.com/lucasnoah/sdlcfactory/internal/logging"
	"github.com/lucasnoah/sdlcfactory/internal/orchestrator"
	"github.com/lucasnoah/sdlcfactory/internal/pipeline"
	"github.com/lucasnoah/sdlcfactory/internal/prompt"
	"github.com/lucasnoah/sdlcfactory/internal/stage"
)

// newModels builds the role generators. Tests replace it with a scripted
// generator.
var newModels = func(ctx context.Context, cfg *config.Config) (llm.Models, error) {
	base, names, err := config.LLMConfig(cfg)
	if err != nil {
		return llm.Models{}, err
	}
	return llm.NewModels(ctx, base, names)
}

// loadConfig reads .env, the config file and SDLC_* overrides, in that order
// of increasing precedence.
func loadConfig() (*config.Config, string, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, "", err
	}
	var (
		cfg  *config.Config
		path string
		err  error
	)
	if configFile != "" {
		path = configFile
		cfg, err = config.Load(configFile)
	} else {
		cfg, path, err = config.LoadDefault()
	}
	if err != nil {
		return nil, "", err
	}
	config.ApplyEnv(cfg, config.NewViper())
	return cfg, path, nil
}

// openDB opens and migrates the configured event-log database.
func openDB(cfg *config.Config) (*db.DB, error) {
	dsn := cfg.Database.DSN
	if dsn == "" {
		path, err := db.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("db path: %w", err)
		}
		dsn = path
	}
	database, err := db.Open(dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := database.Migrate(); err != nil {
		database.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return database, nil
}

// app holds what a pipeline run needs: configuration, the run store, the
// event log and a stage engine bound to the configured models.
type app struct {
	cfg    *config.Config
	store  *pipeline.Store
	db     *db.DB
	log    *logging.Logger
	engine *stage.Engine
}

// newApp loads configuration and opens every backing store. The returned
// cleanup closes them.
func newApp(ctx context.Context) (*app, func(), error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		return nil, nil, fmt.Errorf("config has %d validation error(s), first: %s", len(errs), errs[0])
	}

	store, err := pipeline.DefaultStore()
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	log, err := logging.New(filepath.Join(filepath.Dir(store.BaseDir()), "logs"), cfg.Logging.Level)
	if err != nil {
		return nil, nil, err
	}
	database, err := openDB(cfg)
	if err != nil {
		log.Close()
		return nil, nil, err
	}
	models, err := newModels(ctx, cfg)
	if err != nil {
		database.Close()
		log.Close()
		return nil, nil, err
	}

	templates := cfg.TemplatesDir
	if templates == "" {
		templates = prompt.DefaultDir()
	}
	engine := stage.NewEngine(stage.Options{
		Models:      models,
		Prompts:     prompt.NewSet(templates),
		Budgets:     cfg.Budgets,
		MaxWorkers:  cfg.Pipeline.MaxWorkers,
		Parallelism: cfg.Pipeline.Parallelism,
	})
	engine.SetLogger(log)

	a := &app{cfg: cfg, store: store, db: database, log: log, engine: engine}
	cleanup := func() {
		database.Close()
		log.Close()
	}
	return a, cleanup, nil
}

// orchestrator wires one run: its reviewer, stage-output capture, event log,
// final-artifact persistence and progress output.
func (a *app) orchestrator(runID string, reviewer human.Reviewer, observe orchestrator.Observer, progress io.Writer) *orchestrator.Orchestrator {
	log := a.log.WithRun(runID)
	engine := a.engine.ForRun(runID, reviewer, func(id pipeline.StageID, attempt int, output string) {
		if err := a.store.SaveStageOutput(runID, id, attempt, output); err != nil {
			log.Warn("save stage output", "stage", id, "attempt", attempt, "error", err)
		}
	})
	if progress != nil {
		engine.SetProgress(progress)
	}

	g := orchestrator.DefaultGraph(engine.Funcs(), a.cfg.Pipeline.Caps)
	o := orchestrator.New(g, orchestrator.Options{
		Store:             a.store,
		Events:            a.db,
		Persister:         &orchestrator.FilePersister{Store: a.store, OutputDir: a.cfg.Output.Dir},
		Observer:          observe,
		MaxAutomatedSteps: a.cfg.Pipeline.MaxAutomatedSteps,
		Logger:            a.log,
	})
	if progress != nil {
		o.SetProgress(progress)
	}
	return o
}

func writeJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
