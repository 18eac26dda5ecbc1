package config

import (
	"github.com/lucasnoah/sdlcfactory/internal/router"
	"github.com/lucasnoah/sdlcfactory/internal/stage"
)

// Config is the top-level configuration structure parsed from sdlc.yaml.
type Config struct {
	Pipeline     Pipeline      `yaml:"pipeline" json:"pipeline"`
	Budgets      stage.Budgets `yaml:"budgets" json:"budgets"`
	LLM          LLM           `yaml:"llm" json:"llm"`
	Output       Output        `yaml:"output" json:"output"`
	Logging      Logging       `yaml:"logging" json:"logging"`
	TemplatesDir string        `yaml:"templates_dir" json:"templates_dir,omitempty"`
	Database     Database      `yaml:"database" json:"database"`

	// caps written in the file, before defaults replaced non-positive values
	fileCaps map[string]int
}

// Pipeline holds the loop caps and concurrency limits.
type Pipeline struct {
	Name              string      `yaml:"name" json:"name"`
	Caps              router.Caps `yaml:"caps" json:"caps"`
	MaxAutomatedSteps int         `yaml:"max_automated_steps" json:"max_automated_steps"`
	MaxWorkers        int         `yaml:"max_workers" json:"max_workers"`
	Parallelism       int         `yaml:"parallelism" json:"parallelism"`
}

// LLM selects the provider and the model for each role.
type LLM struct {
	Provider  string     `yaml:"provider" json:"provider"`
	BaseURL   string     `yaml:"base_url" json:"base_url,omitempty"`
	APIKey    string     `yaml:"api_key" json:"-"`
	Models    ModelNames `yaml:"models" json:"models"`
	MaxTokens int        `yaml:"max_tokens" json:"max_tokens"`
	Timeout   string     `yaml:"timeout" json:"timeout"`
}

// ModelNames names the model used for each role.
type ModelNames struct {
	General string `yaml:"general" json:"general"`
	Docs    string `yaml:"docs" json:"docs"`
	Coder   string `yaml:"coder" json:"coder"`
}

// Output configures where final artifacts are copied.
type Output struct {
	Dir string `yaml:"dir" json:"dir,omitempty"`
}

// Logging configures the structured debug log.
type Logging struct {
	Level string `yaml:"level" json:"level"`
}

// Database names the event-log database. A postgres:// URL selects Postgres;
// anything else is a SQLite file path. Empty means ~/.sdlc/sdlc.db.
type Database struct {
	DSN string `yaml:"dsn" json:"dsn,omitempty"`
}
