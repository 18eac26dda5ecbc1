package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lucasnoah/sdlcfactory/internal/llm"
	"github.com/lucasnoah/sdlcfactory/internal/router"
)

const validConfig = `
pipeline:
  name: todo-app
  caps:
    code_review: 3
    security: 2
    test_review: 1
    qa: 1
  max_workers: 4
  parallelism: 2
budgets:
  code_review: 4000
  context_window: 8000
llm:
  provider: openai
  base_url: http://localhost:8080/v1
  models:
    general: gpt-4o
    coder: gpt-4o-mini
  max_tokens: 2048
  timeout: 90s
output:
  dir: ./out
logging:
  level: debug
templates_dir: ./templates
database:
  dsn: postgres://localhost/sdlc
`

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "sdlc.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeTestConfig(t, validConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Pipeline.Name != "todo-app" {
		t.Errorf("Name = %q, want %q", cfg.Pipeline.Name, "todo-app")
	}
	want := router.Caps{CodeReview: 3, Security: 2, TestReview: 1, QA: 1}
	if cfg.Pipeline.Caps != want {
		t.Errorf("Caps = %+v, want %+v", cfg.Pipeline.Caps, want)
	}
	if cfg.Pipeline.MaxAutomatedSteps != want.MaxAutomatedSteps() {
		t.Errorf("MaxAutomatedSteps = %d, want derived %d", cfg.Pipeline.MaxAutomatedSteps, want.MaxAutomatedSteps())
	}
	if cfg.Pipeline.MaxWorkers != 4 || cfg.Pipeline.Parallelism != 2 {
		t.Errorf("workers/parallelism = %d/%d", cfg.Pipeline.MaxWorkers, cfg.Pipeline.Parallelism)
	}
	if cfg.Budgets.CodeReview != 4000 || cfg.Budgets.ContextWindow != 8000 {
		t.Errorf("explicit budgets lost: %+v", cfg.Budgets)
	}
	if cfg.Budgets.Security != 5500 {
		t.Errorf("Budgets.Security = %d, want default 5500", cfg.Budgets.Security)
	}
	if cfg.LLM.Models.Docs != "gpt-4o" {
		t.Errorf("Docs model = %q, want fallback to general", cfg.LLM.Models.Docs)
	}
	if cfg.LLM.Models.Coder != "gpt-4o-mini" {
		t.Errorf("Coder model = %q", cfg.LLM.Models.Coder)
	}
	if cfg.TimeoutDuration() != 90*time.Second {
		t.Errorf("timeout = %v", cfg.TimeoutDuration())
	}
	if cfg.Database.DSN != "postgres://localhost/sdlc" {
		t.Errorf("DSN = %q", cfg.Database.DSN)
	}
	if errs := Validate(cfg); len(errs) != 0 {
		t.Errorf("Validate() = %v, want none", errs)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.LLM.Provider != DefaultProvider {
		t.Errorf("Provider = %q", cfg.LLM.Provider)
	}
	if cfg.LLM.Models.General != DefaultGeneralModel || cfg.LLM.Models.Docs != DefaultDocsModel || cfg.LLM.Models.Coder != DefaultCoderModel {
		t.Errorf("Models = %+v", cfg.LLM.Models)
	}
	if cfg.Pipeline.Caps != router.DefaultCaps() {
		t.Errorf("Caps = %+v", cfg.Pipeline.Caps)
	}
	if cfg.Pipeline.MaxAutomatedSteps != 46 {
		t.Errorf("MaxAutomatedSteps = %d, want 46", cfg.Pipeline.MaxAutomatedSteps)
	}
	if cfg.Budgets.CodeReview != 5800 || cfg.Budgets.ContextWindow != 6000 || cfg.Budgets.PromptReserve != 1000 {
		t.Errorf("Budgets = %+v", cfg.Budgets)
	}
	if errs := Validate(cfg); len(errs) != 0 {
		t.Errorf("default config invalid: %v", errs)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeTestConfig(t, "pipeline: [unterminated")
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadDefault_FallsBackToBuiltins(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	wd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	cfg, path, err := LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault: %v", err)
	}
	if path != "" {
		t.Errorf("path = %q, want empty", path)
	}
	if cfg.LLM.Provider != DefaultProvider {
		t.Errorf("expected built-in defaults, got %+v", cfg.LLM)
	}

	if err := os.WriteFile(filepath.Join(dir, "sdlc.yaml"), []byte("pipeline:\n  name: local\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, path, err = LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault: %v", err)
	}
	if path != "sdlc.yaml" || cfg.Pipeline.Name != "local" {
		t.Errorf("path=%q name=%q", path, cfg.Pipeline.Name)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"zero cap", func(c *Config) { c.Pipeline.Caps.QA = 0 }, "pipeline.caps.qa"},
		{"negative workers", func(c *Config) { c.Pipeline.MaxWorkers = -1 }, "pipeline.max_workers"},
		{"no parallelism", func(c *Config) { c.Pipeline.Parallelism = 0 }, "pipeline.parallelism"},
		{"step bound below caps", func(c *Config) { c.Pipeline.MaxAutomatedSteps = 10 }, "pipeline.max_automated_steps"},
		{"zero budget", func(c *Config) { c.Budgets.Tests = 0 }, "budgets.tests"},
		{"reserve exceeds window", func(c *Config) { c.Budgets.PromptReserve = 7000 }, "budgets.prompt_reserve"},
		{"bad provider", func(c *Config) { c.LLM.Provider = "watson" }, "llm.provider"},
		{"missing model", func(c *Config) { c.LLM.Models.Coder = "" }, "llm.models.coder"},
		{"bad timeout", func(c *Config) { c.LLM.Timeout = "soon" }, "llm.timeout"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			errs := Validate(cfg)
			found := false
			for _, e := range errs {
				if e.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error on %s, got %v", tt.field, errs)
			}
		})
	}
}

func TestValidate_ExplicitCapsFromFile(t *testing.T) {
	tests := []struct {
		name  string
		caps  string
		field string
	}{
		{"zero qa", "    qa: 0\n", "pipeline.caps.qa"},
		{"negative security", "    security: -1\n", "pipeline.caps.security"},
		{"zero code review", "    code_review: 0\n", "pipeline.caps.code_review"},
		{"omitted caps default", "", ""},
		{"positive cap", "    test_review: 3\n", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTestConfig(t, "pipeline:\n  caps:\n"+tt.caps)
			cfg, err := Load(path)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			errs := Validate(cfg)
			if tt.field == "" {
				if len(errs) != 0 {
					t.Errorf("Validate() = %v, want none", errs)
				}
				return
			}
			found := false
			for _, e := range errs {
				if e.Field == tt.field && strings.Contains(e.Message, "at least 1") {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error on %s, got %v", tt.field, errs)
			}
		})
	}
}

func TestValidationErrorString(t *testing.T) {
	e := ValidationError{Field: "llm.provider", Message: "is required"}
	if e.Error() != "llm.provider: is required" {
		t.Errorf("Error() = %q", e.Error())
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("SDLC_LLM_PROVIDER", "ollama")
	t.Setenv("SDLC_LLM_MODELS_CODER", "qwen2.5-coder")
	t.Setenv("SDLC_PIPELINE_PARALLELISM", "8")
	t.Setenv("SDLC_DATABASE_DSN", "/tmp/events.db")

	cfg := Default()
	ApplyEnv(cfg, NewViper())

	if cfg.LLM.Provider != "ollama" {
		t.Errorf("Provider = %q", cfg.LLM.Provider)
	}
	if cfg.LLM.Models.Coder != "qwen2.5-coder" {
		t.Errorf("Coder = %q", cfg.LLM.Models.Coder)
	}
	if cfg.LLM.Models.General != DefaultGeneralModel {
		t.Errorf("unset key overridden: General = %q", cfg.LLM.Models.General)
	}
	if cfg.Pipeline.Parallelism != 8 {
		t.Errorf("Parallelism = %d", cfg.Pipeline.Parallelism)
	}
	if cfg.Database.DSN != "/tmp/events.db" {
		t.Errorf("DSN = %q", cfg.Database.DSN)
	}
}

func TestResolveAPIKey(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "groq-env")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "google-env")

	tests := []struct {
		provider string
		explicit string
		want     string
	}{
		{"groq", "", "groq-env"},
		{"groq", "from-config", "from-config"},
		{"gemini", "", "google-env"},
		{"ollama", "", ""},
	}
	for _, tt := range tests {
		cfg := Default()
		cfg.LLM.Provider = tt.provider
		cfg.LLM.APIKey = tt.explicit
		if got := ResolveAPIKey(cfg); got != tt.want {
			t.Errorf("ResolveAPIKey(%s, %q) = %q, want %q", tt.provider, tt.explicit, got, tt.want)
		}
	}
}

func TestLLMConfig(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	cfg := Default()
	cfg.LLM.Provider = "openai"
	if _, _, err := LLMConfig(cfg); err == nil || !strings.Contains(err.Error(), "OPENAI_API_KEY") {
		t.Errorf("expected missing key error, got %v", err)
	}

	cfg.LLM.APIKey = "sk-test"
	base, names, err := LLMConfig(cfg)
	if err != nil {
		t.Fatalf("LLMConfig: %v", err)
	}
	if base.Provider != llm.ProviderOpenAI || base.APIKey != "sk-test" {
		t.Errorf("base = %+v", base)
	}
	if base.Timeout != 2*time.Minute {
		t.Errorf("Timeout = %v", base.Timeout)
	}
	if names.Coder != DefaultCoderModel {
		t.Errorf("names = %+v", names)
	}

	cfg.LLM.Provider = "ollama"
	cfg.LLM.APIKey = ""
	if _, _, err := LLMConfig(cfg); err != nil {
		t.Errorf("ollama needs no key: %v", err)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("SDLC_TEST_DOTENV=loaded\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SDLC_TEST_DOTENV", "")
	os.Unsetenv("SDLC_TEST_DOTENV")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if os.Getenv("SDLC_TEST_DOTENV") != "loaded" {
		t.Error("variable from .env not loaded")
	}
	if err := LoadDotEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Errorf("missing file should be ignored: %v", err)
	}
}
