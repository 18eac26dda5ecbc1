package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lucasnoah/sdlcfactory/internal/llm"
)

// Default models per role.
const (
	DefaultProvider     = "groq"
	DefaultGeneralModel = "llama-3.3-70b-versatile"
	DefaultDocsModel    = "gemma2-9b-it"
	DefaultCoderModel   = "qwen-2.5-coder-32b"
	DefaultTimeout      = "2m"
	DefaultLogLevel     = "info"
)

// Load reads and parses a configuration from the given YAML file path.
// After parsing, it fills every unset value with its default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	var raw rawCaps
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	cfg.fileCaps = raw.set()

	applyDefaults(&cfg)
	return &cfg, nil
}

// rawCaps distinguishes caps absent from the file from caps set to zero.
type rawCaps struct {
	Pipeline struct {
		Caps struct {
			CodeReview *int `yaml:"code_review"`
			Security   *int `yaml:"security"`
			TestReview *int `yaml:"test_review"`
			QA         *int `yaml:"qa"`
		} `yaml:"caps"`
	} `yaml:"pipeline"`
}

func (r rawCaps) set() map[string]int {
	c := r.Pipeline.Caps
	set := map[string]int{}
	for field, v := range map[string]*int{
		"pipeline.caps.code_review": c.CodeReview,
		"pipeline.caps.security":    c.Security,
		"pipeline.caps.test_review": c.TestReview,
		"pipeline.caps.qa":          c.QA,
	} {
		if v != nil {
			set[field] = *v
		}
	}
	return set
}

// SearchPaths returns the locations LoadDefault tries, in order.
func SearchPaths() []string {
	candidates := []string{"sdlc.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".sdlc", "config.yaml"))
	}
	return candidates
}

// LoadDefault loads the first config found in SearchPaths. When none exists
// the built-in defaults are returned with an empty path.
func LoadDefault() (*Config, string, error) {
	for _, path := range SearchPaths() {
		if _, err := os.Stat(path); err == nil {
			cfg, err := Load(path)
			return cfg, path, err
		}
	}
	return Default(), "", nil
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// applyDefaults fills zero values. Role models fall back to the general
// model when only that one is set.
func applyDefaults(cfg *Config) {
	p := &cfg.Pipeline
	if p.Name == "" {
		p.Name = "sdlc"
	}
	p.Caps = p.Caps.WithDefaults()
	if p.MaxAutomatedSteps <= 0 {
		p.MaxAutomatedSteps = p.Caps.MaxAutomatedSteps()
	}
	if p.Parallelism <= 0 {
		p.Parallelism = 4
	}

	cfg.Budgets = cfg.Budgets.WithDefaults()

	l := &cfg.LLM
	if l.Provider == "" {
		l.Provider = DefaultProvider
	}
	if l.Models.General == "" {
		if l.Provider == DefaultProvider {
			l.Models.General = DefaultGeneralModel
			if l.Models.Docs == "" {
				l.Models.Docs = DefaultDocsModel
			}
			if l.Models.Coder == "" {
				l.Models.Coder = DefaultCoderModel
			}
		}
	}
	if l.Models.Docs == "" {
		l.Models.Docs = l.Models.General
	}
	if l.Models.Coder == "" {
		l.Models.Coder = l.Models.General
	}
	if l.MaxTokens <= 0 {
		l.MaxTokens = llm.DefaultMaxTokens
	}
	if l.Timeout == "" {
		l.Timeout = DefaultTimeout
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
}

// TimeoutDuration parses LLM.Timeout, returning 0 when it is unparseable.
func (c *Config) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 0
	}
	return d
}
