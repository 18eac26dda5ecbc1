package config

import (
	"fmt"
	"time"

	"github.com/lucasnoah/sdlcfactory/internal/llm"
)

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks a Config for semantic errors.
// It returns a slice of all validation errors found (empty if valid).
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	p := cfg.Pipeline
	for _, c := range []struct {
		field string
		value int
	}{
		{"pipeline.caps.code_review", p.Caps.CodeReview},
		{"pipeline.caps.security", p.Caps.Security},
		{"pipeline.caps.test_review", p.Caps.TestReview},
		{"pipeline.caps.qa", p.Caps.QA},
	} {
		v := c.value
		if set, ok := cfg.fileCaps[c.field]; ok {
			v = set
		}
		if v < 1 {
			add(c.field, "must be at least 1, got %d", v)
		}
	}
	if p.MaxWorkers < 0 {
		add("pipeline.max_workers", "must not be negative")
	}
	if p.Parallelism < 1 {
		add("pipeline.parallelism", "must be at least 1")
	}
	if floor := p.Caps.MaxAutomatedSteps(); p.MaxAutomatedSteps < floor {
		add("pipeline.max_automated_steps", "must be at least %d for the configured caps, got %d", floor, p.MaxAutomatedSteps)
	}

	b := cfg.Budgets
	for _, f := range []struct {
		field string
		value int
	}{
		{"budgets.code_review", b.CodeReview},
		{"budgets.security", b.Security},
		{"budgets.tests", b.Tests},
		{"budgets.test_review", b.TestReview},
		{"budgets.context_window", b.ContextWindow},
		{"budgets.min_chunk_budget", b.MinChunkBudget},
	} {
		if f.value < 1 {
			add(f.field, "must be positive")
		}
	}
	if b.PromptReserve < 0 {
		add("budgets.prompt_reserve", "must not be negative")
	}
	if b.PromptReserve >= b.ContextWindow && b.ContextWindow > 0 {
		add("budgets.prompt_reserve", "must be smaller than context_window (%d)", b.ContextWindow)
	}

	if _, err := llm.ValidateProvider(cfg.LLM.Provider); err != nil {
		add("llm.provider", "%v", err)
	}
	for _, m := range []struct{ field, value string }{
		{"llm.models.general", cfg.LLM.Models.General},
		{"llm.models.docs", cfg.LLM.Models.Docs},
		{"llm.models.coder", cfg.LLM.Models.Coder},
	} {
		if m.value == "" {
			add(m.field, "is required")
		}
	}
	if cfg.LLM.Timeout != "" {
		if d, err := time.ParseDuration(cfg.LLM.Timeout); err != nil || d <= 0 {
			add("llm.timeout", "invalid duration %q", cfg.LLM.Timeout)
		}
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		add("logging.level", "unrecognized level %q (want one of debug, info, warn, error)", cfg.Logging.Level)
	}

	return errs
}
