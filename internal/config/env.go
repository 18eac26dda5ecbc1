package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/lucasnoah/sdlcfactory/internal/llm"
)

// EnvPrefix prefixes every environment override, e.g. SDLC_LLM_PROVIDER.
const EnvPrefix = "SDLC"

// LoadDotEnv loads .env from the working directory, or the given files.
// A missing file is not an error.
func LoadDotEnv(files ...string) error {
	err := godotenv.Load(files...)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// envKeys are the settings that can be overridden from the environment.
var envKeys = []string{
	"llm.provider",
	"llm.base_url",
	"llm.api_key",
	"llm.models.general",
	"llm.models.docs",
	"llm.models.coder",
	"llm.timeout",
	"llm.max_tokens",
	"pipeline.max_workers",
	"pipeline.parallelism",
	"output.dir",
	"logging.level",
	"templates_dir",
	"database.dsn",
}

// NewViper returns a viper instance bound to the SDLC_* environment.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, k := range envKeys {
		_ = v.BindEnv(k)
	}
	return v
}

// ApplyEnv overlays environment overrides read through v onto cfg. Only keys
// that are set replace file values.
func ApplyEnv(cfg *Config, v *viper.Viper) {
	str := func(key string, dst *string) {
		if v.IsSet(key) {
			if s := strings.TrimSpace(v.GetString(key)); s != "" {
				*dst = s
			}
		}
	}
	num := func(key string, dst *int) {
		if v.IsSet(key) {
			if n := v.GetInt(key); n > 0 {
				*dst = n
			}
		}
	}
	str("llm.provider", &cfg.LLM.Provider)
	str("llm.base_url", &cfg.LLM.BaseURL)
	str("llm.api_key", &cfg.LLM.APIKey)
	str("llm.models.general", &cfg.LLM.Models.General)
	str("llm.models.docs", &cfg.LLM.Models.Docs)
	str("llm.models.coder", &cfg.LLM.Models.Coder)
	str("llm.timeout", &cfg.LLM.Timeout)
	num("llm.max_tokens", &cfg.LLM.MaxTokens)
	num("pipeline.max_workers", &cfg.Pipeline.MaxWorkers)
	num("pipeline.parallelism", &cfg.Pipeline.Parallelism)
	str("output.dir", &cfg.Output.Dir)
	str("logging.level", &cfg.Logging.Level)
	str("templates_dir", &cfg.TemplatesDir)
	str("database.dsn", &cfg.Database.DSN)
}

// ResolveAPIKey returns the API key for the configured provider: an explicit
// llm.api_key first, then the provider's conventional environment variable.
func ResolveAPIKey(cfg *Config) string {
	if k := strings.TrimSpace(cfg.LLM.APIKey); k != "" {
		return k
	}
	return providerEnvKey(llm.Provider(cfg.LLM.Provider))
}

func providerEnvKey(provider llm.Provider) string {
	switch provider {
	case llm.ProviderOpenAI:
		return strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	case llm.ProviderAnthropic:
		return strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	case llm.ProviderGemini:
		key := strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
		if key == "" {
			key = strings.TrimSpace(os.Getenv("GOOGLE_API_KEY"))
		}
		return key
	case llm.ProviderGroq:
		return strings.TrimSpace(os.Getenv("GROQ_API_KEY"))
	default:
		return ""
	}
}

// LLMConfig converts the llm section into a provider config and per-role
// model names. A provider that needs credentials without any is an error.
func LLMConfig(cfg *Config) (llm.Config, llm.RoleModels, error) {
	provider, err := llm.ValidateProvider(cfg.LLM.Provider)
	if err != nil {
		return llm.Config{}, llm.RoleModels{}, err
	}
	key := ResolveAPIKey(cfg)
	if key == "" && llm.RequiresAPIKey(provider) {
		return llm.Config{}, llm.RoleModels{}, fmt.Errorf("no API key for provider %s: set llm.api_key or %s", provider, apiKeyEnvName(provider))
	}
	base := llm.Config{
		Provider:  provider,
		APIKey:    key,
		BaseURL:   cfg.LLM.BaseURL,
		MaxTokens: cfg.LLM.MaxTokens,
		Timeout:   cfg.TimeoutDuration(),
	}
	names := llm.RoleModels{
		General: cfg.LLM.Models.General,
		Docs:    cfg.LLM.Models.Docs,
		Coder:   cfg.LLM.Models.Coder,
	}
	return base, names, nil
}

func apiKeyEnvName(p llm.Provider) string {
	switch p {
	case llm.ProviderOpenAI:
		return "OPENAI_API_KEY"
	case llm.ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case llm.ProviderGemini:
		return "GEMINI_API_KEY"
	case llm.ProviderGroq:
		return "GROQ_API_KEY"
	}
	return "an API key"
}
