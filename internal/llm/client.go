package llm

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
)

// Provider identifies the chat model backend.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderOllama    Provider = "ollama"
	ProviderAnthropic Provider = "anthropic"
	ProviderGemini    Provider = "gemini"
	// ProviderGroq talks to Groq through its OpenAI-compatible endpoint.
	ProviderGroq Provider = "groq"
)

const (
	DefaultOllamaURL = "http://localhost:11434"
	DefaultGroqURL   = "https://api.groq.com/openai/v1"
	DefaultMaxTokens = 4096
)

// Config configures one chat model.
type Config struct {
	Provider  Provider
	Model     string
	APIKey    string
	BaseURL   string
	MaxTokens int
	Timeout   time.Duration
}

// ValidateProvider checks that p names a supported provider.
func ValidateProvider(p string) (Provider, error) {
	switch Provider(p) {
	case ProviderOpenAI, ProviderOllama, ProviderAnthropic, ProviderGemini, ProviderGroq:
		return Provider(p), nil
	}
	return "", fmt.Errorf("unsupported provider: %s (supported: openai, ollama, anthropic, gemini, groq)", p)
}

// RequiresAPIKey reports whether p needs credentials.
func RequiresAPIKey(p Provider) bool {
	return p != ProviderOllama
}

// NewChatModel builds an Eino chat model for cfg.
func NewChatModel(ctx context.Context, cfg Config) (model.BaseChatModel, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("%s: model name is required", cfg.Provider)
	}
	if RequiresAPIKey(cfg.Provider) && cfg.APIKey == "" {
		return nil, fmt.Errorf("%s API key is required", cfg.Provider)
	}

	switch cfg.Provider {
	case ProviderOpenAI, ProviderGroq:
		baseURL := cfg.BaseURL
		if baseURL == "" && cfg.Provider == ProviderGroq {
			baseURL = DefaultGroqURL
		}
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			Model:   cfg.Model,
			APIKey:  cfg.APIKey,
			BaseURL: baseURL,
			Timeout: cfg.Timeout,
		})

	case ProviderOllama:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = DefaultOllamaURL
		}
		return ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
			BaseURL: baseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		})

	case ProviderAnthropic:
		maxTokens := cfg.MaxTokens
		if maxTokens <= 0 {
			maxTokens = DefaultMaxTokens
		}
		return claude.NewChatModel(ctx, &claude.Config{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			MaxTokens: maxTokens,
		})

	case ProviderGemini:
		// The gemini extension resolves credentials from the environment.
		_ = os.Setenv("GOOGLE_API_KEY", cfg.APIKey)
		_ = os.Setenv("GEMINI_API_KEY", cfg.APIKey)
		return gemini.NewChatModel(ctx, &gemini.Config{
			Model: cfg.Model,
		})
	}
	return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
}

// RoleModels names the model used for each role. Empty roles fall back to
// General.
type RoleModels struct {
	General string
	Docs    string
	Coder   string
}

// NewModels builds one generator per role, reusing a chat model when two roles
// name the same model.
func NewModels(ctx context.Context, base Config, names RoleModels) (Models, error) {
	if names.Docs == "" {
		names.Docs = names.General
	}
	if names.Coder == "" {
		names.Coder = names.General
	}

	built := map[string]model.BaseChatModel{}
	build := func(role, name string) (Generator, error) {
		m, ok := built[name]
		if !ok {
			cfg := base
			cfg.Model = name
			var err error
			m, err = NewChatModel(ctx, cfg)
			if err != nil {
				return nil, fmt.Errorf("%s model: %w", role, err)
			}
			built[name] = m
		}
		return NewChatGenerator(role, m), nil
	}

	var out Models
	var err error
	if out.General, err = build(RoleGeneral, names.General); err != nil {
		return Models{}, err
	}
	if out.Docs, err = build(RoleDocs, names.Docs); err != nil {
		return Models{}, err
	}
	if out.Coder, err = build(RoleCoder, names.Coder); err != nil {
		return Models{}, err
	}
	return out, nil
}
