package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"
)

const (
	ProviderGemini = "gemini"
	ProviderArk    = "ark"
	ProviderOpenAI = "openai"
	ProviderClaude = "claude"
)

// placeholderAPIKey is the value shipped in the sample .env file.
const placeholderAPIKey = "YOUR_GEMINI_API_KEY_HERE"

// ErrAIDisabled is returned by NewChatModel when no usable credentials are configured.
var ErrAIDisabled = errors.New("ai provider credentials are not configured")

// AIConfig describes the text-generation provider.
type AIConfig struct {
	Provider     string
	APIKey       string
	AccessKey    string
	SecretKey    string
	Model        string
	BaseURL      string
	Region       string
	Temperature  *float64
	TopP         *float64
	MaxTokens    *int
	SystemPrompt string
}

// Enabled reports whether the provider has the credentials it needs.
func (c AIConfig) Enabled() bool {
	switch c.Provider {
	case ProviderArk:
		return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
	case ProviderGemini, ProviderOpenAI, ProviderClaude:
		return c.Model != "" && c.APIKey != "" && c.APIKey != placeholderAPIKey
	default:
		return false
	}
}

// NewChatModel builds the eino chat model for the configured provider.
func (c AIConfig) NewChatModel(ctx context.Context) (model.BaseChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("%w (provider=%s)", ErrAIDisabled, c.Provider)
	}

	temperature := float32Ptr(c.Temperature)
	topP := float32Ptr(c.TopP)

	switch c.Provider {
	case ProviderGemini:
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  c.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("create genai client: %w", err)
		}
		cm, err := gemini.NewChatModel(ctx, &gemini.Config{
			Client:      client,
			Model:       c.Model,
			MaxTokens:   c.MaxTokens,
			Temperature: temperature,
			TopP:        topP,
		})
		if err != nil {
			return nil, err
		}
		return cm, nil

	case ProviderArk:
		cm, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
			BaseURL:     c.BaseURL,
			Region:      c.Region,
			APIKey:      c.APIKey,
			AccessKey:   c.AccessKey,
			SecretKey:   c.SecretKey,
			Model:       c.Model,
			MaxTokens:   c.MaxTokens,
			Temperature: temperature,
			TopP:        topP,
		})
		if err != nil {
			return nil, err
		}
		return cm, nil

	case ProviderOpenAI:
		cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey:      c.APIKey,
			BaseURL:     c.BaseURL,
			Model:       c.Model,
			MaxTokens:   c.MaxTokens,
			Temperature: temperature,
			TopP:        topP,
		})
		if err != nil {
			return nil, err
		}
		return cm, nil

	case ProviderClaude:
		maxTokens := 2048
		if c.MaxTokens != nil {
			maxTokens = *c.MaxTokens
		}
		cm, err := claude.NewChatModel(ctx, &claude.Config{
			APIKey:      c.APIKey,
			Model:       c.Model,
			MaxTokens:   maxTokens,
			Temperature: temperature,
			TopP:        topP,
		})
		if err != nil {
			return nil, err
		}
		return cm, nil
	}

	return nil, fmt.Errorf("unsupported AI_PROVIDER: %s", c.Provider)
}

func loadAIConfig() (AIConfig, error) {
	provider := strings.ToLower(getEnvOrDefault("AI_PROVIDER", ProviderGemini))

	temperature, err := parseOptionalFloatEnv("AI_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("AI_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("AI_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	cfg := AIConfig{
		Provider:     provider,
		Temperature:  temperature,
		TopP:         topP,
		MaxTokens:    maxTokens,
		SystemPrompt: strings.TrimSpace(os.Getenv("AI_SYSTEM_PROMPT")),
	}

	switch provider {
	case ProviderGemini:
		cfg.APIKey = getEnvOrDefault("GEMINI_API_KEY", os.Getenv("AI_API_KEY"))
		cfg.Model = getEnvOrDefault("AI_MODEL", "gemini-2.5-flash")
	case ProviderArk:
		cfg.APIKey = getEnvOrDefault("ARK_API_KEY", os.Getenv("AI_API_KEY"))
		cfg.AccessKey = strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY"))
		cfg.SecretKey = strings.TrimSpace(os.Getenv("ARK_SECRET_KEY"))
		cfg.Model = strings.TrimSpace(os.Getenv("AI_MODEL"))
		cfg.BaseURL = getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3")
		cfg.Region = getEnvOrDefault("ARK_REGION", "cn-beijing")
	case ProviderOpenAI:
		cfg.APIKey = getEnvOrDefault("OPENAI_API_KEY", os.Getenv("AI_API_KEY"))
		cfg.Model = getEnvOrDefault("AI_MODEL", "gpt-4o-mini")
		cfg.BaseURL = strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))
	case ProviderClaude:
		cfg.APIKey = getEnvOrDefault("ANTHROPIC_API_KEY", os.Getenv("AI_API_KEY"))
		cfg.Model = getEnvOrDefault("AI_MODEL", "claude-3-5-haiku-latest")
	default:
		return AIConfig{}, fmt.Errorf("invalid AI_PROVIDER value: %q", provider)
	}
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)

	return cfg, nil
}

func float32Ptr(v *float64) *float32 {
	if v == nil {
		return nil
	}
	f := float32(*v)
	return &f
}
