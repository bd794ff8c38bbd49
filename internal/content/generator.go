package content

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// DefaultPrompt asks for a single plain post so that sanitization rarely has to discard anything.
const DefaultPrompt = "Write a single, concise tweet (under 280 characters) for #techtwitter. Do not include options, explanations, or formatting. Just the tweet text."

// Supported generation providers.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

var (
	// ErrGenerationFailed wraps any failure of the generation service.
	ErrGenerationFailed = errors.New("content.generation_failed")
	// ErrUnsupportedProvider indicates an unknown provider name in GeneratorConfig.
	ErrUnsupportedProvider = errors.New("content.unsupported_provider")
	// ErrMissingAPIKey indicates the generator was configured without credentials.
	ErrMissingAPIKey = errors.New("content.missing_api_key")
)

// Generator produces raw candidate text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorConfig selects and configures a provider.
type GeneratorConfig struct {
	Provider   string
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// NewGenerator builds the configured provider client once; it is reused across invocations.
func NewGenerator(ctx context.Context, configuration GeneratorConfig) (Generator, error) {
	if strings.TrimSpace(configuration.APIKey) == "" {
		return nil, fmt.Errorf("content.new_generator: %w", ErrMissingAPIKey)
	}
	switch strings.ToLower(strings.TrimSpace(configuration.Provider)) {
	case "", ProviderGemini:
		return NewGeminiGenerator(ctx, configuration)
	case ProviderOpenAI:
		return NewOpenAIGenerator(configuration), nil
	default:
		return nil, fmt.Errorf("content.new_generator.%s: %w", configuration.Provider, ErrUnsupportedProvider)
	}
}

func generationError(provider string, cause error) error {
	return fmt.Errorf("content.generate.%s: %w: %w", provider, ErrGenerationFailed, cause)
}
