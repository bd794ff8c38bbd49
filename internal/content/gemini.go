package content

import (
	"context"
	"errors"

	"google.golang.org/genai"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.0-flash"

// GeminiGenerator calls the Gemini API through the genai SDK.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

// NewGeminiGenerator constructs the genai client.
func NewGeminiGenerator(ctx context.Context, configuration GeneratorConfig) (*GeminiGenerator, error) {
	model := configuration.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	clientConfig := &genai.ClientConfig{
		APIKey:     configuration.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: configuration.HTTPClient,
	}
	if configuration.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: configuration.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, generationError(ProviderGemini, err)
	}
	return &GeminiGenerator{client: client, model: model}, nil
}

// Generate returns the concatenated text of the first candidate.
func (generator *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	result, err := generator.client.Models.GenerateContent(ctx, generator.model, genai.Text(prompt), nil)
	if err != nil {
		return "", generationError(ProviderGemini, err)
	}
	if result == nil || len(result.Candidates) == 0 {
		return "", generationError(ProviderGemini, errors.New("no candidates returned"))
	}
	return result.Text(), nil
}
