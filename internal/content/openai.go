package content

import (
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "gpt-4.1-mini"

// OpenAIGenerator calls an OpenAI-compatible chat completion endpoint.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

// NewOpenAIGenerator constructs the client; BaseURL points it at compatible servers.
func NewOpenAIGenerator(configuration GeneratorConfig) *OpenAIGenerator {
	clientConfig := openai.DefaultConfig(configuration.APIKey)
	if configuration.BaseURL != "" {
		clientConfig.BaseURL = configuration.BaseURL
	}
	if configuration.HTTPClient != nil {
		clientConfig.HTTPClient = configuration.HTTPClient
	}
	model := configuration.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
	}
}

// Generate returns the content of the first choice.
func (generator *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	response, err := generator.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: generator.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
	})
	if err != nil {
		return "", generationError(ProviderOpenAI, err)
	}
	if len(response.Choices) == 0 {
		return "", generationError(ProviderOpenAI, errors.New("no choices returned"))
	}
	return response.Choices[0].Message.Content, nil
}
