package publisher

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tyemirov/postbot/internal/authflow"
	"github.com/tyemirov/postbot/internal/content"
	"github.com/tyemirov/postbot/internal/platform"
	"go.uber.org/zap"
)

// TokenProvider yields an HTTP client bound to a fresh access token.
type TokenProvider interface {
	EnsureFreshToken(ctx context.Context) (*authflow.AuthorizedClient, error)
}

// Poster submits sanitized text to the platform.
type Poster interface {
	CreatePost(ctx context.Context, text string) (platform.Post, error)
}

// PosterFactory binds a Poster to an authorized HTTP client.
type PosterFactory func(httpClient *http.Client) Poster

// PlatformPosters returns a PosterFactory for the X API at baseURL.
func PlatformPosters(baseURL string) PosterFactory {
	return func(httpClient *http.Client) Poster {
		return platform.NewClient(baseURL, httpClient)
	}
}

// Result describes a submitted post.
type Result struct {
	Raw  string
	Text string
	Post platform.Post
}

// Publisher runs refresh, generate, sanitize, and submit in that order.
type Publisher struct {
	tokens    TokenProvider
	generator content.Generator
	posters   PosterFactory
	prompt    string
	logger    *zap.Logger
	metrics   authflow.MetricsRecorder
}

// New constructs a Publisher. An empty prompt selects content.DefaultPrompt.
func New(tokens TokenProvider, generator content.Generator, posters PosterFactory, prompt string, logger *zap.Logger, metrics authflow.MetricsRecorder) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = authflow.NopMetrics{}
	}
	if prompt == "" {
		prompt = content.DefaultPrompt
	}
	return &Publisher{
		tokens:    tokens,
		generator: generator,
		posters:   posters,
		prompt:    prompt,
		logger:    logger,
		metrics:   metrics,
	}
}

// Publish generates and submits one post. Nothing reaches the platform unless every
// earlier stage succeeded; the first failure is returned unchanged in its chain.
func (publisher *Publisher) Publish(ctx context.Context) (Result, error) {
	result, stage, err := publisher.publish(ctx)
	if err != nil {
		publisher.metrics.Increment(authflow.MetricPublishFailure)
		publisher.logger.Warn("post not published", zap.String("code", "publisher.publish.failed"), zap.String("stage", stage), zap.Error(err))
		return Result{}, err
	}
	publisher.metrics.Increment(authflow.MetricPublishSuccess)
	publisher.logger.Info("post published", zap.String("code", "publisher.publish.success"), zap.String("post_id", result.Post.ID))
	return result, nil
}

func (publisher *Publisher) publish(ctx context.Context) (Result, string, error) {
	authorized, tokenErr := publisher.tokens.EnsureFreshToken(ctx)
	if tokenErr != nil {
		return Result{}, "refresh", fmt.Errorf("publisher.publish.refresh: %w", tokenErr)
	}

	raw, generateErr := publisher.generator.Generate(ctx, publisher.prompt)
	if generateErr != nil {
		return Result{}, "generate", fmt.Errorf("publisher.publish.generate: %w", generateErr)
	}

	text, sanitizeErr := content.Sanitize(raw)
	if sanitizeErr != nil {
		return Result{}, "sanitize", fmt.Errorf("publisher.publish.sanitize: %w", sanitizeErr)
	}

	post, submitErr := publisher.posters(authorized.HTTPClient).CreatePost(ctx, text)
	if submitErr != nil {
		return Result{}, "submit", fmt.Errorf("publisher.publish.submit: %w", submitErr)
	}

	return Result{Raw: raw, Text: text, Post: post}, "", nil
}
