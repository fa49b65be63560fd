package openai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/scholar/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Generator implements ai.Generator using OpenAI-compatible chat APIs.
type Generator struct {
	client      llms.Model
	temperature float64
	logger      *slog.Logger
}

// newGenerator is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newGenerator(config *ai.Config) (*Generator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.GenerationHost),
		openai.WithToken(token(config)),
		openai.WithModel(config.GenerationModel),
	)
	if err != nil {
		return nil, err
	}

	return &Generator{
		client:      client,
		temperature: config.Temperature,
		logger:      slog.Default().With("component", "openai-generator"),
	}, nil
}

// NewGenerator creates a new text generator using the provided configuration.
//
// Returns ai.Generator interface to enforce abstraction.
func NewGenerator(config *ai.Config) (ai.Generator, error) {
	return newGenerator(config)
}

// Generate sends prompt as a single user message and returns the first choice.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	response, err := g.client.GenerateContent(ctx, content, llms.WithTemperature(g.temperature))
	if err != nil {
		g.logger.Error("failed to generate content", "err", err)
		return "", fmt.Errorf("%w: %w", ai.ErrGenerationUnavailable, err)
	}
	if len(response.Choices) < 1 {
		return "", fmt.Errorf("%w: no choices returned from model", ai.ErrGenerationUnavailable)
	}

	g.logger.Debug("generated content", "prompt_length", len(prompt), "response_length", len(response.Choices[0].Content))
	return response.Choices[0].Content, nil
}
