package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"

	"ledgerline/internal/domain/categorization"
)

const DefaultModel = "gemini-2.5-flash"

var (
	ErrMissingAPIKey = errors.New("gemini api key is required")
	ErrEmptyResponse = errors.New("empty response from model")
)

var geminiTracer = otel.Tracer("ledgerline/gemini")

// generator is the slice of *genai.Models the client uses.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client implements categorization.Classifier on top of the Gemini API.
type Client struct {
	models generator
	model  string
	logger zerolog.Logger
}

func NewClient(ctx context.Context, apiKey, model string, logger zerolog.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return newClient(gc.Models, model, logger), nil
}

func newClient(models generator, model string, logger zerolog.Logger) *Client {
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		models: models,
		model:  model,
		logger: logger.With().Str("component", "gemini").Str("model", model).Logger(),
	}
}

// Complete sends a single-turn prompt. Search grounding is enabled when the
// prompt asks for it.
func (c *Client) Complete(ctx context.Context, prompt categorization.Prompt) (categorization.Completion, error) {
	ctx, span := geminiTracer.Start(ctx, "gemini.GenerateContent", trace.WithAttributes(
		attribute.String("llm.model", c.model),
		attribute.Bool("llm.web_search", prompt.WebSearch),
	))
	defer span.End()

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0),
	}
	if prompt.WebSearch {
		cfg.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}

	resp, err := c.models.GenerateContent(ctx, c.model, genai.Text(prompt.Text), cfg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn().Err(err).Msg("generate content failed")
		return categorization.Completion{}, fmt.Errorf("failed to generate content: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		span.SetStatus(codes.Error, ErrEmptyResponse.Error())
		return categorization.Completion{}, ErrEmptyResponse
	}

	c.logger.Debug().Int("chars", len(text)).Msg("model answered")
	return categorization.Completion{Text: text}, nil
}
