package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"ledgerline/internal/domain/categorization"
)

type fakeModels struct {
	reply  string
	err    error
	model  string
	prompt string
	config *genai.GenerateContentConfig
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.config = config
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		f.prompt = contents[0].Parts[0].Text
	}
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: "model", Parts: []*genai.Part{{Text: f.reply}}},
		}},
	}, nil
}

func TestNewClient_MissingAPIKey(t *testing.T) {
	_, err := NewClient(context.Background(), "", "", zerolog.Nop())
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestComplete(t *testing.T) {
	models := &fakeModels{reply: "  Vendor: Amazon\nConfidence: 0.9\n"}
	c := newClient(models, "", zerolog.Nop())

	got, err := c.Complete(context.Background(), categorization.Prompt{Text: "who is AMZN MKTP"})
	require.NoError(t, err)
	assert.Equal(t, "Vendor: Amazon\nConfidence: 0.9", got.Text)
	assert.Equal(t, DefaultModel, models.model)
	assert.Equal(t, "who is AMZN MKTP", models.prompt)
	assert.Empty(t, models.config.Tools)
}

func TestComplete_WebSearchEnablesGrounding(t *testing.T) {
	models := &fakeModels{reply: "Vendor: Blue Tokai"}
	c := newClient(models, "gemini-test", zerolog.Nop())

	_, err := c.Complete(context.Background(), categorization.Prompt{Text: "x", WebSearch: true})
	require.NoError(t, err)
	assert.Equal(t, "gemini-test", models.model)
	require.Len(t, models.config.Tools, 1)
	assert.NotNil(t, models.config.Tools[0].GoogleSearch)
}

func TestComplete_Errors(t *testing.T) {
	t.Run("api error", func(t *testing.T) {
		c := newClient(&fakeModels{err: errors.New("quota exceeded")}, "", zerolog.Nop())
		_, err := c.Complete(context.Background(), categorization.Prompt{Text: "x"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "quota exceeded")
	})

	t.Run("blank answer", func(t *testing.T) {
		c := newClient(&fakeModels{reply: "   "}, "", zerolog.Nop())
		_, err := c.Complete(context.Background(), categorization.Prompt{Text: "x"})
		assert.ErrorIs(t, err, ErrEmptyResponse)
	})
}
