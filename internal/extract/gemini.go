package extract

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// DefaultModel is the Gemini model used when none is configured.
const DefaultModel = "gemini-2.0-flash"

// Gemini is the production Service. One client is shared across calls;
// the genai client is safe for concurrent use.
type Gemini struct {
	client *genai.Client
	model  string
	prompt string
}

// NewGemini creates the Gemini extraction service. The API key is read
// by the client from the environment when apiKey is empty.
func NewGemini(ctx context.Context, apiKey, model, prompt string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("extract: create genai client: %w", err)
	}
	if model == "" {
		model = DefaultModel
	}
	return &Gemini{client: client, model: model, prompt: prompt}, nil
}

// Extract implements Service.
func (g *Gemini) Extract(ctx context.Context, doc Document) (string, error) {
	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: g.prompt},
				{
					InlineData: &genai.Blob{
						MIMEType: doc.MIMEType,
						Data:     doc.Data,
					},
				},
			},
		},
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("extract: generate content for %s: %w", doc.Filename, err)
	}

	raw := resp.Text()
	if raw == "" {
		return "", fmt.Errorf("extract: empty response from model for %s", doc.Filename)
	}
	return raw, nil
}

var _ Service = (*Gemini)(nil)
