package llm

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const defaultGoogleModel = "gemini-2.0-flash"

// GoogleProvider implements Provider using the Gemini SDK.
type GoogleProvider struct {
	client *genai.Client
	model  string
	retry  RetryConfig
}

// NewGoogleProvider creates a Gemini-backed provider.
func NewGoogleProvider(ctx context.Context, cfg Config) (*GoogleProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required for google")
	}
	if cfg.Model == "" {
		cfg.Model = defaultGoogleModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}

	return &GoogleProvider{
		client: client,
		model:  cfg.Model,
		retry:  cfg.Retry,
	}, nil
}

// Complete implements Provider.
func (p *GoogleProvider) Complete(ctx context.Context, req Request) (string, error) {
	model := p.client.GenerativeModel(p.model)
	if req.System != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.System)},
		}
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}

	var resp *genai.GenerateContentResponse
	err := withRetry(ctx, p.retry, "google", func() error {
		var callErr error
		resp, callErr = model.GenerateContent(ctx, genai.Text(req.Prompt))
		return callErr
	})
	if err != nil {
		return "", err
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("google returned no candidates")
	}

	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text += string(t)
		}
	}
	return text, nil
}

// Close releases the underlying client.
func (p *GoogleProvider) Close() error {
	return p.client.Close()
}
