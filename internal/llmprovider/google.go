package llmprovider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"agenttic-rag/internal/config"

	genai "google.golang.org/genai"
)

type googleProvider struct {
	client *genai.Client
	model  string
}

func newGoogleProvider(cfg config.GoogleConfig, httpClient *http.Client) (*googleProvider, error) {
	model := cfg.Model
	if model == "" {
		model = "gemini-1.5-flash"
	}
	httpOpts := genai.HTTPOptions{}
	if cfg.Timeout > 0 {
		t := time.Duration(cfg.Timeout) * time.Second
		httpOpts.Timeout = &t
	}
	if cfg.BaseURL != "" {
		httpOpts.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/") + "/"
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		HTTPClient:  httpClient,
		HTTPOptions: httpOpts,
	})
	if err != nil {
		return nil, fmt.Errorf("init google genai client: %w", err)
	}
	return &googleProvider{client: client, model: model}, nil
}

func toGenaiContents(messages []Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		role := genai.RoleUser
		if strings.EqualFold(m.Role, "assistant") {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	return contents
}

func (p *googleProvider) Complete(ctx context.Context, messages []Message, temperature float64) (string, error) {
	temp := float32(temperature)
	resp, err := p.client.Models.GenerateContent(ctx, p.model, toGenaiContents(messages), &genai.GenerateContentConfig{Temperature: &temp})
	if err != nil {
		return "", fmt.Errorf("google generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("google generate content returned no candidates")
	}
	var out strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		out.WriteString(part.Text)
	}
	return out.String(), nil
}

func (p *googleProvider) Stream(ctx context.Context, messages []Message, temperature float64, onDelta StreamFunc) error {
	temp := float32(temperature)
	stream := p.client.Models.GenerateContentStream(ctx, p.model, toGenaiContents(messages), &genai.GenerateContentConfig{Temperature: &temp})
	for resp, err := range stream {
		if err != nil {
			return fmt.Errorf("google streaming generate content: %w", err)
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			continue
		}
		for _, part := range resp.Candidates[0].Content.Parts {
			if part.Text != "" {
				onDelta(part.Text)
			}
		}
	}
	return nil
}
