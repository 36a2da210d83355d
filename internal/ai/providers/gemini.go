package providers

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/workloadinsights/backend/internal/ai"
)

// Gemini streams through the Gemini API backend of the genai SDK.
type Gemini struct {
	client *genai.Client
}

func NewGemini(ctx context.Context, apiKey, baseURL string) (*Gemini, error) {
	if apiKey == "" {
		return nil, ai.ErrNoAPIKey
	}
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &Gemini{client: client}, nil
}

func (p *Gemini) Name() string { return "gemini" }

func (p *Gemini) Stream(ctx context.Context, req ai.Request, onDelta func(string) error) error {
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := genai.Role(genai.RoleUser)
		if m.Role == ai.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	config := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(maxTokens(req)),
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	for resp, err := range p.client.Models.GenerateContentStream(ctx, req.Model, contents, config) {
		if err != nil {
			return fmt.Errorf("gemini streaming error: %w", err)
		}
		text := resp.Text()
		if text == "" {
			continue
		}
		if err := onDelta(text); err != nil {
			return err
		}
	}
	return nil
}
