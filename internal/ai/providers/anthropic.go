package providers

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/workloadinsights/backend/internal/ai"
)

// Anthropic streams Claude messages.
type Anthropic struct {
	client *anthropic.Client
}

func NewAnthropic(apiKey, baseURL string) (*Anthropic, error) {
	if apiKey == "" {
		return nil, ai.ErrNoAPIKey
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := anthropic.NewClient(opts...)
	return &Anthropic{client: &client}, nil
}

func (p *Anthropic) Name() string { return "anthropic" }

func (p *Anthropic) Stream(ctx context.Context, req ai.Request, onDelta func(string) error) error {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(maxTokens(req)),
		Messages:  make([]anthropic.MessageParam, 0, len(req.Messages)),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	}
	for _, m := range req.Messages {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == ai.RoleAssistant {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(block))
		} else {
			params.Messages = append(params.Messages, anthropic.NewUserMessage(block))
		}
	}

	stream := p.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()
	for stream.Next() {
		event := stream.Current()
		switch e := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			if e.Delta.Type != "text_delta" || e.Delta.Text == "" {
				continue
			}
			if err := onDelta(e.Delta.Text); err != nil {
				return err
			}
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("anthropic streaming error: %w", err)
	}
	return nil
}
