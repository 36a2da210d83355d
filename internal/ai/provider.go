// Package ai builds the assistant's view of recent workload and relays model
// output to the browser in readable slices.
package ai

import (
	"context"
	"errors"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is provider-neutral; each Provider maps it onto its own API.
type Request struct {
	Model     string
	System    string
	Messages  []Message
	MaxTokens int
}

// Provider streams text deltas to onDelta until the model finishes, ctx is
// cancelled or onDelta returns an error, which is then returned unchanged.
type Provider interface {
	Name() string
	Stream(ctx context.Context, req Request, onDelta func(delta string) error) error
}

// Settings select and authenticate a provider.
type Settings struct {
	Provider     string
	Model        string
	APIKey       string
	BaseURL      string
	SystemPrompt string
	MaxTokens    int
}

var ErrNoAPIKey = errors.New("ai: no API key configured for the selected provider")
