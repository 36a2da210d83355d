// Package providers adapts LLM vendor SDKs to ai.Provider.
package providers

import (
	"context"
	"fmt"

	"github.com/workloadinsights/backend/internal/ai"
	"github.com/workloadinsights/backend/internal/models"
)

const defaultMaxTokens = 1024

// New returns the provider named by s.Provider.
func New(ctx context.Context, s ai.Settings) (ai.Provider, error) {
	switch s.Provider {
	case models.ProviderAnthropic:
		return NewAnthropic(s.APIKey, s.BaseURL)
	case models.ProviderGemini:
		return NewGemini(ctx, s.APIKey, s.BaseURL)
	case models.ProviderOpenAI:
		return NewOpenAI(s.APIKey, s.BaseURL)
	}
	return nil, fmt.Errorf("providers: unknown provider %q", s.Provider)
}

func maxTokens(req ai.Request) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return defaultMaxTokens
}
