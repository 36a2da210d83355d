package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
)

var LLMProviders = []string{ProviderAnthropic, ProviderGemini, ProviderOpenAI}

// LlmConfiguration selects the model behind the AI assistant.
// At most one row is active at a time.
type LlmConfiguration struct {
	ID           string    `gorm:"type:uuid;primaryKey" json:"id"`
	Name         string    `gorm:"size:120;not null" json:"name"`
	Provider     string    `gorm:"size:16;not null" json:"provider"`
	Model        string    `gorm:"size:120;not null" json:"model"`
	APIKey       string    `gorm:"type:text" json:"-"`
	BaseURL      string    `gorm:"size:300" json:"base_url,omitempty"`
	SystemPrompt string    `gorm:"type:text" json:"system_prompt,omitempty"`
	MaxTokens    int       `gorm:"not null;default:1024" json:"max_tokens"`
	Active       bool      `gorm:"index;not null;default:false" json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (l *LlmConfiguration) BeforeCreate(tx *gorm.DB) (err error) {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}

// MaskedAPIKey keeps a short prefix and the last four characters.
func (l LlmConfiguration) MaskedAPIKey() string {
	k := l.APIKey
	if k == "" {
		return ""
	}
	if len(k) <= 8 {
		return "****"
	}
	return k[:3] + "..." + k[len(k)-4:]
}
