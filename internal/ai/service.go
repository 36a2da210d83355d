package ai

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/workloadinsights/backend/internal/database"
	"github.com/workloadinsights/backend/internal/models"
)

// Defaults hold the env-configured assistant settings and limits.
type Defaults struct {
	Settings     Settings
	MaxContext   int
	PerStaff     int
	LookbackDays int
	ChunkWindow  int
	MaxChunks    int
	MaxChars     int
}

// Factory builds a Provider for the given settings.
type Factory func(ctx context.Context, s Settings) (Provider, error)

// Service loads workload context for chat requests.
type Service struct {
	DB       *gorm.DB
	Logger   *zap.Logger
	Defaults Defaults
	Factory  Factory
	Now      func() time.Time
}

// Prepared is everything a chat request needs before streaming starts.
type Prepared struct {
	Settings Settings
	Provider Provider
	Request  Request
	Summary  Summary
}

// ResolveSettings returns the active LlmConfiguration, or the env defaults
// when none is active.
func (s *Service) ResolveSettings(ctx context.Context) (Settings, error) {
	var cfg models.LlmConfiguration
	err := database.WithRetry(ctx, "ai.settings", s.Logger, func() error {
		return s.DB.WithContext(ctx).Where("active = ?", true).Order("updated_at DESC").First(&cfg).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.Defaults.Settings, nil
	}
	if err != nil {
		return Settings{}, err
	}
	out := Settings{
		Provider:     cfg.Provider,
		Model:        cfg.Model,
		APIKey:       cfg.APIKey,
		BaseURL:      cfg.BaseURL,
		SystemPrompt: cfg.SystemPrompt,
		MaxTokens:    cfg.MaxTokens,
	}
	// A row without its own key borrows the env key for the same provider.
	if out.APIKey == "" && out.Provider == s.Defaults.Settings.Provider {
		out.APIKey = s.Defaults.Settings.APIKey
	}
	if out.MaxTokens <= 0 {
		out.MaxTokens = s.Defaults.Settings.MaxTokens
	}
	return out, nil
}

// Prepare loads the lookback window, samples it and builds the provider
// request.
func (s *Service) Prepare(ctx context.Context, message string, history []Message) (Prepared, error) {
	settings, err := s.ResolveSettings(ctx)
	if err != nil {
		return Prepared{}, err
	}
	provider, err := s.Factory(ctx, settings)
	if err != nil {
		return Prepared{}, err
	}

	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now().UTC()
	}
	days := s.Defaults.LookbackDays
	if days <= 0 {
		days = 90
	}
	from := now.AddDate(0, 0, -days)

	var activities []models.Activity
	err = database.WithRetry(ctx, "ai.context", s.Logger, func() error {
		activities = nil
		return s.DB.WithContext(ctx).
			Preload("User").
			Preload("Category").
			Preload("AssignedTo").
			Preload("Assignments", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
			Preload("Assignments.User").
			Where("timestamp >= ? AND timestamp <= ?", from, now).
			Order("timestamp DESC").
			Find(&activities).Error
	})
	if err != nil {
		return Prepared{}, err
	}

	sample := SelectForContext(activities, SampleOptions{PerStaff: s.Defaults.PerStaff, Max: s.Defaults.MaxContext})
	summary := Summarize(activities, len(sample), from, now)
	s.Logger.Debug("ai: context prepared",
		zap.String("provider", settings.Provider),
		zap.Int("window", len(activities)),
		zap.Int("sampled", len(sample)),
	)
	return Prepared{
		Settings: settings,
		Provider: provider,
		Request:  BuildRequest(settings, sample, summary, history, message),
		Summary:  summary,
	}, nil
}

// NewChunker returns a chunker with the configured ceilings.
func (s *Service) NewChunker() *Chunker {
	return &Chunker{
		Window:    s.Defaults.ChunkWindow,
		MaxChunks: s.Defaults.MaxChunks,
		MaxChars:  s.Defaults.MaxChars,
	}
}
