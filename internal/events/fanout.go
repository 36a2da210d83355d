package events

import (
	"context"

	"go.uber.org/zap"

	"github.com/workloadinsights/backend/internal/observability"
)

// Fanout delivers each event to every publisher. A failing publisher is
// logged and does not stop the others.
type Fanout struct {
	publishers []Publisher
	logger     *zap.Logger
}

func NewFanout(logger *zap.Logger, publishers ...Publisher) *Fanout {
	return &Fanout{publishers: publishers, logger: logger}
}

func (f *Fanout) Publish(ctx context.Context, evt Event) error {
	for _, p := range f.publishers {
		if err := p.Publish(ctx, evt); err != nil {
			observability.EventPublishFailures.WithLabelValues(p.Name()).Inc()
			f.logger.Warn("event publish failed",
				zap.String("publisher", p.Name()),
				zap.String("type", evt.Type),
				zap.String("activity_id", evt.ActivityID),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (f *Fanout) Name() string { return "fanout" }
