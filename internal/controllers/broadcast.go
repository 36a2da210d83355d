package controllers

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/workloadinsights/backend/internal/events"
)

const publishTimeout = 2 * time.Second

// broadcastChange tells open dashboards and downstream consumers that
// something changed. Failures are logged; the request already succeeded.
func broadcastChange(pub events.Publisher, logger *zap.Logger, evtType, activityID, actorID string) {
	if pub == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := pub.Publish(ctx, events.New(evtType, activityID, actorID)); err != nil && logger != nil {
		logger.Warn("change broadcast failed",
			zap.String("type", evtType),
			zap.String("activity_id", activityID),
			zap.Error(err),
		)
	}
}
