// Package events carries "something changed" notifications from the API to
// open dashboards and, when configured, to Kafka.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	ActivityCreated     = "activity.created"
	ActivityUpdated     = "activity.updated"
	ActivityDeleted     = "activity.deleted"
	ActivityAssigned    = "activity.assigned"
	ActivityUpdateAdded = "activity.update_added"
	CategoryChanged     = "category.changed"
	UserChanged         = "user.changed"
)

// Event tells clients to refetch; it carries ids, not row contents.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	ActivityID string    `json:"activity_id,omitempty"`
	ActorID    string    `json:"actor_id,omitempty"`
	At         time.Time `json:"at"`
}

func New(eventType, activityID, actorID string) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		ActivityID: activityID,
		ActorID:    actorID,
		At:         time.Now().UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Name() string
}
