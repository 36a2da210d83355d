package whatsapp

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/workloadinsights/backend/internal/models"
	"github.com/workloadinsights/backend/internal/observability"
)

const maxNotesInMessage = 300

// Notifier messages assignees and records every attempt as an outbound
// WhatsAppMessage so replies can be linked back to the activity.
type Notifier struct {
	DB     *gorm.DB
	Sender Sender
	Logger *zap.Logger
}

func NewNotifier(db *gorm.DB, sender Sender, logger *zap.Logger) *Notifier {
	return &Notifier{DB: db, Sender: sender, Logger: logger}
}

// NotifyAssigned is best-effort: failures are stored and logged, never returned.
func (n *Notifier) NotifyAssigned(ctx context.Context, activity models.Activity, assignees []models.User, assignedBy models.User) {
	body := AssignmentMessage(activity, assignedBy)
	activityID := activity.ID
	for _, u := range assignees {
		if u.PhoneNumber == "" {
			n.Logger.Debug("whatsapp: assignee has no phone number", zap.String("user_id", u.ID))
			continue
		}
		userID := u.ID
		msg := models.WhatsAppMessage{
			Direction:  models.DirectionOutbound,
			ToNumber:   u.PhoneNumber,
			Body:       body,
			ActivityID: &activityID,
			UserID:     &userID,
		}
		waID, err := n.Sender.SendText(ctx, u.PhoneNumber, body)
		if err != nil {
			msg.Status = models.MessageFailed
			msg.Error = err.Error()
			n.Logger.Warn("whatsapp: assignment notification failed",
				zap.String("activity_id", activityID),
				zap.String("user_id", userID),
				zap.String("to", u.PhoneNumber),
				zap.Error(err),
			)
		} else {
			msg.Status = models.MessageSent
			msg.WaMessageID = &waID
		}
		observability.WhatsAppMessages.WithLabelValues(models.DirectionOutbound, msg.Status).Inc()
		if err := n.DB.WithContext(ctx).Create(&msg).Error; err != nil {
			n.Logger.Error("whatsapp: failed to store outbound message", zap.String("activity_id", activityID), zap.Error(err))
		}
	}
}

// AssignmentMessage renders the text sent to a new assignee.
func AssignmentMessage(a models.Activity, assignedBy models.User) string {
	var b strings.Builder
	title := "Activity"
	if a.Category != nil && a.Category.Name != "" {
		title = a.Category.Name
	}
	if a.Subcategory != "" {
		title += " / " + a.Subcategory
	}
	fmt.Fprintf(&b, "New task assigned: %s\n", title)
	if a.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", a.Location)
	}
	fmt.Fprintf(&b, "Priority: %s\n", a.Priority)
	if notes := strings.TrimSpace(a.Notes); notes != "" {
		if r := []rune(notes); len(r) > maxNotesInMessage {
			notes = string(r[:maxNotesInMessage]) + "..."
		}
		fmt.Fprintf(&b, "Notes: %s\n", notes)
	}
	if assignedBy.FullName != "" {
		fmt.Fprintf(&b, "Assigned by: %s\n", assignedBy.FullName)
	}
	b.WriteString("\nReply to this message with an update. Include START when you begin or DONE when it is resolved.")
	return b.String()
}
