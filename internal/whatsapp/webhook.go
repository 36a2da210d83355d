package whatsapp

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/workloadinsights/backend/internal/events"
	"github.com/workloadinsights/backend/internal/models"
	"github.com/workloadinsights/backend/internal/observability"
	"github.com/workloadinsights/backend/internal/utils"
)

// Payload is the subset of the Cloud API webhook body that we consume.
type Payload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Field string `json:"field"`
	Value Value  `json:"value"`
}

type Value struct {
	MessagingProduct string    `json:"messaging_product"`
	Contacts         []Contact `json:"contacts"`
	Messages         []Message `json:"messages"`
	Statuses         []Status  `json:"statuses"`
}

type Contact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

type Message struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text,omitempty"`
	Button *struct {
		Text string `json:"text"`
	} `json:"button,omitempty"`
	Context *struct {
		From string `json:"from"`
		ID   string `json:"id"`
	} `json:"context,omitempty"`
}

// Body returns the user-visible text of a text or quick-reply message.
func (m Message) Body() string {
	switch {
	case m.Text != nil:
		return m.Text.Body
	case m.Button != nil:
		return m.Button.Text
	}
	return ""
}

type Status struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	RecipientID string `json:"recipient_id"`
	Errors      []struct {
		Code  int    `json:"code"`
		Title string `json:"title"`
	} `json:"errors,omitempty"`
}

var ErrNotWhatsApp = errors.New("whatsapp: payload object is not whatsapp_business_account")

// StatusFromKeywords maps reply text onto an activity status. Resolution
// keywords win over progress keywords. Returns "" when nothing matches.
func StatusFromKeywords(text string) string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	progress := false
	for _, w := range words {
		switch w {
		case "done", "resolved", "selesai":
			return models.StatusResolved
		case "start", "started", "progress":
			progress = true
		}
	}
	if progress {
		return models.StatusInProgress
	}
	return ""
}

var statusRank = map[string]int{
	models.MessageSent:      1,
	models.MessageDelivered: 2,
	models.MessageRead:      3,
}

// Result summarises what one webhook delivery changed.
type Result struct {
	Stored            int      `json:"stored"`
	Duplicates        int      `json:"duplicates"`
	StatusUpdates     int      `json:"status_updates"`
	ActivityUpdates   int      `json:"activity_updates"`
	ChangedActivities []string `json:"-"`
}

// Processor applies webhook payloads to the database.
type Processor struct {
	DB          *gorm.DB
	Logger      *zap.Logger
	Events      events.Publisher
	CountryCode string
}

// Process handles every entry. A failure on one message is logged and the
// rest continue, so that the provider is not pushed into redelivering
// messages that were already stored.
func (p *Processor) Process(ctx context.Context, payload Payload) (Result, error) {
	var res Result
	if payload.Object != "" && payload.Object != "whatsapp_business_account" {
		return res, ErrNotWhatsApp
	}
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, st := range change.Value.Statuses {
				ok, err := p.applyStatus(ctx, st)
				if err != nil {
					p.Logger.Error("whatsapp: status update failed", zap.String("wa_message_id", st.ID), zap.Error(err))
					continue
				}
				if ok {
					res.StatusUpdates++
				}
			}
			for _, msg := range change.Value.Messages {
				if err := p.applyMessage(ctx, msg, &res); err != nil {
					p.Logger.Error("whatsapp: inbound message failed", zap.String("wa_message_id", msg.ID), zap.Error(err))
				}
			}
		}
	}
	for _, id := range res.ChangedActivities {
		p.publish(ctx, events.ActivityUpdateAdded, id)
	}
	return res, nil
}

func (p *Processor) applyStatus(ctx context.Context, st Status) (bool, error) {
	if st.ID == "" || st.Status == "" {
		return false, nil
	}
	var msg models.WhatsAppMessage
	if err := p.DB.WithContext(ctx).Where("wa_message_id = ?", st.ID).First(&msg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	updates := map[string]interface{}{}
	switch st.Status {
	case models.MessageFailed:
		updates["status"] = models.MessageFailed
		if len(st.Errors) > 0 {
			updates["error"] = st.Errors[0].Title
		}
	default:
		next, known := statusRank[st.Status]
		if !known || next <= statusRank[msg.Status] {
			return false, nil
		}
		updates["status"] = st.Status
	}
	observability.WhatsAppMessages.WithLabelValues(models.DirectionOutbound, st.Status).Inc()
	return true, p.DB.WithContext(ctx).Model(&msg).Updates(updates).Error
}

func (p *Processor) applyMessage(ctx context.Context, in Message, res *Result) error {
	if in.ID == "" {
		return nil
	}
	from := utils.NormalizePhone(in.From, p.CountryCode)
	waID := in.ID
	msg := models.WhatsAppMessage{
		WaMessageID: &waID,
		Direction:   models.DirectionInbound,
		FromNumber:  from,
		Body:        in.Body(),
		Status:      models.MessageReceived,
	}
	if ts := parseUnix(in.Timestamp); !ts.IsZero() {
		msg.CreatedAt = ts
	}

	var sender models.User
	hasSender := false
	if from != "" {
		if err := p.DB.WithContext(ctx).Where("phone_number = ?", from).First(&sender).Error; err == nil {
			hasSender = true
			msg.UserID = &sender.ID
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
	}

	var activityID string
	if in.Context != nil && in.Context.ID != "" {
		var original models.WhatsAppMessage
		err := p.DB.WithContext(ctx).
			Where("wa_message_id = ? AND direction = ?", in.Context.ID, models.DirectionOutbound).
			First(&original).Error
		if err == nil && original.ActivityID != nil {
			activityID = *original.ActivityID
			msg.ActivityID = &activityID
		} else if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
	}

	duplicate, linked := false, false
	err := p.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		created := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "wa_message_id"}}, DoNothing: true}).Create(&msg)
		if created.Error != nil {
			return created.Error
		}
		if created.RowsAffected == 0 {
			duplicate = true
			return nil
		}
		if activityID == "" || strings.TrimSpace(msg.Body) == "" {
			return nil
		}

		var act models.Activity
		if err := tx.Where("id = ?", activityID).First(&act).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		upd := models.ActivityUpdate{
			ActivityID: activityID,
			Notes:      strings.TrimSpace(msg.Body),
			Source:     models.UpdateSourceWhatsApp,
		}
		if hasSender {
			upd.AuthorID = &sender.ID
		}
		if err := tx.Omit(clause.Associations).Create(&upd).Error; err != nil {
			return err
		}
		linked = true
		changes := map[string]interface{}{"updated_at": time.Now().UTC()}
		if status := StatusFromKeywords(msg.Body); status != "" && status != act.Status {
			changes["status"] = status
		}
		return tx.Model(&models.Activity{}).Where("id = ?", activityID).Updates(changes).Error
	})
	if err != nil {
		return err
	}
	if duplicate {
		res.Duplicates++
		return nil
	}
	res.Stored++
	observability.WhatsAppMessages.WithLabelValues(models.DirectionInbound, models.MessageReceived).Inc()
	if linked {
		res.ActivityUpdates++
		res.ChangedActivities = append(res.ChangedActivities, activityID)
	}
	return nil
}

func (p *Processor) publish(ctx context.Context, evtType, activityID string) {
	if p.Events == nil {
		return
	}
	if err := p.Events.Publish(ctx, events.New(evtType, activityID, "")); err != nil {
		p.Logger.Warn("whatsapp: change broadcast failed", zap.String("activity_id", activityID), zap.Error(err))
	}
}

func parseUnix(s string) time.Time {
	sec, err := strconv.ParseInt(s, 10, 64)
	if err != nil || sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
