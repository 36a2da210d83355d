package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

const (
	MessageReceived  = "received"
	MessageSent      = "sent"
	MessageDelivered = "delivered"
	MessageRead      = "read"
	MessageFailed    = "failed"
)

type WhatsAppMessage struct {
	ID          string    `gorm:"type:uuid;primaryKey" json:"id"`
	WaMessageID *string   `gorm:"size:128;uniqueIndex" json:"wa_message_id"`
	Direction   string    `gorm:"size:8;index;not null" json:"direction"`
	FromNumber  string    `gorm:"size:20" json:"from_number"`
	ToNumber    string    `gorm:"size:20" json:"to_number"`
	Body        string    `gorm:"type:text" json:"body"`
	Status      string    `gorm:"size:16;index;not null" json:"status"`
	ActivityID  *string   `gorm:"type:uuid;index" json:"activity_id,omitempty"`
	UserID      *string   `gorm:"type:uuid;index" json:"user_id,omitempty"`
	Error       string    `gorm:"type:text" json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (m *WhatsAppMessage) BeforeCreate(tx *gorm.DB) (err error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}
