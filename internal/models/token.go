package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RefreshToken struct {
	ID                uint      `gorm:"primaryKey"`
	TokenID           string    `gorm:"size:64;index"` // jti
	UserIDRef         string    `gorm:"type:uuid;index"`
	TokenHash         string    `gorm:"size:64;uniqueIndex"`
	ExpiresAt         time.Time `gorm:"index"`
	RevokedAt         *time.Time
	ReplacedByTokenID *string
	CreatedAt         time.Time
}

// ApiKey authenticates integrations through the X-API-Key header.
// Only the sha256 of the secret is stored.
type ApiKey struct {
	ID         string     `gorm:"type:uuid;primaryKey" json:"id"`
	Name       string     `gorm:"size:120;not null" json:"name"`
	Prefix     string     `gorm:"size:16;index" json:"prefix"`
	KeyHash    string     `gorm:"size:64;uniqueIndex" json:"-"`
	UserIDRef  string     `gorm:"type:uuid;index" json:"user_id"`
	User       *User      `gorm:"foreignKey:UserIDRef" json:"user,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (k *ApiKey) BeforeCreate(tx *gorm.DB) (err error) {
	if k.ID == "" {
		k.ID = uuid.NewString()
	}
	return nil
}

func (k ApiKey) Usable(now time.Time) bool {
	if k.RevokedAt != nil {
		return false
	}
	return k.ExpiresAt == nil || now.Before(*k.ExpiresAt)
}
