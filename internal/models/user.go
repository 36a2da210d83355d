package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
)

type User struct {
	ID          string    `gorm:"type:uuid;primaryKey" json:"id"`
	FullName    string    `gorm:"size:120;not null" json:"full_name"`
	Email       string    `gorm:"size:255;uniqueIndex" json:"email"`
	PhoneNumber string    `gorm:"size:20;index" json:"phone_number,omitempty"`
	Password    string    `gorm:"not null" json:"-"`
	Role        string    `gorm:"size:16;not null;default:staff" json:"role"`
	Active      bool      `gorm:"not null;default:true" json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
