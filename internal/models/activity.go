package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	StatusOpen       = "OPEN"
	StatusInProgress = "IN_PROGRESS"
	StatusResolved   = "RESOLVED"
)

const (
	PriorityLow    = "LOW"
	PriorityMedium = "MEDIUM"
	PriorityHigh   = "HIGH"
)

var (
	ActivityStatuses   = []string{StatusOpen, StatusInProgress, StatusResolved}
	ActivityPriorities = []string{PriorityLow, PriorityMedium, PriorityHigh}
)

// Activity is a logged incident or maintenance task.
// AssignedToUserID mirrors the first entry of Assignments so that clients
// reading the single-assignee field keep working.
type Activity struct {
	ID               string               `gorm:"type:uuid;primaryKey" json:"id"`
	UserID           string               `gorm:"type:uuid;index;not null" json:"user_id"`
	User             *User                `json:"user,omitempty"`
	CategoryID       string               `gorm:"type:uuid;index;not null" json:"category_id"`
	Category         *Category            `json:"category,omitempty"`
	Subcategory      string               `gorm:"size:100" json:"subcategory,omitempty"`
	Location         string               `gorm:"size:200" json:"location,omitempty"`
	Notes            string               `gorm:"type:text" json:"notes,omitempty"`
	PhotoURL         string               `gorm:"size:500" json:"photo_url,omitempty"`
	Status           string               `gorm:"size:16;index;not null;default:OPEN" json:"status"`
	Priority         string               `gorm:"size:8;index;not null;default:MEDIUM" json:"priority"`
	AssignedToUserID *string              `gorm:"type:uuid;index" json:"assigned_to_user_id"`
	AssignedTo       *User                `gorm:"foreignKey:AssignedToUserID" json:"assigned_to,omitempty"`
	ResolutionNotes  string               `gorm:"type:text" json:"resolution_notes,omitempty"`
	Timestamp        time.Time            `gorm:"index;not null" json:"timestamp"`
	Assignments      []ActivityAssignment `json:"assignments,omitempty"`
	Updates          []ActivityUpdate     `json:"updates,omitempty"`
	CreatedAt        time.Time            `json:"created_at"`
	UpdatedAt        time.Time            `json:"updated_at"`
}

func (a *Activity) BeforeCreate(tx *gorm.DB) (err error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// AssigneeIDs returns the multi-assignment user ids with the primary assignee
// first, falling back to the primary assignee for rows created before
// assignments existed.
func (a Activity) AssigneeIDs() []string {
	if len(a.Assignments) > 0 {
		out := make([]string, 0, len(a.Assignments))
		primary := ""
		if a.AssignedToUserID != nil {
			primary = *a.AssignedToUserID
		}
		for _, asg := range a.Assignments {
			if asg.UserID == primary {
				out = append([]string{primary}, out...)
				continue
			}
			out = append(out, asg.UserID)
		}
		return out
	}
	if a.AssignedToUserID != nil {
		return []string{*a.AssignedToUserID}
	}
	return nil
}

const (
	UpdateSourceWeb      = "web"
	UpdateSourceWhatsApp = "whatsapp"
)

type ActivityUpdate struct {
	ID         string    `gorm:"type:uuid;primaryKey" json:"id"`
	ActivityID string    `gorm:"type:uuid;index;not null" json:"activity_id"`
	AuthorID   *string   `gorm:"type:uuid;index" json:"author_id"`
	Author     *User     `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
	Notes      string    `gorm:"type:text;not null" json:"notes"`
	Source     string    `gorm:"size:16;not null;default:web" json:"source"`
	CreatedAt  time.Time `json:"created_at"`
}

func (u *ActivityUpdate) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// ActivityAssignment maps a staff member onto an activity.
type ActivityAssignment struct {
	ID           uint      `gorm:"primaryKey" json:"-"`
	ActivityID   string    `gorm:"type:uuid;uniqueIndex:uniq_activity_user;not null" json:"activity_id"`
	UserID       string    `gorm:"type:uuid;uniqueIndex:uniq_activity_user;index;not null" json:"user_id"`
	User         *User     `json:"user,omitempty"`
	AssignedByID *string   `gorm:"type:uuid" json:"assigned_by_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
