package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/workloadinsights/backend/internal/events"
	"github.com/workloadinsights/backend/internal/middleware"
	"github.com/workloadinsights/backend/internal/models"
)

// staleError reports an optimistic write against an outdated updated_at.
type staleError struct {
	current time.Time
}

func (e *staleError) Error() string { return "activity was modified concurrently" }

// applyActivityChange locks the activity row, checks expected against its
// updated_at (microsecond precision, as stored by Postgres) and applies
// updates. updated_at is always bumped so that concurrent editors notice.
func applyActivityChange(tx *gorm.DB, id string, expected *time.Time, updates map[string]interface{}) error {
	var a models.Activity
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&a).Error; err != nil {
		return err
	}
	if expected != nil && !a.UpdatedAt.Truncate(time.Microsecond).Equal(expected.Truncate(time.Microsecond)) {
		return &staleError{current: a.UpdatedAt}
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["updated_at"] = time.Now().UTC()
	return tx.Model(&models.Activity{}).Where("id = ?", id).Updates(updates).Error
}

func insertAssignments(tx *gorm.DB, activityID string, userIDs []string, assignedBy string) error {
	if len(userIDs) == 0 {
		return nil
	}
	rows := make([]models.ActivityAssignment, 0, len(userIDs))
	for _, uid := range userIDs {
		rec := models.ActivityAssignment{ActivityID: activityID, UserID: uid}
		if assignedBy != "" {
			by := assignedBy
			rec.AssignedByID = &by
		}
		rows = append(rows, rec)
	}
	return tx.Omit(clause.Associations).Create(&rows).Error
}

func (ac *ActivityController) ListAssignments(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	a, err := ac.loadActivity(id, false)
	if err != nil {
		respondDBError(c, ac.Logger, err, "activity not found")
		return
	}
	c.JSON(http.StatusOK, assignmentResponse(a))
}

type replaceAssignmentsRequest struct {
	UserIDs           []string   `json:"user_ids"`
	ExpectedUpdatedAt *time.Time `json:"expected_updated_at"`
}

func (r replaceAssignmentsRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.UserIDs, validation.NotNil),
	)
}

// ReplaceAssignments swaps the full assignee set in one transaction. The
// first id becomes the primary assignee. Only newly added users are notified,
// and only after commit.
func (ac *ActivityController) ReplaceAssignments(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	var req replaceAssignmentsRequest
	if !bindAndValidate(c, &req) {
		return
	}
	userIDs, err := normalizeIDs(req.UserIDs)
	if err != nil {
		respondValidation(c, validation.Errors{"user_ids": err})
		return
	}
	assignees, err := ac.loadUsers(userIDs)
	if err != nil {
		respondValidation(c, validation.Errors{"user_ids": err})
		return
	}
	actor, _ := middleware.CurrentUser(c)

	var added []string
	err = ac.DB.Transaction(func(tx *gorm.DB) error {
		var primary interface{}
		if len(userIDs) > 0 {
			primary = userIDs[0]
		}
		if err := applyActivityChange(tx, id, req.ExpectedUpdatedAt, map[string]interface{}{"assigned_to_user_id": primary}); err != nil {
			return err
		}

		var current []models.ActivityAssignment
		if err := tx.Where("activity_id = ?", id).Find(&current).Error; err != nil {
			return err
		}
		existing := make(map[string]struct{}, len(current))
		for _, asg := range current {
			existing[asg.UserID] = struct{}{}
		}
		wanted := make(map[string]struct{}, len(userIDs))
		for _, uid := range userIDs {
			wanted[uid] = struct{}{}
			if _, ok := existing[uid]; !ok {
				added = append(added, uid)
			}
		}
		var removed []string
		for uid := range existing {
			if _, ok := wanted[uid]; !ok {
				removed = append(removed, uid)
			}
		}
		if len(removed) > 0 {
			if err := tx.Where("activity_id = ? AND user_id IN ?", id, removed).Delete(&models.ActivityAssignment{}).Error; err != nil {
				return err
			}
		}
		return insertAssignments(tx, id, added, actor.ID)
	})
	if err != nil {
		ac.respondChangeError(c, err)
		return
	}

	a, err := ac.loadActivity(id, false)
	if err != nil {
		respondInternal(c, ac.Logger, err)
		return
	}
	broadcastChange(ac.Events, ac.Logger, events.ActivityAssigned, id, actor.ID)

	if len(added) > 0 {
		addedSet := make(map[string]struct{}, len(added))
		for _, uid := range added {
			addedSet[uid] = struct{}{}
		}
		var notifyUsers []models.User
		for _, u := range assignees {
			if _, ok := addedSet[u.ID]; ok {
				notifyUsers = append(notifyUsers, u)
			}
		}
		ac.notify(a, notifyUsers, actor)
	}

	resp := assignmentResponse(a)
	resp["added"] = nonNil(added)
	c.JSON(http.StatusOK, resp)
}

func assignmentResponse(a models.Activity) gin.H {
	assignments := a.Assignments
	if assignments == nil {
		assignments = []models.ActivityAssignment{}
	}
	return gin.H{
		"activity_id":         a.ID,
		"assigned_to_user_id": a.AssignedToUserID,
		"user_ids":            nonNil(a.AssigneeIDs()),
		"assignments":         assignments,
		"updated_at":          a.UpdatedAt,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
