package controllers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/workloadinsights/backend/internal/database"
	"github.com/workloadinsights/backend/internal/events"
	"github.com/workloadinsights/backend/internal/middleware"
	"github.com/workloadinsights/backend/internal/models"
)

// AssignmentNotifier tells newly added assignees about their task.
type AssignmentNotifier interface {
	NotifyAssigned(ctx context.Context, activity models.Activity, assignees []models.User, assignedBy models.User)
}

const notifyTimeout = 30 * time.Second

type ActivityController struct {
	DB       *gorm.DB
	Logger   *zap.Logger
	Events   events.Publisher
	Notifier AssignmentNotifier
}

var activitySorts = map[string]string{
	"timestamp":  "activities.timestamp",
	"created_at": "activities.created_at",
	"updated_at": "activities.updated_at",
	"status":     "activities.status",
	"priority":   "activities.priority",
	"location":   "activities.location",
}

func (ac *ActivityController) ListActivities(c *gin.Context) {
	p := parseListParams(c, activitySorts, "activities.timestamp")
	base := ac.DB.Model(&models.Activity{})
	meta := gin.H{}

	if v := strings.ToUpper(strings.TrimSpace(c.Query("status"))); v != "" {
		if validation.Validate(v, validation.In(toAny(models.ActivityStatuses)...)) != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return
		}
		base = base.Where("activities.status = ?", v)
		meta["status"] = v
	}
	if v := strings.ToUpper(strings.TrimSpace(c.Query("priority"))); v != "" {
		if validation.Validate(v, validation.In(toAny(models.ActivityPriorities)...)) != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid priority"})
			return
		}
		base = base.Where("activities.priority = ?", v)
		meta["priority"] = v
	}
	if v := strings.TrimSpace(c.Query("category_id")); v != "" {
		base = base.Where("activities.category_id = ?", v)
		meta["category_id"] = v
	}
	if v := strings.TrimSpace(c.Query("user_id")); v != "" {
		base = base.Where("activities.user_id = ?", v)
		meta["user_id"] = v
	}
	if v := strings.TrimSpace(c.Query("assigned_to")); v != "" {
		base = base.Where(
			"activities.assigned_to_user_id = ? OR activities.id IN (?)",
			v, ac.DB.Model(&models.ActivityAssignment{}).Select("activity_id").Where("user_id = ?", v),
		)
		meta["assigned_to"] = v
	}
	if v := strings.TrimSpace(c.Query("from")); v != "" {
		from, err := parseTimeParam(v, false)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from: " + err.Error()})
			return
		}
		base = base.Where("activities.timestamp >= ?", from)
		meta["from"] = v
	}
	if v := strings.TrimSpace(c.Query("to")); v != "" {
		to, err := parseTimeParam(v, true)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to: " + err.Error()})
			return
		}
		base = base.Where("activities.timestamp <= ?", to)
		meta["to"] = v
	}
	if p.Q != "" {
		like := likePattern(p.Q)
		base = base.Where(
			"LOWER(activities.notes) LIKE ? OR LOWER(activities.location) LIKE ? OR LOWER(activities.subcategory) LIKE ?",
			like, like, like,
		)
	}

	ctx := c.Request.Context()
	var total int64
	err := database.WithRetry(ctx, "activities.count", ac.Logger, func() error {
		return base.Session(&gorm.Session{Context: ctx}).Count(&total).Error
	})
	if err != nil {
		respondInternal(c, ac.Logger, err)
		return
	}
	var rows []models.Activity
	err = database.WithRetry(ctx, "activities.list", ac.Logger, func() error {
		rows = nil
		q := base.Session(&gorm.Session{Context: ctx}).
			Preload("User").
			Preload("Category").
			Preload("AssignedTo").
			Preload("Assignments.User")
		return p.apply(q).Find(&rows).Error
	})
	if err != nil {
		respondInternal(c, ac.Logger, err)
		return
	}
	if rows == nil {
		rows = []models.Activity{}
	}

	out := p.meta(total)
	for k, v := range meta {
		out[k] = v
	}
	c.JSON(http.StatusOK, gin.H{"data": rows, "meta": out})
}

func (ac *ActivityController) loadActivity(id string, withUpdates bool) (models.Activity, error) {
	var a models.Activity
	q := ac.DB.
		Preload("User").
		Preload("Category").
		Preload("AssignedTo").
		Preload("Assignments", func(db *gorm.DB) *gorm.DB { return db.Order("activity_assignments.id ASC") }).
		Preload("Assignments.User")
	if withUpdates {
		q = q.Preload("Updates", func(db *gorm.DB) *gorm.DB { return db.Order("activity_updates.created_at DESC") }).
			Preload("Updates.Author")
	}
	err := q.Where("id = ?", id).First(&a).Error
	return a, err
}

func (ac *ActivityController) GetActivity(c *gin.Context) {
	a, err := ac.loadActivity(strings.TrimSpace(c.Param("id")), true)
	if err != nil {
		respondDBError(c, ac.Logger, err, "activity not found")
		return
	}
	c.JSON(http.StatusOK, a)
}

type createActivityRequest struct {
	UserID      string     `json:"user_id"`
	CategoryID  string     `json:"category_id"`
	Subcategory string     `json:"subcategory"`
	Location    string     `json:"location"`
	Notes       string     `json:"notes"`
	PhotoURL    string     `json:"photo_url"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	Timestamp   *time.Time `json:"timestamp"`
	AssigneeIDs []string   `json:"assignee_ids"`
}

func (r createActivityRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.CategoryID, validation.Required, validation.By(isUUID)),
		validation.Field(&r.UserID, validation.By(isUUID)),
		validation.Field(&r.Subcategory, validation.Length(0, 100)),
		validation.Field(&r.Location, validation.Length(0, 200)),
		validation.Field(&r.PhotoURL, validation.Length(0, 500)),
		validation.Field(&r.Status, validation.In(toAny(models.ActivityStatuses)...)),
		validation.Field(&r.Priority, validation.In(toAny(models.ActivityPriorities)...)),
	)
}

func (ac *ActivityController) CreateActivity(c *gin.Context) {
	var req createActivityRequest
	if !bindAndValidate(c, &req) {
		return
	}
	actor, _ := middleware.CurrentUser(c)
	assigneeIDs, err := normalizeIDs(req.AssigneeIDs)
	if err != nil {
		respondValidation(c, validation.Errors{"assignee_ids": err})
		return
	}

	reporterID := actor.ID
	if req.UserID != "" && req.UserID != actor.ID {
		if !actor.IsAdmin() {
			c.JSON(http.StatusForbidden, gin.H{"error": "only admins can report on behalf of another user"})
			return
		}
		reporterID = req.UserID
	}
	if err := ac.requireRows(&models.User{}, []string{reporterID}); err != nil {
		respondValidation(c, validation.Errors{"user_id": err})
		return
	}
	if err := ac.requireRows(&models.Category{}, []string{req.CategoryID}); err != nil {
		respondValidation(c, validation.Errors{"category_id": err})
		return
	}
	assignees, err := ac.loadUsers(assigneeIDs)
	if err != nil {
		respondValidation(c, validation.Errors{"assignee_ids": err})
		return
	}

	a := models.Activity{
		UserID:      reporterID,
		CategoryID:  req.CategoryID,
		Subcategory: strings.TrimSpace(req.Subcategory),
		Location:    strings.TrimSpace(req.Location),
		Notes:       strings.TrimSpace(req.Notes),
		PhotoURL:    strings.TrimSpace(req.PhotoURL),
		Status:      defaultString(req.Status, models.StatusOpen),
		Priority:    defaultString(req.Priority, models.PriorityMedium),
		Timestamp:   time.Now().UTC(),
	}
	if req.Timestamp != nil {
		a.Timestamp = req.Timestamp.UTC()
	}
	if len(assigneeIDs) > 0 {
		a.AssignedToUserID = &assigneeIDs[0]
	}

	err = ac.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(&a).Error; err != nil {
			return err
		}
		return insertAssignments(tx, a.ID, assigneeIDs, actor.ID)
	})
	if err != nil {
		respondDBError(c, ac.Logger, err, "activity not found")
		return
	}

	created, err := ac.loadActivity(a.ID, false)
	if err != nil {
		respondInternal(c, ac.Logger, err)
		return
	}
	broadcastChange(ac.Events, ac.Logger, events.ActivityCreated, a.ID, actor.ID)
	if len(assignees) > 0 {
		ac.notify(created, assignees, actor)
	}
	c.JSON(http.StatusCreated, created)
}

type updateActivityRequest struct {
	CategoryID        *string    `json:"category_id"`
	Subcategory       *string    `json:"subcategory"`
	Location          *string    `json:"location"`
	Notes             *string    `json:"notes"`
	PhotoURL          *string    `json:"photo_url"`
	Status            *string    `json:"status"`
	Priority          *string    `json:"priority"`
	ResolutionNotes   *string    `json:"resolution_notes"`
	Timestamp         *time.Time `json:"timestamp"`
	ExpectedUpdatedAt *time.Time `json:"expected_updated_at"`
}

func (r updateActivityRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.CategoryID, validation.NilOrNotEmpty, validation.By(isUUID)),
		validation.Field(&r.Subcategory, validation.Length(0, 100)),
		validation.Field(&r.Location, validation.Length(0, 200)),
		validation.Field(&r.PhotoURL, validation.Length(0, 500)),
		validation.Field(&r.Status, validation.NilOrNotEmpty, validation.In(toAny(models.ActivityStatuses)...)),
		validation.Field(&r.Priority, validation.NilOrNotEmpty, validation.In(toAny(models.ActivityPriorities)...)),
	)
}

func (ac *ActivityController) UpdateActivity(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	var req updateActivityRequest
	if !bindAndValidate(c, &req) {
		return
	}
	if req.CategoryID != nil {
		if err := ac.requireRows(&models.Category{}, []string{*req.CategoryID}); err != nil {
			respondValidation(c, validation.Errors{"category_id": err})
			return
		}
	}

	updates := map[string]interface{}{}
	setString := func(col string, v *string) {
		if v != nil {
			updates[col] = strings.TrimSpace(*v)
		}
	}
	setString("category_id", req.CategoryID)
	setString("subcategory", req.Subcategory)
	setString("location", req.Location)
	setString("notes", req.Notes)
	setString("photo_url", req.PhotoURL)
	setString("status", req.Status)
	setString("priority", req.Priority)
	setString("resolution_notes", req.ResolutionNotes)
	if req.Timestamp != nil {
		updates["timestamp"] = req.Timestamp.UTC()
	}

	err := ac.DB.Transaction(func(tx *gorm.DB) error {
		return applyActivityChange(tx, id, req.ExpectedUpdatedAt, updates)
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
	actor, _ := middleware.CurrentUser(c)
	broadcastChange(ac.Events, ac.Logger, events.ActivityUpdated, id, actor.ID)
	c.JSON(http.StatusOK, a)
}

func (ac *ActivityController) DeleteActivity(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	var a models.Activity
	if err := ac.DB.Where("id = ?", id).First(&a).Error; err != nil {
		respondDBError(c, ac.Logger, err, "activity not found")
		return
	}
	actor, _ := middleware.CurrentUser(c)
	if !actor.IsAdmin() && actor.ID != a.UserID {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the reporter or an admin can delete this activity"})
		return
	}

	err := ac.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("activity_id = ?", id).Delete(&models.ActivityAssignment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("activity_id = ?", id).Delete(&models.ActivityUpdate{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.WhatsAppMessage{}).Where("activity_id = ?", id).Update("activity_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(&a).Error
	})
	if err != nil {
		respondInternal(c, ac.Logger, err)
		return
	}
	broadcastChange(ac.Events, ac.Logger, events.ActivityDeleted, id, actor.ID)
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

func (ac *ActivityController) ListUpdates(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if err := ac.requireRows(&models.Activity{}, []string{id}); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "activity not found"})
		return
	}
	var rows []models.ActivityUpdate
	if err := ac.DB.Preload("Author").Where("activity_id = ?", id).Order("created_at DESC").Find(&rows).Error; err != nil {
		respondInternal(c, ac.Logger, err)
		return
	}
	if rows == nil {
		rows = []models.ActivityUpdate{}
	}
	c.JSON(http.StatusOK, gin.H{"data": rows})
}

type addUpdateRequest struct {
	Notes  string  `json:"notes"`
	Status *string `json:"status"`
}

func (r addUpdateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Notes, validation.Required, validation.Length(1, 5000)),
		validation.Field(&r.Status, validation.NilOrNotEmpty, validation.In(toAny(models.ActivityStatuses)...)),
	)
}

// AddUpdate appends a progress note and optionally moves the status along.
func (ac *ActivityController) AddUpdate(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	var req addUpdateRequest
	if !bindAndValidate(c, &req) {
		return
	}
	actor, _ := middleware.CurrentUser(c)
	upd := models.ActivityUpdate{
		ActivityID: id,
		AuthorID:   &actor.ID,
		Notes:      strings.TrimSpace(req.Notes),
		Source:     models.UpdateSourceWeb,
	}
	err := ac.DB.Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{}
		if req.Status != nil {
			updates["status"] = *req.Status
		}
		if err := applyActivityChange(tx, id, nil, updates); err != nil {
			return err
		}
		return tx.Omit(clause.Associations).Create(&upd).Error
	})
	if err != nil {
		ac.respondChangeError(c, err)
		return
	}
	upd.Author = &actor
	broadcastChange(ac.Events, ac.Logger, events.ActivityUpdateAdded, id, actor.ID)
	c.JSON(http.StatusCreated, upd)
}

func (ac *ActivityController) respondChangeError(c *gin.Context, err error) {
	var stale *staleError
	if errors.As(err, &stale) {
		c.JSON(http.StatusConflict, gin.H{
			"error":      "activity was modified by someone else",
			"updated_at": stale.current,
		})
		return
	}
	respondDBError(c, ac.Logger, err, "activity not found")
}

// requireRows fails when any id has no row in model's table.
func (ac *ActivityController) requireRows(model interface{}, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	for _, id := range ids {
		if !validUUID(id) {
			return validation.NewError("validation_invalid_id", "unknown id "+id)
		}
	}
	var n int64
	if err := ac.DB.Model(model).Where("id IN ?", ids).Count(&n).Error; err != nil {
		return err
	}
	if int(n) != len(ids) {
		return validation.NewError("validation_unknown_id", "references a record that does not exist")
	}
	return nil
}

// loadUsers returns active users for ids in the same order.
func (ac *ActivityController) loadUsers(ids []string) ([]models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var users []models.User
	if err := ac.DB.Where("id IN ? AND active = ?", ids, true).Find(&users).Error; err != nil {
		return nil, err
	}
	byID := make(map[string]models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	out := make([]models.User, 0, len(ids))
	for _, id := range ids {
		u, ok := byID[id]
		if !ok {
			return nil, validation.NewError("validation_unknown_user", "unknown or inactive user "+id)
		}
		out = append(out, u)
	}
	return out, nil
}

func (ac *ActivityController) notify(a models.Activity, assignees []models.User, by models.User) {
	if ac.Notifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		ac.Notifier.NotifyAssigned(ctx, a, assignees, by)
	}()
}

func isUUID(value interface{}) error {
	s, _ := value.(string)
	if p, ok := value.(*string); ok && p != nil {
		s = *p
	}
	if s == "" || validUUID(s) {
		return nil
	}
	return validation.NewError("validation_is_uuid", "must be a valid UUID")
}

func toAny(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
