package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/workloadinsights/backend/internal/database"
	"github.com/workloadinsights/backend/internal/events"
	"github.com/workloadinsights/backend/internal/middleware"
	"github.com/workloadinsights/backend/internal/models"
)

type CategoryController struct {
	DB     *gorm.DB
	Logger *zap.Logger
	Events events.Publisher
}

type categoryRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func (r categoryRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.NilOrNotEmpty, validation.Length(1, 100)),
	)
}

type categoryWithCount struct {
	models.Category
	ActivityCount int64 `json:"activity_count"`
}

var categorySorts = map[string]string{
	"created_at": "categories.created_at",
	"name":       "categories.name",
	"activities": "activity_count",
}

func (cc *CategoryController) ListCategories(c *gin.Context) {
	p := parseListParams(c, categorySorts, "categories.name")
	if c.Query("sort_dir") == "" {
		p.SortDir = "ASC"
	}

	base := cc.DB.Model(&models.Category{})
	if p.Q != "" {
		like := likePattern(p.Q)
		base = base.Where("LOWER(categories.name) LIKE ? OR LOWER(categories.description) LIKE ?", like, like)
	}
	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		respondInternal(c, cc.Logger, err)
		return
	}

	var rows []categoryWithCount
	q := base.Session(&gorm.Session{}).
		Select("categories.*, COUNT(activities.id) AS activity_count").
		Joins("LEFT JOIN activities ON activities.category_id = categories.id").
		Group("categories.id")
	if err := p.apply(q).Scan(&rows).Error; err != nil {
		respondInternal(c, cc.Logger, err)
		return
	}
	if rows == nil {
		rows = []categoryWithCount{}
	}
	c.JSON(http.StatusOK, gin.H{"data": rows, "meta": p.meta(total)})
}

func (cc *CategoryController) GetCategory(c *gin.Context) {
	var m models.Category
	if err := cc.DB.Where("id = ?", strings.TrimSpace(c.Param("id"))).First(&m).Error; err != nil {
		respondDBError(c, cc.Logger, err, "category not found")
		return
	}
	var count int64
	if err := cc.DB.Model(&models.Activity{}).Where("category_id = ?", m.ID).Count(&count).Error; err != nil {
		respondInternal(c, cc.Logger, err)
		return
	}
	c.JSON(http.StatusOK, categoryWithCount{Category: m, ActivityCount: count})
}

func (cc *CategoryController) CreateCategory(c *gin.Context) {
	var req categoryRequest
	if !bindAndValidate(c, &req) {
		return
	}
	if req.Name == nil {
		respondValidation(c, validation.Errors{"name": validation.ErrRequired})
		return
	}
	m := models.Category{Name: strings.TrimSpace(*req.Name)}
	if req.Description != nil {
		m.Description = strings.TrimSpace(*req.Description)
	}
	if err := cc.DB.Create(&m).Error; err != nil {
		if database.IsUniqueViolation(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "category name already exists"})
			return
		}
		respondInternal(c, cc.Logger, err)
		return
	}
	cc.changed(c)
	c.JSON(http.StatusCreated, m)
}

func (cc *CategoryController) UpdateCategory(c *gin.Context) {
	var m models.Category
	if err := cc.DB.Where("id = ?", strings.TrimSpace(c.Param("id"))).First(&m).Error; err != nil {
		respondDBError(c, cc.Logger, err, "category not found")
		return
	}
	var req categoryRequest
	if !bindAndValidate(c, &req) {
		return
	}
	if req.Name != nil {
		m.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		m.Description = strings.TrimSpace(*req.Description)
	}
	if err := cc.DB.Save(&m).Error; err != nil {
		if database.IsUniqueViolation(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "category name already exists"})
			return
		}
		respondInternal(c, cc.Logger, err)
		return
	}
	cc.changed(c)
	c.JSON(http.StatusOK, m)
}

func (cc *CategoryController) DeleteCategory(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	var m models.Category
	if err := cc.DB.Where("id = ?", id).First(&m).Error; err != nil {
		respondDBError(c, cc.Logger, err, "category not found")
		return
	}
	var inUse int64
	if err := cc.DB.Model(&models.Activity{}).Where("category_id = ?", id).Count(&inUse).Error; err != nil {
		respondInternal(c, cc.Logger, err)
		return
	}
	if inUse > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "category is used by activities", "activity_count": inUse})
		return
	}
	if err := cc.DB.Delete(&m).Error; err != nil {
		respondDBError(c, cc.Logger, err, "category not found")
		return
	}
	cc.changed(c)
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

func (cc *CategoryController) changed(c *gin.Context) {
	actor, _ := middleware.CurrentUser(c)
	broadcastChange(cc.Events, cc.Logger, events.CategoryChanged, "", actor.ID)
}
