package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/workloadinsights/backend/internal/middleware"
	"github.com/workloadinsights/backend/internal/models"
	"github.com/workloadinsights/backend/internal/utils"
)

type APIKeyController struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

type createAPIKeyRequest struct {
	Name          string  `json:"name"`
	ExpiresInDays int     `json:"expires_in_days"`
	UserID        *string `json:"user_id"`
}

func (r createAPIKeyRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.RuneLength(1, 120)),
		validation.Field(&r.ExpiresInDays, validation.Min(0), validation.Max(3650)),
		validation.Field(&r.UserID, validation.NilOrNotEmpty, validation.By(isUUID)),
	)
}

func (ak *APIKeyController) List(c *gin.Context) {
	base := ak.DB.Model(&models.ApiKey{})
	switch strings.ToLower(c.Query("revoked")) {
	case "true", "1":
		base = base.Where("revoked_at IS NOT NULL")
	case "false", "0":
		base = base.Where("revoked_at IS NULL")
	}
	var keys []models.ApiKey
	if err := base.Preload("User").Order("created_at DESC").Find(&keys).Error; err != nil {
		respondInternal(c, ak.Logger, err)
		return
	}
	if keys == nil {
		keys = []models.ApiKey{}
	}
	c.JSON(http.StatusOK, gin.H{"data": keys, "meta": gin.H{"total": len(keys)}})
}

// Create issues a key. The plaintext is only ever returned here.
func (ak *APIKeyController) Create(c *gin.Context) {
	var req createAPIKeyRequest
	if !bindAndValidate(c, &req) {
		return
	}
	actor, _ := middleware.CurrentUser(c)
	owner := actor
	if req.UserID != nil && *req.UserID != actor.ID {
		var other models.User
		if err := ak.DB.Where("id = ? AND active = ?", *req.UserID, true).First(&other).Error; err != nil {
			respondValidation(c, validation.Errors{"user_id": validation.NewError("validation_user_unknown", "unknown or inactive user")})
			return
		}
		owner = other
	}

	key, prefix, err := utils.GenerateAPIKey()
	if err != nil {
		respondInternal(c, ak.Logger, err)
		return
	}
	rec := models.ApiKey{
		Name:      strings.TrimSpace(req.Name),
		Prefix:    prefix,
		KeyHash:   utils.SHA256Hex(key),
		UserIDRef: owner.ID,
	}
	if req.ExpiresInDays > 0 {
		exp := time.Now().UTC().AddDate(0, 0, req.ExpiresInDays)
		rec.ExpiresAt = &exp
	}
	if err := ak.DB.Create(&rec).Error; err != nil {
		respondDBError(c, ak.Logger, err, "user not found")
		return
	}
	ak.Logger.Info("api key issued",
		zap.String("api_key_id", rec.ID),
		zap.String("prefix", prefix),
		zap.String("owner_id", owner.ID),
		zap.String("issued_by", actor.ID),
	)
	c.JSON(http.StatusCreated, gin.H{"key": key, "api_key": rec})
}

// Revoke marks the key revoked. Revoking twice keeps the first timestamp.
func (ak *APIKeyController) Revoke(c *gin.Context) {
	var rec models.ApiKey
	if err := ak.DB.Where("id = ?", strings.TrimSpace(c.Param("id"))).First(&rec).Error; err != nil {
		respondDBError(c, ak.Logger, err, "api key not found")
		return
	}
	if rec.RevokedAt == nil {
		now := time.Now().UTC()
		if err := ak.DB.Model(&rec).Update("revoked_at", &now).Error; err != nil {
			respondInternal(c, ak.Logger, err)
			return
		}
		rec.RevokedAt = &now
	}
	c.JSON(http.StatusOK, rec)
}
