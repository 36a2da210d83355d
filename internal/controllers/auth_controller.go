package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/workloadinsights/backend/internal/middleware"
	"github.com/workloadinsights/backend/internal/models"
	"github.com/workloadinsights/backend/internal/utils"
)

type AuthController struct {
	DB            *gorm.DB
	Logger        *zap.Logger
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r loginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Match(emailPattern).Error("must be a valid email address")),
		validation.Field(&r.Password, validation.Required),
	)
}

func (a *AuthController) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	var user models.User
	if err := a.DB.Where("email = ?", strings.ToLower(strings.TrimSpace(req.Email))).First(&user).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if !user.Active || !utils.CheckPassword(user.Password, req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	pair, err := a.issueTokens(user)
	if err != nil {
		respondInternal(c, a.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token":       pair.Access,
		"token_type":         "Bearer",
		"expires_in":         int(a.AccessTTL.Seconds()),
		"role":               user.Role,
		"refresh_token":      pair.Refresh,
		"refresh_expires_in": int(a.RefreshTTL.Seconds()),
		"user":               user,
	})
}

func (a *AuthController) Me(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	c.JSON(http.StatusOK, user)
}

type tokenPair struct {
	Access  string
	Refresh string
	JTI     string
}

// issueTokens signs an access/refresh pair and stores the refresh token hash.
func (a *AuthController) issueTokens(user models.User) (tokenPair, error) {
	now := time.Now().UTC()
	access, err := middleware.NewAccessToken(a.AccessSecret, user, a.AccessTTL, now)
	if err != nil {
		return tokenPair{}, err
	}
	jti := uuid.NewString()
	refresh, err := middleware.NewRefreshToken(a.RefreshSecret, user.ID, jti, a.RefreshTTL, now)
	if err != nil {
		return tokenPair{}, err
	}
	rec := models.RefreshToken{
		TokenID:   jti,
		UserIDRef: user.ID,
		TokenHash: utils.SHA256Hex(refresh),
		ExpiresAt: now.Add(a.RefreshTTL),
	}
	if err := a.DB.Create(&rec).Error; err != nil {
		return tokenPair{}, err
	}
	return tokenPair{Access: access, Refresh: refresh, JTI: jti}, nil
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (r refreshRequest) Validate() error {
	return validation.ValidateStruct(&r, validation.Field(&r.RefreshToken, validation.Required))
}

func (a *AuthController) Refresh(c *gin.Context) {
	var req refreshRequest
	if !bindAndValidate(c, &req) {
		return
	}
	if _, err := middleware.ParseRefreshToken(a.RefreshSecret, req.RefreshToken); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}

	var rec models.RefreshToken
	if err := a.DB.Where("token_hash = ?", utils.SHA256Hex(req.RefreshToken)).First(&rec).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "refresh token not found"})
		return
	}
	if rec.RevokedAt != nil || time.Now().UTC().After(rec.ExpiresAt) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "refresh token expired or revoked"})
		return
	}
	var user models.User
	if err := a.DB.Where("id = ? AND active = ?", rec.UserIDRef, true).First(&user).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found or inactive"})
		return
	}

	pair, err := a.issueTokens(user)
	if err != nil {
		respondInternal(c, a.Logger, err)
		return
	}
	now := time.Now().UTC()
	if err := a.DB.Model(&rec).Updates(map[string]interface{}{
		"revoked_at":           &now,
		"replaced_by_token_id": pair.JTI,
	}).Error; err != nil {
		respondInternal(c, a.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token":       pair.Access,
		"token_type":         "Bearer",
		"expires_in":         int(a.AccessTTL.Seconds()),
		"refresh_token":      pair.Refresh,
		"refresh_expires_in": int(a.RefreshTTL.Seconds()),
	})
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
	All          bool   `json:"all"`
}

// Logout revokes one refresh token or all of the caller's. Access tokens stay
// valid until they expire.
func (a *AuthController) Logout(c *gin.Context) {
	var req logoutRequest
	_ = c.ShouldBindJSON(&req)
	user, _ := middleware.CurrentUser(c)
	now := time.Now().UTC()

	if req.RefreshToken != "" {
		if err := a.DB.Model(&models.RefreshToken{}).
			Where("token_hash = ? AND user_id_ref = ? AND revoked_at IS NULL", utils.SHA256Hex(req.RefreshToken), user.ID).
			Update("revoked_at", &now).Error; err != nil {
			respondInternal(c, a.Logger, err)
			return
		}
	}
	if req.All {
		if err := a.DB.Model(&models.RefreshToken{}).
			Where("user_id_ref = ? AND revoked_at IS NULL", user.ID).
			Update("revoked_at", &now).Error; err != nil {
			respondInternal(c, a.Logger, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}
