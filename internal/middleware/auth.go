package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"

	"github.com/workloadinsights/backend/internal/database"
	"github.com/workloadinsights/backend/internal/models"
	"github.com/workloadinsights/backend/internal/utils"
)

const (
	ContextUserKey   = "user"
	ContextMethodKey = "auth_method"

	MethodJWT    = "jwt"
	MethodAPIKey = "api_key"

	APIKeyHeader = "X-API-Key"
)

type AuthConfig struct {
	JWTSecret string
	// AllowQueryToken accepts ?access_token= for clients that cannot set headers (EventSource).
	AllowQueryToken bool
}

type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

const tokenIssuer = "workload-insights"

// NewAccessToken signs an HS256 access token for user.
func NewAccessToken(secret string, user models.User, ttl time.Duration, now time.Time) (string, error) {
	claims := Claims{
		UserID: user.ID,
		Role:   user.Role,
		Email:  user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Subject:   user.ID,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// NewRefreshToken signs a refresh token carrying jti; the caller persists its hash.
func NewRefreshToken(secret, userID, jti string, ttl time.Duration, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		Subject:   userID,
		ID:        jti,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseRefreshToken validates signature and expiry.
func ParseRefreshToken(secret, tokenStr string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func AuthMiddleware(db *gorm.DB, cfg AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key := strings.TrimSpace(c.GetHeader(APIKeyHeader)); key != "" {
			authenticateAPIKey(c, db, key)
			return
		}

		tokenStr := bearerToken(c.GetHeader("Authorization"))
		if tokenStr == "" && cfg.AllowQueryToken {
			tokenStr = strings.TrimSpace(c.Query("access_token"))
		}
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid authorization header"})
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
			return []byte(cfg.JWTSecret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		var user models.User
		err = database.WithRetry(c.Request.Context(), "auth.user", nil, func() error {
			return db.WithContext(c.Request.Context()).Where("id = ? AND active = ?", claims.UserID, true).First(&user).Error
		})
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user not found or inactive"})
			return
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "database unavailable"})
			return
		}

		c.Set(ContextUserKey, user)
		c.Set(ContextMethodKey, MethodJWT)
		c.Next()
	}
}

func authenticateAPIKey(c *gin.Context, db *gorm.DB, raw string) {
	var key models.ApiKey
	if err := db.Where("key_hash = ?", utils.SHA256Hex(raw)).First(&key).Error; err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
		return
	}
	now := time.Now().UTC()
	if !key.Usable(now) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "api key expired or revoked"})
		return
	}

	var user models.User
	if err := db.Where("id = ? AND active = ?", key.UserIDRef, true).First(&user).Error; err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user not found or inactive"})
		return
	}
	db.Model(&models.ApiKey{}).Where("id = ?", key.ID).Update("last_used_at", now)

	c.Set(ContextUserKey, user)
	c.Set(ContextMethodKey, MethodAPIKey)
	c.Next()
}

func bearerToken(header string) string {
	if len(header) < len("Bearer ") || !strings.EqualFold(header[:len("Bearer ")], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[len("Bearer "):])
}

// CurrentUser returns the user set by AuthMiddleware.
func CurrentUser(c *gin.Context) (models.User, bool) {
	v, ok := c.Get(ContextUserKey)
	if !ok {
		return models.User{}, false
	}
	user, ok := v.(models.User)
	return user, ok
}

func RequireRoles(roles ...string) gin.HandlerFunc {
	allowed := map[string]struct{}{}
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if _, ok := allowed[user.Role]; !ok {
			// allow admin to pass any role-gate
			if user.Role != models.RoleAdmin {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
				return
			}
		}
		c.Next()
	}
}
