package controllers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/workloadinsights/backend/internal/models"
	"github.com/workloadinsights/backend/internal/utils"
	"github.com/workloadinsights/backend/internal/whatsapp"
)

const maxWebhookBody = 1 << 20

type WhatsAppController struct {
	DB          *gorm.DB
	Logger      *zap.Logger
	Processor   *whatsapp.Processor
	VerifyToken string
	AppSecret   string
}

// VerifyWebhook answers the subscription handshake by echoing hub.challenge.
func (wc *WhatsAppController) VerifyWebhook(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")
	if mode != "subscribe" || wc.VerifyToken == "" || token != wc.VerifyToken {
		c.JSON(http.StatusForbidden, gin.H{"error": "verification failed"})
		return
	}
	c.String(http.StatusOK, challenge)
}

// ReceiveWebhook stores inbound messages and delivery statuses. Well-formed
// payloads always get 200 so the provider does not redeliver.
func (wc *WhatsAppController) ReceiveWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}
	if wc.AppSecret != "" && !utils.ValidHMACSHA256(wc.AppSecret, body, c.GetHeader("X-Hub-Signature-256")) {
		wc.Logger.Warn("whatsapp: webhook signature mismatch", zap.String("client_ip", c.ClientIP()))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}
	var payload whatsapp.Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	res, err := wc.Processor.Process(c.Request.Context(), payload)
	if err != nil {
		if errors.Is(err, whatsapp.ErrNotWhatsApp) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		respondInternal(c, wc.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "result": res})
}

var whatsAppSorts = map[string]string{
	"created_at": "created_at",
	"status":     "status",
}

func (wc *WhatsAppController) ListMessages(c *gin.Context) {
	p := parseListParams(c, whatsAppSorts, "created_at")
	base := wc.DB.Model(&models.WhatsAppMessage{})
	meta := gin.H{}
	if v := strings.TrimSpace(c.Query("activity_id")); v != "" {
		base = base.Where("activity_id = ?", v)
		meta["activity_id"] = v
	}
	if v := strings.TrimSpace(c.Query("user_id")); v != "" {
		base = base.Where("user_id = ?", v)
		meta["user_id"] = v
	}
	if v := strings.ToLower(strings.TrimSpace(c.Query("direction"))); v != "" {
		if v != models.DirectionInbound && v != models.DirectionOutbound {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid direction"})
			return
		}
		base = base.Where("direction = ?", v)
		meta["direction"] = v
	}
	if p.Q != "" {
		like := likePattern(p.Q)
		base = base.Where("LOWER(body) LIKE ? OR from_number LIKE ? OR to_number LIKE ?", like, like, like)
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		respondInternal(c, wc.Logger, err)
		return
	}
	var rows []models.WhatsAppMessage
	if err := p.apply(base.Session(&gorm.Session{})).Find(&rows).Error; err != nil {
		respondInternal(c, wc.Logger, err)
		return
	}
	if rows == nil {
		rows = []models.WhatsAppMessage{}
	}
	out := p.meta(total)
	for k, v := range meta {
		out[k] = v
	}
	c.JSON(http.StatusOK, gin.H{"data": rows, "meta": out})
}
