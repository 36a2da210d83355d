package controllers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"go.uber.org/zap"

	"github.com/workloadinsights/backend/internal/ai"
	"github.com/workloadinsights/backend/internal/middleware"
	"github.com/workloadinsights/backend/internal/observability"
	"github.com/workloadinsights/backend/internal/realtime"
)

type AIChatController struct {
	Service *ai.Service
	Logger  *zap.Logger
}

type chatRequest struct {
	Message string       `json:"message"`
	History []ai.Message `json:"history"`
}

func (r chatRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Message, validation.Required, validation.RuneLength(1, 4000)),
		validation.Field(&r.History, validation.Length(0, 100)),
	)
}

// Chat answers over SSE: meta, chunk..., optional continuation, then done or
// error. Closing the request cancels the upstream model call.
func (ac *AIChatController) Chat(c *gin.Context) {
	var req chatRequest
	if !bindAndValidate(c, &req) {
		return
	}
	ctx := c.Request.Context()
	user, _ := middleware.CurrentUser(c)

	prepared, err := ac.Service.Prepare(ctx, strings.TrimSpace(req.Message), req.History)
	if err != nil {
		observability.AIChatRequests.WithLabelValues("none", "unavailable").Inc()
		if errors.Is(err, ai.ErrNoAPIKey) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "AI assistant is not configured"})
			return
		}
		respondInternal(c, ac.Logger, err)
		return
	}
	provider := prepared.Provider.Name()

	sse, err := realtime.NewSSEWriter(c.Writer)
	if err != nil {
		respondInternal(c, ac.Logger, err)
		return
	}
	if err := sse.Event("meta", gin.H{
		"provider": provider,
		"model":    prepared.Settings.Model,
		"sampled":  prepared.Summary.Sampled,
		"total":    prepared.Summary.Total,
	}); err != nil {
		return
	}

	res, err := ai.Relay(ctx, prepared.Provider, prepared.Request, ac.Service.NewChunker(), sse)
	if err != nil {
		if ctx.Err() != nil {
			observability.AIChatRequests.WithLabelValues(provider, "cancelled").Inc()
			ac.Logger.Debug("ai chat cancelled by client", zap.String("user_id", user.ID), zap.Int("chunks", res.Chunks))
			return
		}
		observability.AIChatRequests.WithLabelValues(provider, "error").Inc()
		ac.Logger.Warn("ai chat failed",
			zap.String("provider", provider),
			zap.String("user_id", user.ID),
			zap.Int("chunks", res.Chunks),
			zap.Error(err),
		)
		_ = sse.Event("error", gin.H{"message": "the assistant could not finish its answer"})
		return
	}

	outcome := "ok"
	if res.Truncated {
		outcome = "truncated"
	}
	observability.AIChatRequests.WithLabelValues(provider, outcome).Inc()
	_ = sse.Event("done", gin.H{"chars": res.Chars, "chunks": res.Chunks, "truncated": res.Truncated})
}
