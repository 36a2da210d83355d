package realtime

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handler struct {
	Hub    *Hub
	Logger *zap.Logger
}

// Stream serves GET /api/events as an SSE stream of change events.
func (h *Handler) Stream(c *gin.Context) {
	ctx := c.Request.Context()
	client, err := h.Hub.Subscribe(ctx, TransportSSE)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "realtime unavailable"})
		return
	}
	defer h.Hub.Unsubscribe(client)

	sse, err := NewSSEWriter(c.Writer)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := sse.Event("connected", gin.H{"connection_id": client.ID()}); err != nil {
		return
	}
	client.MarkWrite(time.Now())

	ticker := time.NewTicker(h.Hub.Config().Heartbeat)
	defer ticker.Stop()

	for {
		var werr error
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-client.Events():
			if !ok {
				return
			}
			werr = sse.Event(evt.Type, evt)
		case <-ticker.C:
			werr = sse.Comment("heartbeat")
		}
		if werr != nil {
			h.Logger.Debug("sse write failed", zap.String("connection_id", client.ID()), zap.Error(werr))
			return
		}
		client.MarkWrite(time.Now())
	}
}
