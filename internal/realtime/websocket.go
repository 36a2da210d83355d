package realtime

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait = 10 * time.Second
	readLimit = 512
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins; CORS and JWT auth run before the upgrade.
		return true
	},
}

// WebSocket serves GET /api/ws with the same events as Stream.
func (h *Handler) WebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	client, err := h.Hub.Subscribe(c.Request.Context(), TransportWebSocket)
	if err != nil {
		conn.Close()
		return
	}

	go h.writePump(conn, client)
	h.readPump(conn, client)
}

// readPump only drains control frames; pongs extend the read deadline.
func (h *Handler) readPump(conn *websocket.Conn, client *Client) {
	defer func() {
		h.Hub.Unsubscribe(client)
		conn.Close()
	}()
	pongWait := h.Hub.Config().StaleAfter
	conn.SetReadLimit(readLimit)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (h *Handler) writePump(conn *websocket.Conn, client *Client) {
	ticker := time.NewTicker(h.Hub.Config().Heartbeat)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()
	for {
		select {
		case evt, ok := <-client.Events():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			msg, err := json.Marshal(evt)
			if err != nil {
				h.Logger.Error("ws: failed to marshal event", zap.Error(err))
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
		client.MarkWrite(time.Now())
	}
}
