package realtime

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/workloadinsights/backend/internal/events"
	"github.com/workloadinsights/backend/internal/observability"
)

const (
	TransportSSE       = "sse"
	TransportWebSocket = "websocket"
)

const (
	defaultHeartbeat  = 30 * time.Second
	defaultStaleAfter = 2 * time.Minute
	sendBufferSize    = 64
	broadcastBuffer   = 256
)

var ErrHubClosed = errors.New("realtime hub is not running")

type Config struct {
	// Heartbeat is how often each connection writes a keep-alive.
	Heartbeat time.Duration
	// StaleAfter removes clients whose last successful write is older than this.
	StaleAfter time.Duration
	// SweepInterval defaults to StaleAfter/2.
	SweepInterval time.Duration
	SendBuffer    int
}

func (c Config) withDefaults() Config {
	if c.Heartbeat <= 0 {
		c.Heartbeat = defaultHeartbeat
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = defaultStaleAfter
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = c.StaleAfter / 2
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = sendBufferSize
	}
	return c
}

// Client is one open dashboard connection.
type Client struct {
	id          string
	transport   string
	send        chan events.Event
	lastWrite   atomic.Int64
	ConnectedAt time.Time
}

func (c *Client) ID() string { return c.id }

// Events yields broadcast events. The channel is closed when the hub drops the client.
func (c *Client) Events() <-chan events.Event { return c.send }

// MarkWrite records a successful write; the sweeper uses it to spot dead peers.
func (c *Client) MarkWrite(t time.Time) { c.lastWrite.Store(t.UnixNano()) }

func (c *Client) LastWrite() time.Time { return time.Unix(0, c.lastWrite.Load()) }

// Hub keeps every live connection keyed by id and fans events out to them.
// All map access happens on the Run goroutine.
type Hub struct {
	cfg        Config
	logger     *zap.Logger
	register   chan *Client
	unregister chan *Client
	broadcast  chan events.Event
	clients    map[string]*Client
	count      atomic.Int64
	done       chan struct{}
}

func NewHub(cfg Config, logger *zap.Logger) *Hub {
	return &Hub{
		cfg:        cfg.withDefaults(),
		logger:     logger,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan events.Event, broadcastBuffer),
		clients:    make(map[string]*Client),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Config() Config { return h.cfg }

// Run processes registrations, broadcasts and stale sweeps until ctx ends.
func (h *Hub) Run(ctx context.Context) {
	sweep := time.NewTicker(h.cfg.SweepInterval)
	defer func() {
		sweep.Stop()
		for _, c := range h.clients {
			h.remove(c, "shutdown")
		}
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			h.clients[c.id] = c
			h.count.Add(1)
			observability.RealtimeConnections.WithLabelValues(c.transport).Inc()
		case c := <-h.unregister:
			h.remove(c, "closed")
		case evt := <-h.broadcast:
			observability.RealtimeBroadcasts.WithLabelValues(evt.Type).Inc()
			for _, c := range h.clients {
				select {
				case c.send <- evt:
				default:
					h.remove(c, "slow")
				}
			}
		case now := <-sweep.C:
			for _, c := range h.clients {
				if now.Sub(c.LastWrite()) > h.cfg.StaleAfter {
					h.remove(c, "stale")
				}
			}
		}
	}
}

func (h *Hub) remove(c *Client, reason string) {
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	delete(h.clients, c.id)
	close(c.send)
	h.count.Add(-1)
	observability.RealtimeConnections.WithLabelValues(c.transport).Dec()
	if reason != "closed" {
		observability.RealtimeDrops.WithLabelValues(reason).Inc()
		h.logger.Debug("realtime client dropped",
			zap.String("connection_id", c.id),
			zap.String("transport", c.transport),
			zap.String("reason", reason),
		)
	}
}

// Subscribe registers a new client for transport.
func (h *Hub) Subscribe(ctx context.Context, transport string) (*Client, error) {
	c := &Client{
		id:          uuid.NewString(),
		transport:   transport,
		send:        make(chan events.Event, h.cfg.SendBuffer),
		ConnectedAt: time.Now(),
	}
	c.MarkWrite(c.ConnectedAt)
	select {
	case h.register <- c:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.done:
		return nil, ErrHubClosed
	}
}

// Unsubscribe is safe to call for clients the hub already dropped.
func (h *Hub) Unsubscribe(c *Client) {
	if c == nil {
		return
	}
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Publish queues evt for every connected client. Delivery is best-effort.
func (h *Hub) Publish(ctx context.Context, evt events.Event) error {
	select {
	case <-h.done:
		return ErrHubClosed
	default:
	}
	select {
	case h.broadcast <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return ErrHubClosed
	}
}

func (h *Hub) Name() string { return "realtime" }

// Count returns the number of registered clients.
func (h *Hub) Count() int { return int(h.count.Load()) }
