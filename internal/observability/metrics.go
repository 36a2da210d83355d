package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RealtimeConnections = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "workload_insights",
		Subsystem: "realtime",
		Name:      "connections",
		Help:      "Open realtime connections by transport.",
	}, []string{"transport"})

	RealtimeBroadcasts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "workload_insights",
		Subsystem: "realtime",
		Name:      "broadcasts_total",
		Help:      "Events broadcast to realtime clients by event type.",
	}, []string{"type"})

	RealtimeDrops = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "workload_insights",
		Subsystem: "realtime",
		Name:      "dropped_clients_total",
		Help:      "Realtime clients removed by the hub, by reason.",
	}, []string{"reason"})

	AIChatRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "workload_insights",
		Subsystem: "ai",
		Name:      "chat_requests_total",
		Help:      "AI chat requests by provider and outcome.",
	}, []string{"provider", "outcome"})

	AIChunks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "workload_insights",
		Subsystem: "ai",
		Name:      "chunks_total",
		Help:      "Relay chunks streamed to chat clients.",
	})

	WhatsAppMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "workload_insights",
		Subsystem: "whatsapp",
		Name:      "messages_total",
		Help:      "WhatsApp messages by direction and status.",
	}, []string{"direction", "status"})

	DBRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "workload_insights",
		Subsystem: "database",
		Name:      "retries_total",
		Help:      "Retries of database operations after transient errors.",
	}, []string{"op"})

	EventPublishFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "workload_insights",
		Subsystem: "events",
		Name:      "publish_failures_total",
		Help:      "Activity change events a publisher failed to deliver.",
	}, []string{"publisher"})
)

func init() {
	prometheus.MustRegister(
		RealtimeConnections,
		RealtimeBroadcasts,
		RealtimeDrops,
		AIChatRequests,
		AIChunks,
		WhatsAppMessages,
		DBRetries,
		EventPublishFailures,
	)
}
