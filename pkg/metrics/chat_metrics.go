package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Messaging metrics for the send pipeline, webhook reconciler and hub
var (
	MessagesCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wadesk_messages_created_total",
		Help: "Total number of messages persisted",
	}, []string{"source", "kind"}) // source: agent, webhook, forward

	GatewaySendTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wadesk_gateway_send_total",
		Help: "Outbound gateway calls by result",
	}, []string{"kind", "result"}) // result: sent, failed

	GatewaySendDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "wadesk_gateway_send_duration_seconds",
		Help:    "Latency of outbound gateway calls",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
	})

	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wadesk_webhook_events_total",
		Help: "Gateway webhook events by kind and outcome",
	}, []string{"event", "result"}) // result: applied, duplicate, ignored, rejected, error

	MessageStatusTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wadesk_message_status_transitions_total",
		Help: "Applied message status transitions",
	}, []string{"to"})

	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "wadesk_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=half_open, 2=open)",
	}, []string{"breaker"})

	MediaRehostDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "wadesk_media_rehost_duration_seconds",
		Help:    "Time to fetch and re-upload gateway media",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
	})

	HubConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wadesk_hub_connections",
		Help: "Current number of open live sessions",
	})

	HubConnectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wadesk_hub_connections_total",
		Help: "Live sessions opened by transport",
	}, []string{"transport"}) // ws, sse

	HubDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wadesk_hub_deliveries_total",
		Help: "Push deliveries by outcome",
	}, []string{"result"}) // delivered, dropped

	EventExportTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wadesk_event_export_total",
		Help: "Lifecycle events exported to the broker",
	}, []string{"routing_key", "result"})

	RequestTimeoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wadesk_http_request_timeouts_total",
		Help: "Requests that exceeded the API deadline",
	}, []string{"method", "endpoint"})
)
