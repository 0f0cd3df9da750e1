package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesSentCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "twilio_bridge",
			Name:      "messages_sent_total",
			Help:      "Total outbound messages submitted to Twilio.",
		},
		[]string{"status"}, // "success", "provider_error", "store_error"
	)

	inboundMessagesCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "twilio_bridge",
			Name:      "inbound_messages_total",
			Help:      "Total inbound messages ingested from incoming-message webhooks.",
		},
		[]string{"result"}, // "inserted", "duplicate", "error"
	)

	statusUpdatesCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "twilio_bridge",
			Name:      "status_updates_total",
			Help:      "Total delivery status updates applied from message-status webhooks.",
		},
		[]string{"result"}, // "applied", "not_found", "error"
	)
)
