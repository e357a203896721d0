// Package metrics holds the Prometheus collectors for line2discord. They
// register with the default registry and are exposed by Handler.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "line2discord"

var startTime = time.Now()

// Uptime returns how long the process has been running.
func Uptime() time.Duration {
	return time.Since(startTime)
}

// Handler serves the default registry in Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// --- Pre-defined metrics used across the application ---

var (
	WebhookRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_requests_total",
		Help:      "Webhook deliveries received, by outcome.",
	}, []string{"outcome"}) // accepted, bad_signature, malformed

	SignatureFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "signature_failures_total",
		Help:      "Webhook deliveries dropped because the signature did not verify.",
	})

	EventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_received_total",
		Help:      "Webhook events received, by event type.",
	}, []string{"type"})

	EventsRelayed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_relayed_total",
		Help:      "Events processed, by message kind and outcome.",
	}, []string{"kind", "outcome"}) // sent, send_failed, dropped, panic

	MediaStored = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "media_stored_total",
		Help:      "Media files stored, by kind.",
	}, []string{"kind"})

	MediaBytes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "media_stored_bytes_total",
		Help:      "Bytes of media stored.",
	})

	MediaFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "media_failures_total",
		Help:      "Media that could not be forwarded, by kind and stage.",
	}, []string{"kind", "stage"}) // fetch, store

	MediaExpired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "media_expired_total",
		Help:      "Media files deleted by the retention janitor.",
	})

	DiscordLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "discord_send_duration_seconds",
		Help:      "Discord webhook POST latency in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})

	DiscordErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "discord_send_errors_total",
		Help:      "Discord webhook POSTs that failed, by HTTP status (0 for transport errors).",
	}, []string{"status"})

	ProfileFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "profile_fallbacks_total",
		Help:      "Sender profiles replaced by the fallback identity.",
	})
)
