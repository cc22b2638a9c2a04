// Package monitoring exposes Prometheus metrics for the webhook pipeline.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	webhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Webhook events received, by event type and outcome",
		},
		[]string{"event_type", "outcome"},
	)

	webhookDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "webhook_processing_duration_seconds",
			Help:    "End-to-end webhook processing time",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
	)

	rateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_rejections_total",
			Help: "Requests rejected by the rate limiter, by scope",
		},
		[]string{"scope"},
	)

	notificationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_failures_total",
			Help: "Best-effort notification deliveries that failed",
		},
		[]string{"kind"},
	)
)

func WebhookEvent(eventType, outcome string) {
	webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

func ObserveWebhookDuration(seconds float64) {
	webhookDuration.Observe(seconds)
}

func RateLimitRejected(scope string) {
	rateLimitRejections.WithLabelValues(scope).Inc()
}

func NotificationFailed(kind string) {
	notificationFailures.WithLabelValues(kind).Inc()
}
