package notifications

import (
	"time"

	"github.com/bissquit/fieldservice-sla/internal/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	notificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "notifications",
			Name:      "sent_total",
			Help:      "Total notification deliveries by sender and outcome",
		},
		[]string{"sender", "status"},
	)

	notificationSendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metrics.Namespace,
			Subsystem: "notifications",
			Name:      "send_duration_seconds",
			Help:      "Time to deliver a notification, retries included",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"sender"},
	)

	notificationsSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "notifications",
			Name:      "suppressed_total",
			Help:      "SLA events not delivered because they were delivered recently",
		},
	)
)

func recordNotificationSent(sender, status string) {
	notificationsSent.WithLabelValues(sender, status).Inc()
}

func recordNotificationDuration(sender string, d time.Duration) {
	notificationSendDuration.WithLabelValues(sender).Observe(d.Seconds())
}
