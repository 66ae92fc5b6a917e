package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	notificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatewatch_notifications_total",
			Help: "Notification attempts per channel by outcome.",
		},
		[]string{"channel", "status"},
	)
	notificationsSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatewatch_notifications_suppressed_total",
			Help: "Notifications dropped by a channel cooldown.",
		},
		[]string{"channel"},
	)
	sendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gatewatch_notification_send_duration_seconds",
			Help:    "Duration of outbound notification requests.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"channel"},
	)
)
