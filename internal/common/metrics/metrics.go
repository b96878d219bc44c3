// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DeliveryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_delivery_attempts_total",
			Help: "Total number of delivery attempts by channel and outcome",
		},
		[]string{"channel", "status"},
	)

	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "notify_dispatch_duration_seconds",
			Help: "Duration of a full notification dispatch in seconds",
		},
		[]string{"outcome"},
	)

	SendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "notify_send_duration_seconds",
			Help: "Duration of individual channel sends in seconds",
		},
		[]string{"channel"},
	)

	NotificationsByStatus = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_notifications_total",
			Help: "Notifications entering each lifecycle status",
		},
		[]string{"status"},
	)

	ReceiptsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_receipts_total",
			Help: "Read and action receipts recorded",
		},
		[]string{"type"},
	)

	DispatchInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "notify_dispatch_in_flight",
			Help: "Number of sends currently in flight per channel",
		},
		[]string{"channel"},
	)
)
