package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SamplesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "safetrack_location_samples_total",
			Help: "Location samples received, by outcome (persisted or throttled)",
		},
		[]string{"outcome"},
	)

	WriteFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "safetrack_store_write_failures_total",
			Help: "Failed session writes, by operation",
		},
		[]string{"operation"},
	)

	AnomaliesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "safetrack_anomalies_total",
			Help: "Anomalous speed observations",
		},
	)

	PanicsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "safetrack_silent_panics_total",
			Help: "Silent panics triggered by users",
		},
	)

	CheckResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "safetrack_check_results_total",
			Help: "Check request answers surfaced to owners, by status",
		},
		[]string{"status"},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "safetrack_notifications_total",
			Help: "Contact notifications sent, by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "safetrack_active_sessions",
			Help: "Sessions currently tracked by this instance",
		},
	)
)
