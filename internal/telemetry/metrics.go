package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transfer_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "transfer_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Workflow metrics
	TransfersFinalizedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transfer_finalized_total",
			Help: "Total number of finalize attempts",
		},
		[]string{"type", "status"}, // status: completed, stale_quote, verification_failed, settlement_failed, validation_failed
	)

	VerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transfer_recipient_verifications_total",
			Help: "Total number of recipient verification calls",
		},
		[]string{"result"}, // verified, rejected, error
	)

	// FeeScheduleFallbackTotal counts quotes served from the default fee
	// because the destination bank was missing from the schedule. A growing
	// counter is a data-quality signal on the fee table.
	FeeScheduleFallbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transfer_fee_schedule_fallback_total",
			Help: "Fee quotes that fell back to the default fee for an unknown bank",
		},
		[]string{"bank_code"},
	)
)
