package shutdown

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for shutdown monitoring.
var (
	// cancellationsTotal counts cancellation requests by reason.
	cancellationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bucketshift_cancellations_total",
		Help: "Total number of run cancellations by reason",
	}, []string{"reason"})

	// cancelRequestTime records when the last cancellation was requested.
	cancelRequestTime = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bucketshift_cancel_requested_timestamp_seconds",
		Help: "Unix timestamp of the last cancellation request",
	})
)

// RecordCancellation records a cancellation request.
func RecordCancellation(reason string) {
	cancellationsTotal.WithLabelValues(reason).Inc()
	cancelRequestTime.SetToCurrentTime()
}
