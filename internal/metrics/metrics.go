// Package metrics provides Prometheus metrics collection for bucketshift.
//
// When a run is started with --metrics-addr the collectors are exposed at
// /metrics next to a /healthz check:
//
// Catalog Metrics:
//   - bucketshift_catalog_pages_total: Listing pages processed
//   - bucketshift_catalog_objects_listed_total: Objects seen in the listing
//   - bucketshift_catalog_objects_inserted_total: Objects newly added to the ledger
//
// Transfer Metrics:
//   - bucketshift_transfers_total: Finished transfers by status
//   - bucketshift_transfer_failures_total: Failed transfers by stage
//   - bucketshift_transfer_bytes_total: Bytes written to the destination
//   - bucketshift_transfer_duration_seconds: Per-object transfer latency
//   - bucketshift_transfers_in_flight: Transfers currently running
//   - bucketshift_waves_total: Scheduler waves dispatched
//   - bucketshift_pending_objects: Objects still pending in the ledger
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Transfer status label values.
const (
	StatusCopied = "copied"
	StatusFailed = "failed"
)

var (
	// CatalogPagesTotal counts listing pages processed
	CatalogPagesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bucketshift_catalog_pages_total",
			Help: "Total number of listing pages processed",
		},
	)

	// CatalogObjectsListed counts objects returned by the source listing
	CatalogObjectsListed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bucketshift_catalog_objects_listed_total",
			Help: "Total number of objects seen in the source listing",
		},
	)

	// CatalogObjectsInserted counts objects newly recorded in the ledger
	CatalogObjectsInserted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bucketshift_catalog_objects_inserted_total",
			Help: "Total number of objects newly added to the ledger",
		},
	)

	// TransfersTotal counts finished transfers by status
	TransfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bucketshift_transfers_total",
			Help: "Total number of finished transfers",
		},
		[]string{"status"},
	)

	// TransferFailures counts failed transfers by the stage that failed
	TransferFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bucketshift_transfer_failures_total",
			Help: "Total number of failed transfers by stage",
		},
		[]string{"op"},
	)

	// TransferBytes counts bytes written to the destination
	TransferBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bucketshift_transfer_bytes_total",
			Help: "Total bytes written to the destination",
		},
	)

	// TransferDuration tracks per-object transfer latency
	TransferDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bucketshift_transfer_duration_seconds",
			Help:    "Per-object transfer duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		},
	)

	// TransfersInFlight tracks transfers currently running
	TransfersInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bucketshift_transfers_in_flight",
			Help: "Number of transfers currently running",
		},
	)

	// WavesTotal counts scheduler waves
	WavesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bucketshift_waves_total",
			Help: "Total number of scheduler waves dispatched",
		},
	)

	// PendingObjects tracks objects still pending in the ledger
	PendingObjects = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bucketshift_pending_objects",
			Help: "Number of objects still pending in the ledger",
		},
	)
)

// RecordCatalogPage records one processed listing page.
func RecordCatalogPage(listed, inserted int) {
	CatalogPagesTotal.Inc()
	CatalogObjectsListed.Add(float64(listed))
	CatalogObjectsInserted.Add(float64(inserted))
}

// TransferStarted marks a transfer as in flight.
func TransferStarted() {
	TransfersInFlight.Inc()
}

// RecordTransferSuccess records a completed transfer.
func RecordTransferSuccess(bytes int64, duration time.Duration) {
	TransfersInFlight.Dec()
	TransfersTotal.WithLabelValues(StatusCopied).Inc()
	TransferBytes.Add(float64(bytes))
	TransferDuration.Observe(duration.Seconds())
}

// RecordTransferFailure records a failed transfer and the stage that failed.
func RecordTransferFailure(op string, duration time.Duration) {
	TransfersInFlight.Dec()
	TransfersTotal.WithLabelValues(StatusFailed).Inc()
	TransferFailures.WithLabelValues(op).Inc()
	TransferDuration.Observe(duration.Seconds())
}

// RecordWave records one dispatched wave.
func RecordWave() {
	WavesTotal.Inc()
}

// SetPendingObjects sets the pending object gauge.
func SetPendingObjects(n int64) {
	PendingObjects.Set(float64(n))
}
