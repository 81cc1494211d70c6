package storage

import "github.com/EricP-Engramic/engramic/internal/metrics"

// Metric is the closed vocabulary of counters this service tracks.
type Metric string

const (
	MetricEngramBatchesReceived Metric = "engram_batches_received"
	MetricMetasReceived         Metric = "metas_received"
	MetricObservationsPersisted Metric = "observations_persisted"
	MetricObservationsMerged    Metric = "observations_merged"
	MetricPersistFailed         Metric = "persist_failed"
)

func newTracker() metrics.Typed[Metric] {
	return metrics.NewTyped[Metric]()
}
