package consolidate

import "github.com/EricP-Engramic/engramic/internal/metrics"

// Metric is the closed vocabulary of counters this service tracks, mirroring
// the teacher's generic metrics.Typed[T ~string] pattern.
type Metric string

const (
	MetricObservationsReceived Metric = "observations_received"
	MetricEngramsCompleted     Metric = "engrams_completed"
	MetricEngramsFailed        Metric = "engrams_failed"
	MetricSummariesCompleted   Metric = "summaries_completed"
	MetricSummariesFailed      Metric = "summaries_failed"
)

func newTracker() metrics.Typed[Metric] {
	return metrics.NewTyped[Metric]()
}
