package progress

import "github.com/EricP-Engramic/engramic/internal/metrics"

// Metric is the closed vocabulary of counters this service tracks, mirroring
// the teacher's generic metrics.Typed[T ~string] pattern.
type Metric string

const (
	MetricSourcesStarted   Metric = "sources_started"
	MetricSourcesCompleted Metric = "sources_completed"
	MetricIndicesCreated   Metric = "indices_created"
	MetricEngramsIndexed   Metric = "engrams_indexed"
)

func newTracker() metrics.Typed[Metric] {
	return metrics.NewTyped[Metric]()
}
