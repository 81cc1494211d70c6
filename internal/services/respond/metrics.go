package respond

import "github.com/EricP-Engramic/engramic/internal/metrics"

// Metric is the closed vocabulary of counters this service tracks.
type Metric string

const (
	MetricRetrievesConsumed  Metric = "retrieves_consumed"
	MetricResponsesCompleted Metric = "responses_completed"
	MetricResponsesFailed    Metric = "responses_failed"
)

func newTracker() metrics.Typed[Metric] {
	return metrics.NewTyped[Metric]()
}
