package codify

import "github.com/EricP-Engramic/engramic/internal/metrics"

// Metric is the closed vocabulary of counters this service tracks.
type Metric string

const (
	MetricResponsesReceived    Metric = "responses_received"
	MetricObservationsCompleted Metric = "observations_completed"
	MetricObservationsFailed   Metric = "observations_failed"
)

func newTracker() metrics.Typed[Metric] {
	return metrics.NewTyped[Metric]()
}
