package retrieve

import "github.com/EricP-Engramic/engramic/internal/metrics"

// Metric is the closed vocabulary of counters this service tracks.
type Metric string

const (
	MetricPromptsReceived  Metric = "prompts_received"
	MetricRetrievesComplete Metric = "retrieves_completed"
	MetricRetrievesFailed  Metric = "retrieves_failed"
)

func newTracker() metrics.Typed[Metric] {
	return metrics.NewTyped[Metric]()
}
