package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter republishes Tracker snapshots for a named service as Prometheus
// gauges, grounded on cuemby-warren's pkg/metrics package: one GaugeVec keyed
// by counter name per service, registered once at construction.
type Exporter struct {
	registry *prometheus.Registry
	gauge    *prometheus.GaugeVec
}

// NewExporter creates an Exporter with its own registry, so multiple
// services in the same process never collide on metric names.
func NewExporter(serviceName string) *Exporter {
	registry := prometheus.NewRegistry()
	gauge := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "engramic_service_counter",
			Help: "Per-service counter values, relabeled from the last GetAndResetPacket snapshot",
			ConstLabels: prometheus.Labels{
				"service": serviceName,
			},
		},
		[]string{"counter"},
	)
	registry.MustRegister(gauge)
	return &Exporter{registry: registry, gauge: gauge}
}

// Publish relabels the gauge vector from a fresh snapshot. It does not reset
// the tracker — callers use Tracker.Snapshot, not GetAndResetPacket, so the
// next STATUS message still sees the same counts.
func (e *Exporter) Publish(packet Packet) {
	for name, value := range packet {
		e.gauge.WithLabelValues(name).Set(float64(value))
	}
}

// Handler returns the Prometheus scrape handler for this exporter's
// registry, mounted by the Host's status server at /metrics.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}
