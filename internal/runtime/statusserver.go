package runtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/EricP-Engramic/engramic/internal/metrics"
)

// statusSnapshot is the JSON shape served at /status, one entry per service,
// carrying the name, timestamp and metrics fields of spec.md §6's STATUS
// payload; the id field is not included.
type statusSnapshot struct {
	Name      string         `json:"name"`
	Timestamp time.Time      `json:"timestamp"`
	Metrics   metrics.Packet `json:"metrics"`
}

// StatusServer exposes /status (per-service metrics via each service's
// Metrics(), which resets the counters it returns)
// and /metrics (Prometheus exposition) for operators, per SPEC_FULL.md §B.
type StatusServer struct {
	addr     string
	log      zerolog.Logger
	host     *Host
	exporter *metrics.Exporter
	server   *http.Server
}

// NewStatusServer constructs a server bound to addr (e.g. ":8088") serving
// host's services.
func NewStatusServer(addr string, host *Host, exporter *metrics.Exporter, log zerolog.Logger) *StatusServer {
	return &StatusServer{addr: addr, log: log, host: host, exporter: exporter}
}

func (s *StatusServer) router() chi.Router {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "status_server")
	})
	r.Get("/status", s.handleStatus)
	if s.exporter != nil {
		r.Handle("/metrics", s.exporter.Handler())
	}
	return r
}

func (s *StatusServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	snapshots := make([]statusSnapshot, 0, len(s.host.services))
	for _, svc := range s.host.services {
		snapshots = append(snapshots, statusSnapshot{
			Name:      svc.Name(),
			Timestamp: now,
			Metrics:   svc.Metrics(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snapshots); err != nil {
		s.log.Error().Err(err).Msg("status_encode_error")
	}
}

// Start begins serving in the background; call Shutdown to stop.
func (s *StatusServer) Start() {
	s.server = &http.Server{Addr: s.addr, Handler: s.router()}
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("status_server_error")
		}
	}()
}

// Shutdown gracefully stops the server.
func (s *StatusServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
