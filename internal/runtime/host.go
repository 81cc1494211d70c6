package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/EricP-Engramic/engramic/internal/bus"
	"github.com/EricP-Engramic/engramic/internal/config"
	"github.com/EricP-Engramic/engramic/internal/metrics"
	"github.com/EricP-Engramic/engramic/internal/plugins"
)

// shutdownGrace bounds how long in-flight joins get before being abandoned
// on shutdown (spec.md §5: "a finite grace window (default 1 s)").
const shutdownGrace = time.Second

// Host boots the process (spec.md §4.5): resolves a profile, instantiates
// services in the configured order, wires them to a shared plugin registry,
// starts each, and blocks on a shutdown condition. Host owns the services
// slice; services hold no reference back to the Host, only the shared bus
// and plugin registry they were constructed with.
type Host struct {
	Config   config.Config
	Registry *plugins.Registry
	Recorder *plugins.Recorder
	Bus      *bus.Bus
	Log      zerolog.Logger

	mu       sync.Mutex
	services []Service
	byName   map[string]Service

	shutdown   chan struct{}
	shutdownMu sync.Once
}

// NewHost constructs an un-started Host from cfg. Callers register services
// with AddService in cfg.Services order, then call Start.
func NewHost(cfg config.Config, registry *plugins.Registry, recorder *plugins.Recorder, log zerolog.Logger) *Host {
	return &Host{
		Config:   cfg,
		Registry: registry,
		Recorder: recorder,
		Bus:      bus.New(log),
		Log:      log,
		byName:   make(map[string]Service),
		shutdown: make(chan struct{}),
	}
}

// AddService registers svc under the Host, in start order.
func (h *Host) AddService(svc Service) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.services = append(h.services, svc)
	h.byName[svc.Name()] = svc
}

// GetService looks up a previously-registered service by name.
func (h *Host) GetService(name string) (Service, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	svc, ok := h.byName[name]
	return svc, ok
}

// Start starts every registered service in registration order. If any
// fails to start, the services started so far are stopped before returning
// the error (config/bind errors are fatal at startup per spec.md §7).
func (h *Host) Start(ctx context.Context) error {
	h.mu.Lock()
	services := append([]Service(nil), h.services...)
	h.mu.Unlock()

	started := make([]Service, 0, len(services))
	for _, svc := range services {
		if err := svc.Start(ctx); err != nil {
			h.Log.Error().Err(err).Str("service", svc.Name()).Msg("service_start_failed")
			for i := len(started) - 1; i >= 0; i-- {
				_ = started[i].Stop(ctx)
			}
			return fmt.Errorf("start service %s: %w", svc.Name(), err)
		}
		started = append(started, svc)
		h.Log.Info().Str("service", svc.Name()).Msg("service_started")
	}
	return nil
}

// Stop stops every registered service in reverse start order, giving each a
// bounded grace window.
func (h *Host) Stop(parent context.Context) {
	h.mu.Lock()
	services := append([]Service(nil), h.services...)
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(parent, shutdownGrace)
	defer cancel()

	for i := len(services) - 1; i >= 0; i-- {
		svc := services[i]
		if err := svc.Stop(ctx); err != nil {
			h.Log.Warn().Err(err).Str("service", svc.Name()).Msg("service_stop_error")
		}
	}
	h.Bus.Close()
}

// TriggerShutdown signals WaitForShutdown to return. Safe to call more than
// once or concurrently.
func (h *Host) TriggerShutdown() {
	h.shutdownMu.Do(func() { close(h.shutdown) })
}

// WaitForShutdown blocks until TriggerShutdown is called or ctx is done.
func (h *Host) WaitForShutdown(ctx context.Context) {
	select {
	case <-h.shutdown:
	case <-ctx.Done():
	}
}

// MockUpdateArgs returns args with overrides applied on top, for a
// subsequent mocked plugin call (spec.md §4.5's mock_update_args entry
// point). The result is a new map and args is left unmodified; with no
// overrides, args itself is returned.
func (h *Host) MockUpdateArgs(args map[string]string, overrides map[string]string) map[string]string {
	if len(overrides) == 0 {
		return args
	}
	merged := make(map[string]string, len(args)+len(overrides))
	for k, v := range args {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}

// UpdateMockDataInput records a call's input via the Host's recorder.
func (h *Host) UpdateMockDataInput(serviceName string, callIndex int, sourceID string, input any) error {
	if h.Recorder == nil {
		return nil
	}
	return h.Recorder.UpdateMockDataInput(serviceName, callIndex, sourceID, input)
}

// UpdateMockDataOutput records a call's output via the Host's recorder.
func (h *Host) UpdateMockDataOutput(serviceName string, callIndex int, sourceID string, output any) error {
	if h.Recorder == nil {
		return nil
	}
	return h.Recorder.UpdateMockDataOutput(serviceName, callIndex, sourceID, output)
}

// WriteMockData persists the recorder's contents to disk.
func (h *Host) WriteMockData() error {
	if h.Recorder == nil {
		return nil
	}
	return h.Recorder.WriteMockData()
}

// MetricsSnapshot gathers a Packet per running service, keyed by name.
func (h *Host) MetricsSnapshot() map[string]metrics.Packet {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]metrics.Packet, len(h.services))
	for _, svc := range h.services {
		out[svc.Name()] = svc.Metrics()
	}
	return out
}
