// Command create_memory is engramic's minimal example host: it boots a
// standard-profile Host with every built-in service wired in, submits one
// fixed training-mode prompt, and waits for shutdown. Grounded on
// original_source's examples/create_memory/create_memory.py, the reference
// wiring this binary ports directly (service list, submitted prompt text,
// training_mode=true, "wait for shutdown" tail), combined with the
// teacher's cobra root-command pattern (cuemby-warren's cmd/warren/main.go)
// in place of the original's bare main().
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/EricP-Engramic/engramic/internal/bus"
	"github.com/EricP-Engramic/engramic/internal/config"
	"github.com/EricP-Engramic/engramic/internal/core"
	"github.com/EricP-Engramic/engramic/internal/metrics"
	"github.com/EricP-Engramic/engramic/internal/observability"
	"github.com/EricP-Engramic/engramic/internal/plugins"
	"github.com/EricP-Engramic/engramic/internal/runtime"
	"github.com/EricP-Engramic/engramic/internal/services/codify"
	"github.com/EricP-Engramic/engramic/internal/services/consolidate"
	"github.com/EricP-Engramic/engramic/internal/services/progress"
	"github.com/EricP-Engramic/engramic/internal/services/respond"
	"github.com/EricP-Engramic/engramic/internal/services/retrieve"
	"github.com/EricP-Engramic/engramic/internal/services/storage"
	"github.com/EricP-Engramic/engramic/internal/telemetry"
)

var (
	configPath   string
	promptText   string
	trainingMode bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "create_memory",
	Short: "Boot an engramic host and submit one prompt",
	Long: `create_memory launches a standard-profile engramic host with every
built-in service, submits a single prompt, and blocks until the process
receives a shutdown signal.`,
	RunE: run,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file (optional)")
	rootCmd.Flags().StringVar(&promptText, "prompt", "Tell me about Chamath Palihapitiya.", "prompt text to submit on startup")
	rootCmd.Flags().BoolVar(&trainingMode, "training-mode", true, "mark the submitted prompt as training data")
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.InitLogger(cfg.LogPath, cfg.LogLevel, cfg.LogPretty)

	shutdownTracing, err := telemetry.Setup(cmd.Context(), cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(stopCtx); err != nil {
			logger.Warn().Err(err).Msg("tracing_shutdown_error")
		}
	}()

	recorder, err := newRecorder(cfg)
	if err != nil {
		return fmt.Errorf("init recorder: %w", err)
	}

	registry, err := wireRegistry(cmd.Context(), cfg, recorder)
	if err != nil {
		return fmt.Errorf("wire plugin registry: %w", err)
	}

	host := runtime.NewHost(cfg, registry, recorder, logger)

	var mirror *bus.KafkaMirror
	if cfg.Kafka.Enabled {
		mirror = bus.NewKafkaMirror(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
	}

	for _, name := range cfg.Services {
		svc, err := buildService(name, host, registry, recorder, cfg, mirror, logger)
		if err != nil {
			return err
		}
		host.AddService(svc)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := host.Start(ctx); err != nil {
		return fmt.Errorf("start host: %w", err)
	}

	var statusServer *runtime.StatusServer
	if cfg.StatusAddr != "" {
		exporter := metrics.NewExporter("create_memory")
		statusServer = runtime.NewStatusServer(cfg.StatusAddr, host, exporter, logger)
		statusServer.Start()
	}

	prompt := core.NewPrompt(promptText, trainingMode, nil, nil)
	host.Bus.Publish(bus.SubmitPrompt, prompt)

	go func() {
		<-ctx.Done()
		host.TriggerShutdown()
	}()
	host.WaitForShutdown(ctx)

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if statusServer != nil {
		if err := statusServer.Shutdown(stopCtx); err != nil {
			logger.Warn().Err(err).Msg("status_server_shutdown_error")
		}
	}
	host.Stop(stopCtx)

	return nil
}

func buildService(name string, host *runtime.Host, registry *plugins.Registry, recorder *plugins.Recorder, cfg config.Config, mirror *bus.KafkaMirror, logger zerolog.Logger) (runtime.Service, error) {
	switch name {
	case "retrieve":
		return retrieve.New(host.Bus, registry, core.DefaultRetrieveOptions(), logger), nil
	case "respond":
		return respond.New(host.Bus, registry, logger), nil
	case "codify":
		return codify.New(host.Bus, registry, logger), nil
	case "consolidate":
		return consolidate.New(host.Bus, registry, recorder, cfg.Profile, logger), nil
	case "storage":
		return storage.New(host.Bus, registry, mirror, logger), nil
	case "progress":
		return progress.New(host.Bus, logger), nil
	default:
		return nil, fmt.Errorf("unknown service %q in config.Services", name)
	}
}
