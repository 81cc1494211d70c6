// Package config loads engramic's runtime configuration: which profile to
// run (standard or mock), where the broker binds, which plugins back each
// (kind, usage) pair, and the service start order. Grounded on the teacher's
// internal/config loader: environment variables (optionally from a .env via
// godotenv) take precedence, a YAML file fills in the rest, and defaults are
// applied last.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Profile selects which plugin wiring the Host uses.
type Profile string

const (
	ProfileStandard Profile = "standard"
	ProfileMock     Profile = "mock"
)

// PluginBinding names the concrete plugin implementation backing one
// (kind, usage) slot, e.g. kind="llm" usage="gen_indices" -> name="gemini".
type PluginBinding struct {
	Kind  string `yaml:"kind"`
	Usage string `yaml:"usage"`
	Name  string `yaml:"name"`
}

// BrokerConfig configures the cross-process broker's bind addresses.
type BrokerConfig struct {
	PullAddr string `yaml:"pull_addr"`
	PubAddr  string `yaml:"pub_addr"`
}

// KafkaMirrorConfig configures Storage's optional outbound mirror of
// lifecycle events to Kafka. Disabled unless Enabled is true.
type KafkaMirrorConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// TelemetryConfig configures OpenTelemetry trace export for correlating a
// prompt's fan-out across retrieve/respond/codify/consolidate/storage
// (SPEC_FULL.md §B). Disabled unless Enabled and Endpoint are both set.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"`
}

// Config is the fully-resolved runtime configuration for a Host.
type Config struct {
	Profile        Profile           `yaml:"profile"`
	LogPath        string            `yaml:"log_path"`
	LogLevel       string            `yaml:"log_level"`
	LogPretty      bool              `yaml:"log_pretty"`
	StatusAddr     string            `yaml:"status_addr"`
	Broker         BrokerConfig      `yaml:"broker"`
	Services       []string          `yaml:"services"`
	Plugins        []PluginBinding   `yaml:"plugins"`
	Kafka          KafkaMirrorConfig `yaml:"kafka_mirror"`
	Telemetry      TelemetryConfig   `yaml:"telemetry"`
	MockDataPath   string            `yaml:"mock_data_path"`
	GeminiAPIKey   string            `yaml:"-"`
	AnthropicKey   string            `yaml:"-"`
	OpenAIKey      string            `yaml:"-"`
	PostgresDSN    string            `yaml:"-"`
	QdrantAddr     string            `yaml:"-"`
}

// DefaultServiceOrder matches spec.md §2's data flow: retrieve feeds
// respond, respond feeds codify, codify feeds consolidate, consolidate
// feeds storage.
func DefaultServiceOrder() []string {
	return []string{"retrieve", "respond", "codify", "consolidate", "storage", "progress"}
}

// Load reads configuration from an optional YAML file plus environment
// variables (optionally populated from a local .env via godotenv), and
// applies defaults for anything still unset.
func Load(yamlPath string) (Config, error) {
	_ = godotenv.Overload()

	cfg := Config{
		Profile:    ProfileStandard,
		LogLevel:   "info",
		StatusAddr: ":8088",
		Broker: BrokerConfig{
			PullAddr: "tcp://*:5556",
			PubAddr:  "tcp://127.0.0.1:5557",
		},
		Services:  DefaultServiceOrder(),
		Telemetry: TelemetryConfig{ServiceName: "engramic"},
	}

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("unmarshal config %s: %w", yamlPath, err)
			}
		case os.IsNotExist(err):
			// optional file; defaults and env vars still apply
		default:
			return Config{}, fmt.Errorf("read config %s: %w", yamlPath, err)
		}
	}

	if v := strings.TrimSpace(os.Getenv("ENGRAMIC_PROFILE")); v != "" {
		cfg.Profile = Profile(v)
	}
	if v := strings.TrimSpace(os.Getenv("ENGRAMIC_LOG_PATH")); v != "" {
		cfg.LogPath = v
	}
	if v := strings.TrimSpace(os.Getenv("ENGRAMIC_LOG_LEVEL")); v != "" {
		cfg.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv("ENGRAMIC_LOG_PRETTY")); v != "" {
		cfg.LogPretty = strings.EqualFold(v, "true") || v == "1"
	}
	if v := strings.TrimSpace(os.Getenv("ENGRAMIC_STATUS_ADDR")); v != "" {
		cfg.StatusAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("ENGRAMIC_OTEL_ENABLED")); v != "" {
		cfg.Telemetry.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := strings.TrimSpace(os.Getenv("ENGRAMIC_OTEL_ENDPOINT")); v != "" {
		cfg.Telemetry.Endpoint = v
	}
	if v := strings.TrimSpace(os.Getenv("ENGRAMIC_BROKER_PULL_ADDR")); v != "" {
		cfg.Broker.PullAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("ENGRAMIC_BROKER_PUB_ADDR")); v != "" {
		cfg.Broker.PubAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("ENGRAMIC_MOCK_DATA_PATH")); v != "" {
		cfg.MockDataPath = v
	}

	cfg.GeminiAPIKey = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	cfg.AnthropicKey = strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	cfg.OpenAIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	cfg.PostgresDSN = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.QdrantAddr = strings.TrimSpace(os.Getenv("QDRANT_ADDR"))

	if len(cfg.Services) == 0 {
		cfg.Services = DefaultServiceOrder()
	}
	if cfg.Profile != ProfileStandard && cfg.Profile != ProfileMock {
		return Config{}, fmt.Errorf("profile must be %q or %q (got %q)", ProfileStandard, ProfileMock, cfg.Profile)
	}
	if cfg.MockDataPath == "" {
		cfg.MockDataPath = "mock_data.db"
	}

	return cfg, nil
}

// PluginName returns the configured plugin implementation name for a
// (kind, usage) slot, or "" if unbound.
func (c Config) PluginName(kind, usage string) string {
	for _, p := range c.Plugins {
		if p.Kind == kind && p.Usage == usage {
			return p.Name
		}
	}
	return ""
}
