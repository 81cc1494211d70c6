package main

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/EricP-Engramic/engramic/internal/config"
	"github.com/EricP-Engramic/engramic/internal/plugins"
)

// llmUsages/embeddingUsages/vectorDBUsages/dbUsages enumerate every (kind, usage)
// binding create_memory's default pipeline needs, matching each service's
// own usage constants (spec.md §4.5's plugin bindings).
var (
	llmUsages       = []string{"gen_indices", "respond", "codify", "gen_lookup_indices", "conversation_direction"}
	embeddingUsages = []string{"gen_indices", "summary", "retrieve"}
	vectorDBUsages  = []string{"retrieve", "storage"}
	dbUsages        = []string{"storage"}
)

// newRecorder opens a bbolt-backed Recorder when mock profile is selected,
// matching spec.md §4.4's "mock profile replays/records via the Recorder"
// and the teacher's config-driven resource construction.
func newRecorder(cfg config.Config) (*plugins.Recorder, error) {
	if cfg.Profile != config.ProfileMock {
		return nil, nil
	}
	return plugins.OpenRecorder(cfg.MockDataPath)
}

// wireRegistry builds every plugin binding create_memory's default service
// list needs. In standard profile it constructs real adapters (Gemini by
// default, selectable per-usage via cfg.Plugins per spec.md §4.5); in mock
// profile every LLM, embedding and vector DB adapter is wrapped in the
// matching Mock* type, which replays recorded output and calls through to
// the real adapter only for calls with no recording, and no DB is bound.
func wireRegistry(ctx context.Context, cfg config.Config, recorder *plugins.Recorder) (*plugins.Registry, error) {
	registry := plugins.NewRegistry()

	for _, usage := range llmUsages {
		llm, err := buildLLM(ctx, cfg, usage)
		if err != nil {
			return nil, fmt.Errorf("build llm for usage %q: %w", usage, err)
		}
		if cfg.Profile == config.ProfileMock {
			llm = plugins.NewMockLLM(recorder, "create_memory."+usage, llm)
		}
		registry.BindLLM(usage, llm)
	}

	for _, usage := range embeddingUsages {
		embedding, err := buildEmbedding(ctx, cfg, usage)
		if err != nil {
			return nil, fmt.Errorf("build embedding for usage %q: %w", usage, err)
		}
		if cfg.Profile == config.ProfileMock {
			embedding = plugins.NewMockEmbedding(recorder, "create_memory."+usage, embedding)
		}
		registry.BindEmbedding(usage, embedding)
	}

	for _, usage := range vectorDBUsages {
		vectorDB, err := buildVectorDB(cfg)
		if err != nil {
			return nil, fmt.Errorf("build vector_db for usage %q: %w", usage, err)
		}
		if cfg.Profile == config.ProfileMock {
			vectorDB = plugins.NewMockVectorDB(recorder, "create_memory."+usage, vectorDB)
		}
		registry.BindVectorDB(usage, vectorDB)
	}

	if cfg.Profile != config.ProfileMock {
		for _, usage := range dbUsages {
			db := plugins.NewPostgresDB(cfg.PostgresDSN)
			if err := db.Connect(ctx); err != nil {
				return nil, fmt.Errorf("connect db for usage %q: %w", usage, err)
			}
			registry.BindDB(usage, db)
		}
	}

	return registry, nil
}

// buildLLM selects the LLM adapter bound to usage, defaulting to Gemini and
// falling back to Anthropic/OpenAI when cfg.Plugins names them explicitly.
func buildLLM(ctx context.Context, cfg config.Config, usage string) (plugins.LLM, error) {
	switch cfg.PluginName("llm", usage) {
	case "anthropic":
		return plugins.NewAnthropicLLM(cfg.AnthropicKey, ""), nil
	case "openai":
		return plugins.NewOpenAILLM(cfg.OpenAIKey, ""), nil
	default:
		return plugins.NewGeminiLLM(ctx, cfg.GeminiAPIKey, "")
	}
}

// buildEmbedding selects the Embedding adapter bound to usage, defaulting to
// Gemini and falling back to OpenAI when cfg.Plugins names it explicitly.
func buildEmbedding(ctx context.Context, cfg config.Config, usage string) (plugins.Embedding, error) {
	switch cfg.PluginName("embedding", usage) {
	case "openai":
		return plugins.NewOpenAIEmbedding(cfg.OpenAIKey, ""), nil
	default:
		return plugins.NewGeminiEmbedding(ctx, cfg.GeminiAPIKey, "")
	}
}

// qdrantDimensions is the embedding width create_memory's default Gemini
// embedding model produces (text-embedding-004), used to size new Qdrant
// collections on first use.
const qdrantDimensions = 768

func buildVectorDB(cfg config.Config) (plugins.VectorDB, error) {
	host, port := "localhost", 6334
	if cfg.QdrantAddr != "" {
		host, port = splitHostPort(cfg.QdrantAddr, port)
	}
	return plugins.NewQdrantVectorDB(host, port, qdrantDimensions)
}

func splitHostPort(addr string, defaultPort int) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, defaultPort
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, defaultPort
	}
	return host, port
}
