package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/WessleyAI/ragqa/engine/rpc"
	"github.com/WessleyAI/ragqa/engine/vectorstore"
)

// Config holds every setting of the server and the client commands.
// Precedence: defaults, then the YAML file, then environment, then flags.
type Config struct {
	GRPCAddr   string `yaml:"grpc_addr"`
	AdminAddr  string `yaml:"admin_addr"`
	AdminToken string `yaml:"admin_token"`
	LogLevel   string `yaml:"log_level"`
	LogFormat  string `yaml:"log_format"`

	Qdrant    QdrantConfig    `yaml:"qdrant"`
	Store     StoreConfig     `yaml:"store"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	RPC       RPCConfig       `yaml:"rpc"`
	NATS      NATSConfig      `yaml:"nats"`
	Watch     WatchConfig     `yaml:"watch"`
}

// QdrantConfig locates the vector backend.
type QdrantConfig struct {
	Addr   string `yaml:"addr"`
	APIKey string `yaml:"api_key"`
}

// StoreConfig tunes the coordinator.
type StoreConfig struct {
	Collection  string        `yaml:"collection"`
	Dimensions  int           `yaml:"dimensions"`
	Threshold   float64       `yaml:"threshold"`
	ChunkSize   int           `yaml:"chunk_size"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// EmbeddingConfig selects and configures the embedder.
type EmbeddingConfig struct {
	Provider      string        `yaml:"provider"` // ollama or openai
	Model         string        `yaml:"model"`
	OllamaURL     string        `yaml:"ollama_url"`
	OpenAIKey     string        `yaml:"openai_api_key"`
	OpenAIBaseURL string        `yaml:"openai_base_url"`
	BatchSize     int           `yaml:"batch_size"`
	FailThreshold int           `yaml:"breaker_fail_threshold"`
	OpenTimeout   time.Duration `yaml:"breaker_open_timeout"`
}

// RPCConfig bounds the gRPC server.
type RPCConfig struct {
	Workers   int     `yaml:"workers"`
	RateLimit float64 `yaml:"rate_limit"` // requests per second, 0 disables
	Burst     int     `yaml:"burst"`
}

// NATSConfig enables the NATS ingest consumer when URL is set.
type NATSConfig struct {
	URL string `yaml:"url"`
}

// WatchConfig enables the drop directory watcher when Dir is set.
type WatchConfig struct {
	Dir string `yaml:"dir"`
}

func defaultConfig() Config {
	store := vectorstore.DefaultOptions()
	return Config{
		GRPCAddr:  ":50051",
		AdminAddr: ":8080",
		LogLevel:  "info",
		LogFormat: "json",
		Qdrant:    QdrantConfig{Addr: "localhost:6334"},
		Store: StoreConfig{
			Collection:  store.Collection,
			Dimensions:  store.Dimensions,
			Threshold:   float64(store.Threshold),
			ChunkSize:   store.ChunkSize,
			DialTimeout: store.DialTimeout,
		},
		Embedding: EmbeddingConfig{
			Provider:  "ollama",
			OllamaURL: "http://localhost:11434",
		},
		RPC: RPCConfig{Workers: rpc.DefaultWorkers},
	}
}

// loadConfig applies the optional YAML file at path and the environment on
// top of the defaults. A missing file is an error only when path was given.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.validate()
}

func applyEnv(cfg *Config) error {
	cfg.GRPCAddr = envOr("RAGQA_GRPC_ADDR", cfg.GRPCAddr)
	cfg.AdminAddr = envOr("RAGQA_ADMIN_ADDR", cfg.AdminAddr)
	cfg.AdminToken = envOr("RAGQA_ADMIN_TOKEN", cfg.AdminToken)
	cfg.LogLevel = envOr("RAGQA_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = envOr("RAGQA_LOG_FORMAT", cfg.LogFormat)
	cfg.Qdrant.Addr = envOr("QDRANT_URL", cfg.Qdrant.Addr)
	cfg.Qdrant.APIKey = envOr("QDRANT_API_KEY", cfg.Qdrant.APIKey)
	cfg.Store.Collection = envOr("RAGQA_COLLECTION", cfg.Store.Collection)
	cfg.Embedding.Provider = envOr("RAGQA_EMBEDDER", cfg.Embedding.Provider)
	cfg.Embedding.Model = envOr("RAGQA_EMBED_MODEL", cfg.Embedding.Model)
	cfg.Embedding.OllamaURL = envOr("OLLAMA_URL", cfg.Embedding.OllamaURL)
	cfg.Embedding.OpenAIKey = envOr("OPENAI_API_KEY", cfg.Embedding.OpenAIKey)
	cfg.Embedding.OpenAIBaseURL = envOr("OPENAI_BASE_URL", cfg.Embedding.OpenAIBaseURL)
	cfg.NATS.URL = envOr("NATS_URL", cfg.NATS.URL)
	cfg.Watch.Dir = envOr("RAGQA_WATCH_DIR", cfg.Watch.Dir)

	var errs []error
	if v := os.Getenv("RAGQA_DIMENSIONS"); v != "" {
		n, err := strconv.Atoi(v)
		errs = append(errs, envErr("RAGQA_DIMENSIONS", err))
		cfg.Store.Dimensions = n
	}
	if v := os.Getenv("RAGQA_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 32)
		errs = append(errs, envErr("RAGQA_THRESHOLD", err))
		cfg.Store.Threshold = f
	}
	if v := os.Getenv("RAGQA_RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		errs = append(errs, envErr("RAGQA_RATE_LIMIT", err))
		cfg.RPC.RateLimit = f
	}
	return errors.Join(errs...)
}

func envErr(key string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("env %s: %w", key, err)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (c Config) validate() error {
	switch c.Embedding.Provider {
	case "ollama", "openai":
	default:
		return fmt.Errorf("config: unknown embedding provider %q", c.Embedding.Provider)
	}
	if c.Store.Dimensions <= 0 {
		return fmt.Errorf("config: store.dimensions must be positive, got %d", c.Store.Dimensions)
	}
	if c.Store.Threshold <= 0 {
		return fmt.Errorf("config: store.threshold must be positive, got %g", c.Store.Threshold)
	}
	return nil
}

func (c Config) storeOptions() vectorstore.Options {
	return vectorstore.Options{
		Collection:  c.Store.Collection,
		Dimensions:  c.Store.Dimensions,
		Threshold:   float32(c.Store.Threshold),
		ChunkSize:   c.Store.ChunkSize,
		DialTimeout: c.Store.DialTimeout,
	}
}
