package main

import (
	"log/slog"

	"github.com/WessleyAI/ragqa/engine/semantic"
	"github.com/WessleyAI/ragqa/engine/vectorstore"
	"github.com/WessleyAI/ragqa/pkg/metrics"
	"github.com/WessleyAI/ragqa/pkg/oai"
	"github.com/WessleyAI/ragqa/pkg/ollama"
	"github.com/WessleyAI/ragqa/pkg/resilience"
)

// newEmbedder builds the configured embedder behind a circuit breaker. m may
// be nil.
func newEmbedder(cfg Config, m *metrics.Metrics, log *slog.Logger) *resilience.BreakerEmbedder {
	var next resilience.Embedder
	switch cfg.Embedding.Provider {
	case "openai":
		next = oai.New(oai.Config{
			Model:      cfg.Embedding.Model,
			APIKey:     cfg.Embedding.OpenAIKey,
			BaseURL:    cfg.Embedding.OpenAIBaseURL,
			BatchSize:  cfg.Embedding.BatchSize,
			Dimensions: cfg.Store.Dimensions,
		})
	default:
		next = ollama.NewEmbedClient(cfg.Embedding.OllamaURL, cfg.Embedding.Model)
	}

	breaker := resilience.NewBreaker(resilience.BreakerOpts{
		FailThreshold: cfg.Embedding.FailThreshold,
		Timeout:       cfg.Embedding.OpenTimeout,
		OnStateChange: func(from, to resilience.State) {
			log.Warn("embedder breaker state change", "from", from.String(), "to", to.String())
			if m != nil {
				m.SetBreakerState(int(to))
			}
		},
	})
	return resilience.NewBreakerEmbedder(next, breaker)
}

// newCoordinator wires Qdrant and the embedder into a coordinator. No
// connection is made until first use.
func newCoordinator(cfg Config, m *metrics.Metrics, log *slog.Logger) *vectorstore.Coordinator {
	opts := cfg.storeOptions()
	opts.Logger = log
	if m != nil {
		opts.Observer = m
	}
	dialer := &semantic.Dialer{Addr: cfg.Qdrant.Addr, APIKey: cfg.Qdrant.APIKey, Logger: log}
	return vectorstore.New(dialer, newEmbedder(cfg, m, log), opts)
}
