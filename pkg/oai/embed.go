// Package oai embeds text through any OpenAI-compatible embeddings endpoint.
package oai

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Defaults for text-embedding-3-small truncated to the collection width.
const (
	DefaultModel      = openai.SmallEmbedding3
	DefaultBatchSize  = 100
	DefaultDimensions = 768
)

// Config configures the client.
type Config struct {
	Model      string
	APIKey     string
	BaseURL    string // optional, for Azure or local gateways
	BatchSize  int
	Dimensions int
}

// Embedder wraps go-openai's embeddings call.
type Embedder struct {
	cfg    Config
	client *openai.Client
}

// New creates an Embedder.
func New(cfg Config) *Embedder {
	if cfg.Model == "" {
		cfg.Model = string(DefaultModel)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	return &Embedder{cfg: cfg, client: openai.NewClientWithConfig(clientCfg)}
}

// Embed returns the vector for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch embeds texts in requests of at most BatchSize inputs.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, len(texts))
	for i := 0; i < len(texts); i += e.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(i+e.cfg.BatchSize, len(texts))
		resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input:      texts[i:end],
			Model:      openai.EmbeddingModel(e.cfg.Model),
			Dimensions: e.cfg.Dimensions,
		})
		if err != nil {
			return nil, fmt.Errorf("oai: embed: %w", err)
		}
		if len(resp.Data) != end-i {
			return nil, fmt.Errorf("oai: embed: got %d embeddings for %d inputs", len(resp.Data), end-i)
		}
		for _, d := range resp.Data {
			if d.Index < 0 || d.Index >= end-i {
				return nil, fmt.Errorf("oai: embed: index %d out of range", d.Index)
			}
			out[i+d.Index] = d.Embedding
		}
	}
	return out, nil
}
