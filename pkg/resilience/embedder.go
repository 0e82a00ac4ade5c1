package resilience

import (
	"context"
	"fmt"
)

// Embedder matches vectorstore.Embedder.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// BreakerEmbedder fails fast while the embedding backend is down instead of
// letting every lookup wait on it.
type BreakerEmbedder struct {
	next    Embedder
	breaker *Breaker
}

// NewBreakerEmbedder wraps next with b.
func NewBreakerEmbedder(next Embedder, b *Breaker) *BreakerEmbedder {
	return &BreakerEmbedder{next: next, breaker: b}
}

func (e *BreakerEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := Do(e.breaker, ctx, func(ctx context.Context) ([]float32, error) {
		return e.next.Embed(ctx, text)
	})
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	return v, nil
}

func (e *BreakerEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	v, err := Do(e.breaker, ctx, func(ctx context.Context) ([][]float32, error) {
		return e.next.EmbedBatch(ctx, texts)
	})
	if err != nil {
		return nil, fmt.Errorf("embed batch: %w", err)
	}
	return v, nil
}

// State exposes the breaker state for health reporting.
func (e *BreakerEmbedder) State() State { return e.breaker.State() }
