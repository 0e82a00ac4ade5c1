// Package vectorstore coordinates access to the vector backend that holds the
// question/answer collection.
//
// A single Coordinator owns the backend connection and the collection handle.
// Every public operation first reconciles that state under one exclusive
// guard, so concurrent RPC handlers can share the instance. Lookups hold the
// guard only around the similarity search; bulk stores hold it for the whole
// embed, create, insert, index, load sequence.
package vectorstore

import (
	"context"
	"log/slog"
	"time"

	"github.com/WessleyAI/ragqa/engine/domain"
)

// Embedder turns text into fixed-width vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Dialer opens a Session to the vector backend. The context carries the dial
// deadline.
type Dialer interface {
	Dial(ctx context.Context) (Session, error)
}

// Session is one live connection to the vector backend.
type Session interface {
	CollectionExists(ctx context.Context, name string) (bool, error)
	CreateCollection(ctx context.Context, schema Schema) error
	Insert(ctx context.Context, name string, records []domain.QARecord) error
	BuildIndex(ctx context.Context, name string, spec IndexSpec) error
	Load(ctx context.Context, name string) error
	Release(ctx context.Context, name string) error
	Search(ctx context.Context, name string, vector []float32, limit int) ([]domain.SearchResult, error)
	ListCollections(ctx context.Context) ([]string, error)
	DropCollection(ctx context.Context, name string) error
	Close() error
}

// Schema describes the four-field QA collection: auto id, instruction,
// output, and a fixed-width embedding.
type Schema struct {
	Name              string
	Dimensions        int
	MaxInstructionLen int
	MaxOutputLen      int
}

// IndexSpec names the similarity index built after a bulk insert.
type IndexSpec struct {
	Field  string
	Metric string
	Type   string
}

// FlatL2 is the exhaustive L2 index over the embedding field.
var FlatL2 = IndexSpec{Field: domain.FieldEmbedding, Metric: "L2", Type: "FLAT"}

// Options configures a Coordinator. Zero values take the defaults, so a
// Threshold of 0 means 0.5, not exact match only.
type Options struct {
	Collection  string
	Dimensions  int
	Threshold   float32
	ChunkSize   int
	DialTimeout time.Duration
	Guard       Guard
	Observer    Observer
	Logger      *slog.Logger
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		Collection:  "qa_collection",
		Dimensions:  768,
		Threshold:   0.5,
		ChunkSize:   10,
		DialTimeout: 5 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Collection == "" {
		o.Collection = d.Collection
	}
	if o.Dimensions <= 0 {
		o.Dimensions = d.Dimensions
	}
	if o.Threshold <= 0 {
		o.Threshold = d.Threshold
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = d.ChunkSize
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = d.DialTimeout
	}
	if o.Guard == nil {
		o.Guard = &MutexGuard{}
	}
	if o.Observer == nil {
		o.Observer = nopObserver{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

func (o Options) schema() Schema {
	return Schema{
		Name:              o.Collection,
		Dimensions:        o.Dimensions,
		MaxInstructionLen: domain.MaxInstructionLen,
		MaxOutputLen:      domain.MaxOutputLen,
	}
}
