package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/WessleyAI/ragqa/engine/domain"
	"github.com/WessleyAI/ragqa/pkg/fn"
)

var tracer = otel.Tracer("ragqa/engine/vectorstore")

// HandleState is the lifecycle of the collection handle.
type HandleState int32

const (
	// HandleUninitialized: no handle, or the collection does not exist.
	HandleUninitialized HandleState = iota
	// HandleReady: the collection exists and is loaded.
	HandleReady
	// HandleStale: the collection vanished under us or a write failed midway.
	HandleStale
)

func (s HandleState) String() string {
	switch s {
	case HandleUninitialized:
		return "uninitialized"
	case HandleReady:
		return "ready"
	case HandleStale:
		return "stale"
	default:
		return "unknown"
	}
}

// Status is a point-in-time view for health reporting.
type Status struct {
	Connected  bool   `json:"connected"`
	Handle     string `json:"handle"`
	Collection string `json:"collection"`
}

// Coordinator owns the backend session and the collection handle.
type Coordinator struct {
	dialer   Dialer
	embedder Embedder
	opts     Options
	guard    Guard
	obs      Observer
	logger   *slog.Logger

	// connected and handle are written only under guard but read lock-free.
	connected atomic.Bool
	handle    atomic.Int32

	session Session // guarded
}

// New creates a Coordinator. It performs no I/O; the first operation dials.
func New(dialer Dialer, embedder Embedder, opts Options) *Coordinator {
	opts = opts.withDefaults()
	return &Coordinator{
		dialer:   dialer,
		embedder: embedder,
		opts:     opts,
		guard:    opts.Guard,
		obs:      opts.Observer,
		logger:   opts.Logger.With("component", "vectorstore", "collection", opts.Collection),
	}
}

func (c *Coordinator) state() HandleState { return HandleState(c.handle.Load()) }
func (c *Coordinator) setState(s HandleState) { c.handle.Store(int32(s)) }

// WithExclusiveAccess runs fn under the coordinator's guard.
func (c *Coordinator) WithExclusiveAccess(fn func() error) error {
	return c.guard.WithExclusiveAccess(fn)
}

// Status reports connection and handle state without taking the guard.
func (c *Coordinator) Status() Status {
	return Status{
		Connected:  c.connected.Load(),
		Handle:     c.state().String(),
		Collection: c.opts.Collection,
	}
}

// EnsureConnected dials the backend if no session is open. Concurrent callers
// share a single dial. A failed dial leaves the coordinator disconnected and is
// returned; there is no retry.
func (c *Coordinator) EnsureConnected(ctx context.Context) error {
	if c.connected.Load() {
		return nil
	}
	return c.guard.WithExclusiveAccess(func() error {
		return c.connectLocked(ctx)
	})
}

func (c *Coordinator) connectLocked(ctx context.Context) error {
	if c.connected.Load() {
		return nil
	}
	dctx, cancel := context.WithTimeout(ctx, c.opts.DialTimeout)
	defer cancel()

	start := time.Now()
	sess, err := c.dialer.Dial(dctx)
	c.obs.ObserveDial(err, time.Since(start))
	if err != nil {
		c.logger.Warn("vector backend dial failed", "timeout", c.opts.DialTimeout, "err", err)
		return fmt.Errorf("%w: %w", domain.ErrNotConnected, err)
	}
	c.session = sess
	c.connected.Store(true)
	c.logger.Info("vector backend connected", "elapsed", time.Since(start))
	return nil
}

// reconcileLocked brings connection and handle up to date. It runs at the top
// of every public operation. On return the handle is either ready or
// uninitialized (collection absent).
func (c *Coordinator) reconcileLocked(ctx context.Context) error {
	if err := c.connectLocked(ctx); err != nil {
		return err
	}
	if c.state() == HandleReady {
		return nil
	}
	exists, err := c.session.CollectionExists(ctx, c.opts.Collection)
	if err != nil {
		return fmt.Errorf("vectorstore: check collection: %w", err)
	}
	if !exists {
		c.setState(HandleUninitialized)
		return nil
	}
	if err := c.session.Load(ctx, c.opts.Collection); err != nil {
		return fmt.Errorf("vectorstore: load collection: %w", err)
	}
	c.setState(HandleReady)
	c.logger.Debug("collection handle ready")
	return nil
}

// Lookup returns the stored answer whose instruction is nearest to prompt,
// if its L2 distance is within the threshold. It never returns an error:
// failures come back as an InternalError result and are logged here.
func (c *Coordinator) Lookup(ctx context.Context, prompt string) (res domain.LookupResult) {
	ctx, span := tracer.Start(ctx, "vectorstore.Lookup")
	start := time.Now()
	defer func() {
		span.SetAttributes(attribute.String("lookup.kind", res.Kind.String()))
		if res.Err != nil {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, res.Err.Error())
			c.logger.Warn("lookup failed", "err", res.Err)
		}
		span.End()
		c.obs.ObserveLookup(res.Kind, time.Since(start))
	}()

	if strings.TrimSpace(prompt) == "" {
		return domain.Failed(domain.ErrEmptyPrompt)
	}

	if !c.connected.Load() || c.state() != HandleReady {
		if err := c.guard.WithExclusiveAccess(func() error { return c.reconcileLocked(ctx) }); err != nil {
			return domain.Failed(err)
		}
		if c.state() != HandleReady {
			c.logger.Debug("lookup on absent collection")
			return domain.NotFound()
		}
	}

	vec, err := c.embedder.Embed(ctx, prompt)
	if err != nil {
		return domain.Failed(fmt.Errorf("vectorstore: embed prompt: %w", err))
	}
	if len(vec) != c.opts.Dimensions {
		return domain.Failed(fmt.Errorf("vectorstore: embed prompt: got %d dims, want %d: %w",
			len(vec), c.opts.Dimensions, domain.ErrDimensionMismatch))
	}

	var hits []domain.SearchResult
	err = c.guard.WithExclusiveAccess(func() error {
		if c.session == nil || c.state() != HandleReady {
			return domain.ErrNotConnected
		}
		var serr error
		hits, serr = c.session.Search(ctx, c.opts.Collection, vec, 1)
		if errors.Is(serr, domain.ErrCollectionNotFound) {
			c.setState(HandleStale)
		}
		return serr
	})
	switch {
	case errors.Is(err, domain.ErrCollectionNotFound):
		c.logger.Info("collection disappeared, handle marked stale")
		return domain.NotFound()
	case err != nil:
		return domain.Failed(fmt.Errorf("vectorstore: search: %w", err))
	case len(hits) == 0:
		return domain.NotFound()
	}

	best := hits[0]
	span.SetAttributes(attribute.Float64("lookup.distance", float64(best.Distance)))
	if best.Distance > c.opts.Threshold {
		c.logger.Debug("nearest match over threshold", "distance", best.Distance, "threshold", c.opts.Threshold)
		return domain.NotFound()
	}
	return domain.Found(best.Output, best.Distance)
}

// BulkStore embeds and inserts records, then rebuilds the flat L2 index and
// reloads the collection. The batch is validated before the guard is taken;
// everything else runs under it. A failure after some chunks were inserted
// leaves those chunks in the backend and marks the handle stale.
func (c *Coordinator) BulkStore(ctx context.Context, records []domain.QARecord) (err error) {
	ctx, span := tracer.Start(ctx, "vectorstore.BulkStore")
	span.SetAttributes(attribute.Int("store.records", len(records)))
	start := time.Now()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.logger.Error("bulk store failed", "records", len(records), "err", err)
		}
		span.End()
		c.obs.ObserveStore(len(records), err, time.Since(start))
	}()

	if err := domain.ValidateBatch(records); err != nil {
		return fmt.Errorf("vectorstore: bulk store: %w", err)
	}
	return c.guard.WithExclusiveAccess(func() error {
		return c.storeLocked(ctx, records)
	})
}

func (c *Coordinator) storeLocked(ctx context.Context, records []domain.QARecord) (err error) {
	if err := c.connectLocked(ctx); err != nil {
		return err
	}
	defer func() {
		if err != nil {
			c.setState(HandleStale)
		}
	}()

	instructions := fn.Map(records, func(r domain.QARecord) string { return r.Instruction })
	vectors, err := c.embedder.EmbedBatch(ctx, instructions)
	if err != nil {
		return fmt.Errorf("vectorstore: embed batch: %w", err)
	}
	if len(vectors) != len(records) {
		return fmt.Errorf("vectorstore: embed batch: got %d vectors for %d records", len(vectors), len(records))
	}

	batch := make([]domain.QARecord, len(records))
	for i, r := range records {
		if len(vectors[i]) != c.opts.Dimensions {
			return fmt.Errorf("vectorstore: record %d: got %d dims, want %d: %w",
				i, len(vectors[i]), c.opts.Dimensions, domain.ErrDimensionMismatch)
		}
		batch[i] = domain.QARecord{Instruction: r.Instruction, Output: r.Output, Embedding: vectors[i]}
	}

	name := c.opts.Collection
	exists, err := c.session.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("vectorstore: check collection: %w", err)
	}
	if exists {
		c.logger.Info("reusing existing collection")
	} else {
		if err := c.session.CreateCollection(ctx, c.opts.schema()); err != nil {
			return fmt.Errorf("vectorstore: create collection: %w", err)
		}
		c.logger.Info("created collection", "dimensions", c.opts.Dimensions)
	}

	chunks := fn.Chunk(batch, c.opts.ChunkSize)
	for i, chunk := range chunks {
		if err := c.session.Insert(ctx, name, chunk); err != nil {
			return fmt.Errorf("vectorstore: insert chunk %d/%d: %w", i+1, len(chunks), err)
		}
	}

	if err := c.session.BuildIndex(ctx, name, FlatL2); err != nil {
		return fmt.Errorf("vectorstore: build index: %w", err)
	}
	if err := c.session.Load(ctx, name); err != nil {
		return fmt.Errorf("vectorstore: load collection: %w", err)
	}
	c.setState(HandleReady)
	c.logger.Info("bulk store complete", "records", len(batch), "chunks", len(chunks))
	return nil
}

// Shutdown releases the loaded collection and closes the session. Calling it
// again, or on a coordinator that never connected, is a no-op.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	return c.guard.WithExclusiveAccess(func() error {
		if c.session == nil {
			c.setState(HandleUninitialized)
			c.connected.Store(false)
			return nil
		}
		var errs []error
		if c.state() == HandleReady {
			if err := c.session.Release(ctx, c.opts.Collection); err != nil {
				errs = append(errs, fmt.Errorf("vectorstore: release: %w", err))
			}
		}
		c.setState(HandleUninitialized)
		if err := c.session.Close(); err != nil {
			errs = append(errs, fmt.Errorf("vectorstore: close: %w", err))
		}
		c.session = nil
		c.connected.Store(false)
		c.logger.Info("vector backend disconnected")
		return errors.Join(errs...)
	})
}

// Collections lists every collection on the backend.
func (c *Coordinator) Collections(ctx context.Context) ([]string, error) {
	var names []string
	err := c.guard.WithExclusiveAccess(func() error {
		if err := c.connectLocked(ctx); err != nil {
			return err
		}
		var lerr error
		names, lerr = c.session.ListCollections(ctx)
		return lerr
	})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: list collections: %w", err)
	}
	return names, nil
}

// DropCollections drops every collection on the backend and resets the handle.
func (c *Coordinator) DropCollections(ctx context.Context) error {
	return c.guard.WithExclusiveAccess(func() error {
		if err := c.connectLocked(ctx); err != nil {
			return err
		}
		names, err := c.session.ListCollections(ctx)
		if err != nil {
			return fmt.Errorf("vectorstore: list collections: %w", err)
		}
		c.setState(HandleUninitialized)
		for _, name := range names {
			if err := c.session.DropCollection(ctx, name); err != nil {
				return fmt.Errorf("vectorstore: drop %s: %w", name, err)
			}
			c.logger.Info("dropped collection", "name", name)
		}
		return nil
	})
}
