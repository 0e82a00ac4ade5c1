// Package ingest runs question/answer files through classification,
// validation and a bulk store, either in-process or as a NATS request/reply
// consumer.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/attribute"

	"github.com/WessleyAI/ragqa/engine/classify"
	"github.com/WessleyAI/ragqa/engine/domain"
	"github.com/WessleyAI/ragqa/pkg/fn"
	"github.com/WessleyAI/ragqa/pkg/natsutil"
)

const (
	// IngestSubject receives {"path": ...} requests.
	IngestSubject = "ragqa.ingest"
	// DoneSubject carries a Report after every file handled by the consumer.
	DoneSubject = "ragqa.ingest.done"
	// QueueGroup spreads requests across server replicas.
	QueueGroup = "ragqa-ingest"
	// DefaultWorkers bounds IngestPaths concurrency.
	DefaultWorkers = 4
	// DefaultTimeout bounds a single consumer request.
	DefaultTimeout = 5 * time.Minute
)

// Storer is the write side of the vector store coordinator.
type Storer interface {
	BulkStore(ctx context.Context, records []domain.QARecord) error
}

// Observer receives one call per ingested file.
type Observer interface {
	ObserveIngest(outcome string, elapsed time.Duration)
}

// Deps holds the collaborators of a Pipeline. Classify defaults to
// classify.Classify.
type Deps struct {
	Classify func(path string) (classify.Document, error)
	Store    Storer
	Observer Observer
	Logger   *slog.Logger
	Workers  int
	Timeout  time.Duration
}

// Request is the NATS ingest request body.
type Request struct {
	Path string `json:"path"`
}

type storedDoc struct {
	format  string
	records int
}

type validDoc struct {
	format  string
	records []domain.QARecord
}

// Pipeline is the classify → validate → store chain.
type Pipeline struct {
	deps Deps
	log  *slog.Logger
	run  fn.Stage[string, storedDoc]
}

// NewPipeline wires the stages.
func NewPipeline(deps Deps) *Pipeline {
	if deps.Classify == nil {
		deps.Classify = classify.Classify
	}
	if deps.Workers <= 0 {
		deps.Workers = DefaultWorkers
	}
	if deps.Timeout <= 0 {
		deps.Timeout = DefaultTimeout
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	p := &Pipeline{deps: deps, log: log}
	p.run = fn.Then(
		fn.Traced("ingest.classify", fn.Lift(p.classifyFile)),
		fn.Then(
			fn.Traced("ingest.validate", fn.Lift(validate)),
			fn.Traced("ingest.store", fn.Lift(p.store)),
		),
	)
	return p
}

func (p *Pipeline) classifyFile(_ context.Context, path string) (classify.Document, error) {
	doc, err := p.deps.Classify(path)
	if err != nil {
		return doc, &FormatError{Format: doc.Format, Err: err}
	}
	if doc.Kind != classify.Structured {
		return doc, &FormatError{Format: doc.Format}
	}
	return doc, nil
}

func validate(_ context.Context, doc classify.Document) (validDoc, error) {
	if err := domain.ValidateBatch(doc.Records); err != nil {
		return validDoc{format: doc.Format}, err
	}
	return validDoc{format: doc.Format, records: doc.Records}, nil
}

func (p *Pipeline) store(ctx context.Context, doc validDoc) (storedDoc, error) {
	if err := p.deps.Store.BulkStore(ctx, doc.records); err != nil {
		return storedDoc{format: doc.format}, fmt.Errorf("ingest: store: %w", err)
	}
	return storedDoc{format: doc.format, records: len(doc.records)}, nil
}

// IngestFile classifies path and stores its records. Every failure is
// reported in the Report rather than returned.
func (p *Pipeline) IngestFile(ctx context.Context, path string) Report {
	start := time.Now()
	stored, err := p.run(ctx, path).Unwrap()
	rep := reportFor(path, stored, err)

	if p.deps.Observer != nil {
		p.deps.Observer.ObserveIngest(rep.Outcome.String(), time.Since(start))
	}
	switch rep.Outcome {
	case Stored:
		p.log.Info("ingest: stored", "path", path, "format", rep.Format, "records", rep.Records)
	case FormatMismatch:
		p.log.Warn("ingest: format mismatch", "path", path, "format", rep.Format, "error", err)
	default:
		p.log.Error("ingest: failed", "path", path, "error", err)
	}
	return rep
}

// IngestPaths ingests every path with bounded concurrency. Reports follow
// input order.
func (p *Pipeline) IngestPaths(ctx context.Context, paths []string) []Report {
	one := func(ctx context.Context, path string) fn.Result[Report] {
		return fn.Ok(p.IngestFile(ctx, path))
	}
	batch := fn.Batch(p.deps.Workers, fn.Traced("ingest.file", one, attribute.Int("ingest.batch", len(paths))))
	return fn.Collect(batch(ctx, paths)).UnwrapOr(nil)
}

// StartConsumer answers ingest requests on IngestSubject and publishes each
// Report on DoneSubject.
func (p *Pipeline) StartConsumer(nc *nats.Conn) (*nats.Subscription, error) {
	return natsutil.Reply(nc, IngestSubject, QueueGroup, func(ctx context.Context, req Request) (Report, error) {
		return p.handleRequest(ctx, nc, req)
	})
}

func (p *Pipeline) handleRequest(ctx context.Context, nc *nats.Conn, req Request) (Report, error) {
	path := strings.TrimSpace(req.Path)
	if path == "" {
		return Report{}, fmt.Errorf("ingest: %w: path", domain.ErrMissingField)
	}
	ctx, cancel := context.WithTimeout(ctx, p.deps.Timeout)
	defer cancel()

	rep := p.IngestFile(ctx, path)
	if nc != nil {
		if err := natsutil.Publish(ctx, nc, DoneSubject, rep); err != nil {
			p.log.Warn("ingest: publish done event", "path", path, "error", err)
		}
	}
	return rep, nil
}

// Submit asks a remote consumer to ingest path and waits for its Report.
func Submit(ctx context.Context, nc *nats.Conn, path string) (Report, error) {
	return natsutil.Request[Request, Report](ctx, nc, IngestSubject, Request{Path: path})
}
