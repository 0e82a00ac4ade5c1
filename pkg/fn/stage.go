package fn

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const tracerName = "ragqa/pkg/fn"

// Stage is one step of a pipeline.
type Stage[In, Out any] func(context.Context, In) Result[Out]

// Then runs second on the output of first, stopping at the first error.
func Then[A, B, C any](first Stage[A, B], second Stage[B, C]) Stage[A, C] {
	return func(ctx context.Context, a A) Result[C] {
		r := first(ctx, a)
		if r.IsErr() {
			return Err[C](r.err)
		}
		return second(ctx, r.val)
	}
}

// Lift adapts a plain (value, error) function into a Stage.
func Lift[In, Out any](f func(context.Context, In) (Out, error)) Stage[In, Out] {
	return func(ctx context.Context, in In) Result[Out] {
		return FromPair(f(ctx, in))
	}
}

// Traced wraps a stage in a span named name. Errors are recorded on the span.
func Traced[In, Out any](name string, stage Stage[In, Out], attrs ...attribute.KeyValue) Stage[In, Out] {
	return func(ctx context.Context, in In) Result[Out] {
		ctx, span := otel.Tracer(tracerName).Start(ctx, name)
		defer span.End()
		span.SetAttributes(attrs...)
		r := stage(ctx, in)
		if r.IsErr() {
			span.RecordError(r.err)
			span.SetStatus(codes.Error, r.err.Error())
		}
		return r
	}
}

// Batch runs stage over every item with at most workers in flight. Output
// order matches input order. workers <= 0 means one goroutine per item.
func Batch[T, U any](workers int, stage Stage[T, U]) func(context.Context, []T) []Result[U] {
	return func(ctx context.Context, items []T) []Result[U] {
		out := make([]Result[U], len(items))
		if len(items) == 0 {
			return out
		}
		n := workers
		if n <= 0 || n > len(items) {
			n = len(items)
		}
		sem := make(chan struct{}, n)
		var wg sync.WaitGroup
		for i, item := range items {
			wg.Add(1)
			sem <- struct{}{}
			go func(i int, item T) {
				defer func() { <-sem; wg.Done() }()
				out[i] = stage(ctx, item)
			}(i, item)
		}
		wg.Wait()
		return out
	}
}
