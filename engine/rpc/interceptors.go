package rpc

import (
	"context"
	"log/slog"
	"path"
	"runtime/debug"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Observer records one call per finished RPC.
type Observer interface {
	ObserveRPC(method, code string, elapsed time.Duration)
}

// RecoverUnary turns a handler panic into codes.Internal.
func RecoverUnary(log *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("rpc: panic recovered", "method", info.FullMethod, "panic", r, "stack", string(debug.Stack()))
				resp, err = nil, status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}

// AccessLogUnary logs every call and reports it to obs, which may be nil.
func AccessLogUnary(log *slog.Logger, obs Observer) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		elapsed := time.Since(start)
		code := status.Code(err)
		method := path.Base(info.FullMethod)

		level := slog.LevelInfo
		if code != codes.OK {
			level = slog.LevelWarn
		}
		log.Log(ctx, level, "rpc request", "method", method, "code", code.String(), "duration", elapsed)
		if obs != nil {
			obs.ObserveRPC(method, code.String(), elapsed)
		}
		return resp, err
	}
}

// RateLimitUnary rejects calls beyond the limiter's budget with
// codes.ResourceExhausted.
func RateLimitUnary(limiter *rate.Limiter) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !limiter.Allow() {
			return nil, status.Errorf(codes.ResourceExhausted, "rate limit exceeded for %s", path.Base(info.FullMethod))
		}
		return handler(ctx, req)
	}
}
