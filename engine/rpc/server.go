package rpc

import (
	"log/slog"

	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// DefaultWorkers matches the size of the request worker pool.
const DefaultWorkers = 10

// ServerOptions configures NewServer. A nil Limiter disables rate limiting.
type ServerOptions struct {
	Workers  int
	Limiter  *rate.Limiter
	Observer Observer
	Logger   *slog.Logger
}

// Server is a grpc.Server with the DataManagement, health and reflection
// services registered.
type Server struct {
	*grpc.Server
	health *health.Server
}

// NewServer builds the gRPC server around svc.
func NewServer(svc DataManagementServer, opts ServerOptions) *Server {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	chain := []grpc.UnaryServerInterceptor{AccessLogUnary(log, opts.Observer), RecoverUnary(log)}
	if opts.Limiter != nil {
		chain = append(chain, RateLimitUnary(opts.Limiter))
	}

	gs := grpc.NewServer(
		grpc.NumStreamWorkers(uint32(workers)),
		grpc.ChainUnaryInterceptor(chain...),
	)
	gs.RegisterService(&ServiceDesc, svc)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(gs, hs)
	reflection.Register(gs)

	return &Server{Server: gs, health: hs}
}

// GracefulStop marks the service not serving, then drains in-flight calls.
func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.Server.GracefulStop()
}

// Stop marks the service not serving and closes every connection.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.Server.Stop()
}
