package semantic

import (
	"context"
	"fmt"
	"log/slog"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/WessleyAI/ragqa/engine/vectorstore"
)

// Dialer opens Qdrant sessions over gRPC.
type Dialer struct {
	Addr   string // host:port of the gRPC endpoint, e.g. localhost:6334
	APIKey string
	Logger *slog.Logger
}

var _ vectorstore.Dialer = (*Dialer)(nil)

// Dial connects and health-checks Qdrant. The context deadline bounds the
// health check, which is the first real round-trip.
func (d *Dialer) Dial(ctx context.Context) (vectorstore.Session, error) {
	opts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	if d.APIKey != "" {
		opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(d.APIKey)))
	}
	conn, err := grpc.NewClient(d.Addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", d.Addr, err)
	}

	reply, err := pb.NewQdrantClient(conn).HealthCheck(ctx, &pb.HealthCheckRequest{})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("semantic: health check %s: %w", d.Addr, err)
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("qdrant reachable", "addr", d.Addr, "version", reply.GetVersion())
	return newStore(conn), nil
}

func apiKeyInterceptor(key string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", key)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}
