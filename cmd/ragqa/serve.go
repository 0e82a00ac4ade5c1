package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/WessleyAI/ragqa/engine/ingest"
	"github.com/WessleyAI/ragqa/engine/rpc"
	"github.com/WessleyAI/ragqa/engine/watch"
	"github.com/WessleyAI/ragqa/pkg/metrics"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var grpcAddr, adminAddr, watchDir, natsURL string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gRPC server, the admin API and the optional ingest consumers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadRuntime(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("grpc-addr") {
				cfg.GRPCAddr = grpcAddr
			}
			if flags.Changed("admin-addr") {
				cfg.AdminAddr = adminAddr
			}
			if flags.Changed("watch-dir") {
				cfg.Watch.Dir = watchDir
			}
			if flags.Changed("nats-url") {
				cfg.NATS.URL = natsURL
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
	cmd.Flags().StringVar(&grpcAddr, "grpc-addr", "", "gRPC listen address (default :50051)")
	cmd.Flags().StringVar(&adminAddr, "admin-addr", "", "admin HTTP listen address (default :8080)")
	cmd.Flags().StringVar(&watchDir, "watch-dir", "", "directory to watch for new record files")
	cmd.Flags().StringVar(&natsURL, "nats-url", "", "NATS server for the ingest consumer")
	return cmd
}

func newLimiter(cfg RPCConfig) *rate.Limiter {
	if cfg.RateLimit <= 0 {
		return nil
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = int(math.Ceil(cfg.RateLimit))
	}
	return rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
}

func serve(ctx context.Context, cfg Config, logger *slog.Logger) error {
	m := metrics.New()
	coord := newCoordinator(cfg, m, logger)
	pipeline := ingest.NewPipeline(ingest.Deps{Store: coord, Observer: m, Logger: logger})

	var nc *nats.Conn
	if cfg.NATS.URL != "" {
		var err error
		nc, err = nats.Connect(cfg.NATS.URL, nats.Name("ragqa"))
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		if _, err := pipeline.StartConsumer(nc); err != nil {
			nc.Close()
			return fmt.Errorf("nats consumer: %w", err)
		}
		logger.Info("nats ingest consumer started", "url", cfg.NATS.URL, "subject", ingest.IngestSubject)
	}

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		if nc != nil {
			nc.Close()
		}
		return fmt.Errorf("listen %s: %w", cfg.GRPCAddr, err)
	}

	grpcSrv := rpc.NewServer(rpc.NewService(coord, pipeline, logger), rpc.ServerOptions{
		Workers:  cfg.RPC.Workers,
		Limiter:  newLimiter(cfg.RPC),
		Observer: m,
		Logger:   logger,
	})
	admin := &http.Server{
		Addr:         cfg.AdminAddr,
		Handler:      adminHandler(coord, pipeline, m.Handler(), cfg.AdminToken, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	if err := coord.EnsureConnected(ctx); err != nil {
		logger.Warn("vector backend not reachable yet", "err", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		return grpcSrv.Serve(lis)
	})
	g.Go(func() error {
		logger.Info("admin server starting", "addr", cfg.AdminAddr)
		if err := admin.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if cfg.Watch.Dir != "" {
		w := watch.New(cfg.Watch.Dir, func(ctx context.Context, path string) {
			pipeline.IngestFile(ctx, path)
		}, watch.Options{Logger: logger})
		g.Go(func() error { return w.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")
		grpcSrv.GracefulStop()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return admin.Shutdown(shutCtx)
	})

	err = g.Wait()

	if nc != nil {
		if derr := nc.Drain(); derr != nil {
			logger.Warn("nats drain", "err", derr)
		}
	}
	shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := coord.Shutdown(shutCtx); serr != nil {
		logger.Warn("vector store shutdown", "err", serr)
	}
	return err
}
