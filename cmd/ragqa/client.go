package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/WessleyAI/ragqa/engine/ingest"
	"github.com/WessleyAI/ragqa/engine/rpc"
)

const defaultClientTimeout = 30 * time.Second

func serverAddr(flag string) string {
	if flag != "" {
		return flag
	}
	return envOr("RAGQA_SERVER", rpc.DefaultAddr)
}

func newAskCmd() *cobra.Command {
	var addr string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "ask <prompt>",
		Short: "Ask the server for the stored answer closest to a prompt",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			c, err := rpc.Dial(serverAddr(addr))
			if err != nil {
				return err
			}
			defer c.Close()
			return runAsk(ctx, c, strings.Join(args, " "), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "server address (default $RAGQA_SERVER or localhost:50051)")
	cmd.Flags().DurationVar(&timeout, "timeout", defaultClientTimeout, "request timeout")
	return cmd
}

func runAsk(ctx context.Context, c *rpc.Client, prompt string, out io.Writer) error {
	answer, err := c.Ask(ctx, prompt)
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}
	fmt.Fprintln(out, answer)
	return nil
}

func newIngestCmd() *cobra.Command {
	var (
		addr    string
		local   bool
		useNATS bool
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Load question/answer files (JSON or XLSX) into the store",
		Long: `Load question/answer files into the store.

By default each path is sent to the server, which reads it from its own
filesystem. --nats submits the paths to the NATS ingest consumer instead, and
--local runs the whole pipeline in this process against the configured
vector backend.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if local && useNATS {
				return errors.New("--local and --nats are mutually exclusive")
			}
			paths, err := absPaths(args)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			out := cmd.OutOrStdout()

			switch {
			case local:
				cfg, logger, err := loadRuntime(cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				coord := newCoordinator(cfg, nil, logger)
				defer coord.Shutdown(context.Background())
				return runIngestLocal(ctx, ingest.NewPipeline(ingest.Deps{Store: coord, Logger: logger}), paths, out)
			case useNATS:
				cfg, _, err := loadRuntime(cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				url := cfg.NATS.URL
				if url == "" {
					url = nats.DefaultURL
				}
				nc, err := nats.Connect(url, nats.Name("ragqa-cli"))
				if err != nil {
					return fmt.Errorf("nats connect: %w", err)
				}
				defer nc.Close()
				return runIngestNATS(ctx, nc, paths, out)
			default:
				c, err := rpc.Dial(serverAddr(addr))
				if err != nil {
					return err
				}
				defer c.Close()
				return runIngestRPC(ctx, c, paths, out)
			}
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "server address (default $RAGQA_SERVER or localhost:50051)")
	cmd.Flags().BoolVar(&local, "local", false, "run the pipeline in-process")
	cmd.Flags().BoolVar(&useNATS, "nats", false, "submit through the NATS ingest consumer")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "overall timeout")
	return cmd
}

func absPaths(args []string) ([]string, error) {
	out := make([]string, len(args))
	for i, a := range args {
		p, err := filepath.Abs(a)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", a, err)
		}
		out[i] = p
	}
	return out, nil
}

func runIngestRPC(ctx context.Context, c *rpc.Client, paths []string, out io.Writer) error {
	var failed int
	for _, p := range paths {
		answer, err := c.Update(ctx, p)
		if err != nil {
			return fmt.Errorf("ingest %s: %w", p, err)
		}
		if answer != rpc.AnswerStored {
			failed++
		}
		fmt.Fprintf(out, "%s: %s\n", p, answer)
	}
	return failedErr(failed, len(paths))
}

func runIngestNATS(ctx context.Context, nc *nats.Conn, paths []string, out io.Writer) error {
	var failed int
	for _, p := range paths {
		rep, err := ingest.Submit(ctx, nc, p)
		if err != nil {
			return fmt.Errorf("ingest %s: %w", p, err)
		}
		printReport(out, rep)
		if rep.Outcome != ingest.Stored {
			failed++
		}
	}
	return failedErr(failed, len(paths))
}

func runIngestLocal(ctx context.Context, p *ingest.Pipeline, paths []string, out io.Writer) error {
	var failed int
	for _, rep := range p.IngestPaths(ctx, paths) {
		printReport(out, rep)
		if rep.Outcome != ingest.Stored {
			failed++
		}
	}
	return failedErr(failed, len(paths))
}

func printReport(out io.Writer, rep ingest.Report) {
	if rep.Outcome == ingest.Stored {
		fmt.Fprintf(out, "%s: %s (%d records)\n", rep.Path, rep.Outcome, rep.Records)
		return
	}
	fmt.Fprintf(out, "%s: %s: %s\n", rep.Path, rep.Outcome, rep.Error)
}

func failedErr(failed, total int) error {
	if failed == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d files not stored", failed, total)
}

func newCollectionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collections",
		Short: "Inspect or drop collections on the vector backend",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List collections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadRuntime(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			coord := newCoordinator(cfg, nil, logger)
			defer coord.Shutdown(context.Background())
			return runListCollections(cmd.Context(), coord, cmd.OutOrStdout())
		},
	}

	var yes bool
	drop := &cobra.Command{
		Use:   "drop",
		Short: "Drop every collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("refusing to drop collections without --yes")
			}
			cfg, logger, err := loadRuntime(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			coord := newCoordinator(cfg, nil, logger)
			defer coord.Shutdown(context.Background())
			if err := coord.DropCollections(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "dropped")
			return nil
		},
	}
	drop.Flags().BoolVar(&yes, "yes", false, "confirm dropping every collection")

	cmd.AddCommand(list, drop)
	return cmd
}

func runListCollections(ctx context.Context, store backend, out io.Writer) error {
	names, err := store.Collections(ctx)
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Fprintln(out, n)
	}
	return nil
}
