// Command ragqa serves prompt-to-answer retrieval over gRPC and provides the
// client and maintenance commands around it.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ragqa",
		Short: "Question/answer retrieval over a vector store",
		Long: `ragqa stores question/answer pairs as embeddings in Qdrant and answers
prompts with the closest stored answer.

Run "ragqa serve" for the gRPC server, "ragqa ask" and "ragqa ingest" as
clients, and "ragqa collections" for maintenance.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: json or text")

	root.AddCommand(newServeCmd(), newAskCmd(), newIngestCmd(), newCollectionsCmd())
	return root
}

// loadRuntime reads config and installs the default logger writing to w.
// Persistent flags win over file and environment.
func loadRuntime(w io.Writer) (Config, *slog.Logger, error) {
	cfg, err := loadConfig(cfgFile)
	if err != nil {
		return cfg, nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}
	logger := newLogger(w, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func newLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.ToLower(format) == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
