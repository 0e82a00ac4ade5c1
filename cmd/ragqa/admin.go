package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/WessleyAI/ragqa/engine/ingest"
	"github.com/WessleyAI/ragqa/engine/vectorstore"
	"github.com/WessleyAI/ragqa/pkg/mid"
)

// backend is the slice of the coordinator the admin API needs.
type backend interface {
	Status() vectorstore.Status
	Collections(ctx context.Context) ([]string, error)
	DropCollections(ctx context.Context) error
}

type fileIngester interface {
	IngestFile(ctx context.Context, path string) ingest.Report
}

// adminHandler serves health, collection management, ingestion and metrics.
func adminHandler(store backend, ing fileIngester, metricsHandler http.Handler, token string, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth(store))
	mux.HandleFunc("GET /api/collections", handleListCollections(store, logger))
	mux.HandleFunc("DELETE /api/collections", handleDropCollections(store, logger))
	mux.HandleFunc("POST /api/ingest", handleIngest(ing))
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}

	return mid.Chain(mux,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.OTel("ragqa-admin"),
		mid.RequireToken(token),
	)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func handleHealth(store backend) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "ok",
			"backend": store.Status(),
		})
	}
}

func handleListCollections(store backend, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		names, err := store.Collections(r.Context())
		if err != nil {
			logger.Error("list collections failed", "err", err)
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": "vector backend unavailable"})
			return
		}
		if names == nil {
			names = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"collections": names})
	}
}

func handleDropCollections(store backend, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.DropCollections(r.Context()); err != nil {
			logger.Error("drop collections failed", "err", err)
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": "vector backend unavailable"})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleIngest(ing fileIngester) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ingest.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if strings.TrimSpace(req.Path) == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "path is required"})
			return
		}
		rep := ing.IngestFile(r.Context(), req.Path)
		status := http.StatusOK
		switch rep.Outcome {
		case ingest.FormatMismatch:
			status = http.StatusUnprocessableEntity
		case ingest.Failed:
			status = http.StatusInternalServerError
		}
		writeJSON(w, status, rep)
	}
}
