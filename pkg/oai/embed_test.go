package oai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

type embeddingsBody struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions"`
}

func fakeServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			http.NotFound(w, r)
			return
		}
		calls.Add(1)
		var body embeddingsBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if body.Dimensions != 4 {
			t.Errorf("dimensions = %d", body.Dimensions)
		}
		data := make([]map[string]any, len(body.Input))
		// Reverse order to check that Index is honoured.
		for i := range body.Input {
			j := len(body.Input) - 1 - i
			data[i] = map[string]any{
				"object":    "embedding",
				"index":     j,
				"embedding": []float32{float32(len(body.Input[j])), 0, 0, 0},
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"object": "list", "model": body.Model, "data": data})
	}))
}

func TestEmbedBatch(t *testing.T) {
	var calls atomic.Int32
	srv := fakeServer(t, &calls)
	defer srv.Close()

	e := New(Config{APIKey: "k", BaseURL: srv.URL + "/v1", BatchSize: 2, Dimensions: 4})
	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "bb", "ccc"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2", calls.Load())
	}
	for i, want := range []float32{1, 2, 3} {
		if vecs[i][0] != want {
			t.Fatalf("vecs[%d] = %v", i, vecs[i])
		}
	}

	v, err := e.Embed(context.Background(), "dddd")
	if err != nil || v[0] != 4 {
		t.Fatalf("Embed: %v, %v", v, err)
	}
}

func TestEmbedBatch_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	e := New(Config{BaseURL: srv.URL + "/v1", Dimensions: 4})
	if _, err := e.Embed(context.Background(), "x"); err == nil {
		t.Fatal("expected error")
	}
}

func TestDefaults(t *testing.T) {
	e := New(Config{})
	if e.cfg.Model != string(DefaultModel) || e.cfg.BatchSize != DefaultBatchSize || e.cfg.Dimensions != DefaultDimensions {
		t.Fatalf("cfg = %+v", e.cfg)
	}
	if out, err := e.EmbedBatch(context.Background(), nil); out != nil || err != nil {
		t.Fatal("empty input should be a no-op")
	}
}
