package vectordb

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeQdrant implements the handful of REST routes the store uses.
type fakeQdrant struct {
	mu      sync.Mutex
	created bool
	apiKey  string
	points  map[string]map[string]any
}

func (f *fakeQdrant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apiKey = r.Header.Get("api-key")
	w.Header().Set("Content-Type", "application/json")
	path := r.URL.Path
	switch {
	case r.Method == http.MethodGet && path == "/collections/nutrition":
		if !f.created {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"status":{"error":"Not found"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"result":{},"status":"ok"}`))
	case r.Method == http.MethodPut && path == "/collections/nutrition":
		f.created = true
		_, _ = w.Write([]byte(`{"result":true,"status":"ok"}`))
	case r.Method == http.MethodPut && path == "/collections/nutrition/points":
		var body struct {
			Points []map[string]any `json:"points"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		for _, p := range body.Points {
			f.points[p["id"].(string)] = p
		}
		_, _ = w.Write([]byte(`{"result":{"status":"completed"},"status":"ok"}`))
	case r.Method == http.MethodPost && path == "/collections/nutrition/points/search":
		results := make([]map[string]any, 0, len(f.points))
		for id, p := range f.points {
			results = append(results, map[string]any{"id": id, "score": 0.75, "payload": p["payload"]})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"result": results, "status": "ok"})
	case r.Method == http.MethodPost && path == "/collections/nutrition/points/count":
		_ = json.NewEncoder(w).Encode(map[string]any{"result": map[string]any{"count": len(f.points)}})
	default:
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":{"error":"unexpected route"}}`))
	}
}

func TestQdrantStore(t *testing.T) {
	ctx := context.Background()
	t.Run("Should create the collection, upsert and search", func(t *testing.T) {
		fake := &fakeQdrant{points: map[string]map[string]any{}}
		server := httptest.NewServer(fake)
		defer server.Close()
		store, err := New(ctx, &Config{ID: "q", Provider: ProviderQdrant, URL: server.URL, APIKey: "k", Dimension: 2})
		require.NoError(t, err)
		assert.True(t, fake.created)
		assert.Equal(t, "k", fake.apiKey)

		require.NoError(t, store.Upsert(ctx, []Record{
			{ID: "chunk-1", Text: "Salmon 208 kcal", Embedding: []float32{1, 0}, Metadata: map[string]any{"source": "fish.txt"}},
		}))
		for id := range fake.points {
			assert.Len(t, id, 36)
		}
		matches, err := store.Search(ctx, []float32{1, 0}, SearchOptions{TopK: 1, MinScore: 0.5})
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "chunk-1", matches[0].ID)
		assert.Equal(t, "Salmon 208 kcal", matches[0].Text)
		assert.Equal(t, "fish.txt", matches[0].Metadata["source"])
		count, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("Should surface API errors", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"status":{"error":"boom"}}`))
		}))
		defer server.Close()
		_, err := New(ctx, &Config{ID: "q", Provider: ProviderQdrant, URL: server.URL, Dimension: 2})
		require.Error(t, err)
		assert.True(t, strings.Contains(err.Error(), "500"))
	})

	t.Run("Should drop results at or below the score floor", func(t *testing.T) {
		matches := mapQdrantResults([]qdrantSearchResult{
			{ID: "p1", Score: 0.4, Payload: map[string]any{"text": "above"}},
			{ID: "p2", Score: 0.2, Payload: map[string]any{"text": "at"}},
			{ID: "p3", Score: 0, Payload: map[string]any{"text": "orthogonal"}},
		}, 0.2)
		require.Len(t, matches, 1)
		assert.InDelta(t, 0.4, matches[0].Score, 1e-9)
		assert.Empty(t, mapQdrantResults([]qdrantSearchResult{{ID: "p3", Score: 0}}, 0))
	})

	t.Run("Should derive stable UUID point IDs", func(t *testing.T) {
		assert.Equal(t, pointID("a"), pointID("a"))
		assert.NotEqual(t, pointID("a"), pointID("b"))
	})
}
