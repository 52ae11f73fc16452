package vectordb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/compozy/nutrilens/engine/core"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

const (
	qdrantDefaultTimeout    = 10 * time.Second
	qdrantDefaultCollection = "nutrition"
	qdrantIDKey             = "chunk_id"
	qdrantTextKey           = "text"
)

// qdrantNamespace scopes the UUIDs derived from chunk IDs; qdrant only accepts UUID or integer point IDs.
var qdrantNamespace = uuid.MustParse("5b9d0c1e-3f59-4c43-9a53-2f1ab6a8a3d1")

type qdrantStore struct {
	client     *resty.Client
	collection string
	dimension  int
}

type qdrantSearchResult struct {
	ID      any            `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

type qdrantError struct {
	Status any `json:"status"`
}

func newQdrantStore(ctx context.Context, cfg *Config) (Store, error) {
	collection := cfg.Collection
	if collection == "" {
		collection = qdrantDefaultCollection
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.URL, "/")).
		SetTimeout(qdrantDefaultTimeout).
		SetHeader("Content-Type", "application/json").
		SetError(&qdrantError{})
	if cfg.APIKey != "" {
		client.SetHeader("api-key", cfg.APIKey)
	}
	store := &qdrantStore{
		client:     client,
		collection: collection,
		dimension:  cfg.Dimension,
	}
	if err := store.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// ensureCollection creates the collection unless it already exists.
func (q *qdrantStore) ensureCollection(ctx context.Context) error {
	resp, err := q.client.R().SetContext(ctx).Get("/collections/" + q.collection)
	if err != nil {
		return fmt.Errorf("qdrant: request failed: %w", err)
	}
	if resp.IsSuccess() {
		return nil
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     q.dimension,
			"distance": "Cosine",
		},
	}
	return q.do(ctx, "PUT", "/collections/"+q.collection, body, nil)
}

func pointID(id string) string {
	return uuid.NewSHA1(qdrantNamespace, []byte(id)).String()
}

func (q *qdrantStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	points := make([]map[string]any, 0, len(records))
	for i := range records {
		rec := records[i]
		if len(rec.Embedding) != q.dimension {
			return fmt.Errorf("qdrant: record %q dimension mismatch (got %d want %d)", rec.ID, len(rec.Embedding), q.dimension)
		}
		payload := core.CloneMap(rec.Metadata)
		if payload == nil {
			payload = make(map[string]any)
		}
		payload[qdrantTextKey] = rec.Text
		payload[qdrantIDKey] = rec.ID
		points = append(points, map[string]any{
			"id":      pointID(rec.ID),
			"vector":  rec.Embedding,
			"payload": payload,
		})
	}
	path := fmt.Sprintf("/collections/%s/points?wait=true", q.collection)
	return q.do(ctx, "PUT", path, map[string]any{"points": points}, nil)
}

func (q *qdrantStore) Search(ctx context.Context, query []float32, opts SearchOptions) ([]Match, error) {
	if len(query) != q.dimension {
		return nil, fmt.Errorf("qdrant: query dimension mismatch (got %d want %d)", len(query), q.dimension)
	}
	limit := opts.TopK
	if limit <= 0 {
		limit = defaultTopK
	}
	request := map[string]any{
		"vector":          query,
		"limit":           limit,
		"with_payload":    true,
		"score_threshold": opts.MinScore,
	}
	var response struct {
		Result []qdrantSearchResult `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/search", q.collection)
	if err := q.do(ctx, "POST", path, request, &response); err != nil {
		return nil, err
	}
	matches := mapQdrantResults(response.Result, opts.MinScore)
	sortMatches(matches)
	return matches, nil
}

// mapQdrantResults restores chunk IDs and text from the payload.
func mapQdrantResults(results []qdrantSearchResult, minScore float64) []Match {
	matches := make([]Match, 0, len(results))
	for _, res := range results {
		if res.Score <= minScore {
			continue
		}
		payload := core.CloneMap(res.Payload)
		if payload == nil {
			payload = make(map[string]any)
		}
		id := fmt.Sprint(res.ID)
		if raw, ok := payload[qdrantIDKey].(string); ok {
			id = raw
			delete(payload, qdrantIDKey)
		}
		text, _ := payload[qdrantTextKey].(string)
		delete(payload, qdrantTextKey)
		matches = append(matches, Match{
			ID:       id,
			Score:    res.Score,
			Text:     text,
			Metadata: payload,
		})
	}
	return matches
}

func (q *qdrantStore) Count(ctx context.Context) (int, error) {
	var response struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/count", q.collection)
	if err := q.do(ctx, "POST", path, map[string]any{"exact": true}, &response); err != nil {
		return 0, err
	}
	return response.Result.Count, nil
}

func (q *qdrantStore) Close(context.Context) error {
	return nil
}

func (q *qdrantStore) do(ctx context.Context, method, path string, body any, out any) error {
	req := q.client.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("qdrant: request failed: %w", err)
	}
	if resp.IsError() {
		detail := ""
		if apiErr, ok := resp.Error().(*qdrantError); ok && apiErr != nil && apiErr.Status != nil {
			detail = fmt.Sprint(apiErr.Status)
		}
		return fmt.Errorf("qdrant: %s %s failed with status %d: %s", method, path, resp.StatusCode(), detail)
	}
	return nil
}
