package index

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/compozy/nutrilens/engine/core"
	"github.com/compozy/nutrilens/engine/knowledge"
	"github.com/compozy/nutrilens/engine/knowledge/chunk"
	"github.com/compozy/nutrilens/engine/knowledge/embedder"
	"github.com/compozy/nutrilens/engine/knowledge/vectordb"
	"github.com/compozy/nutrilens/pkg/logger"
)

// Hit is one retrieval result.
type Hit struct {
	ID     string
	Term   string
	Text   string
	Score  float64
	Source string
}

// Options tunes batching, retries and the retrieval score floor.
type Options struct {
	BatchSize    int
	WriteRetries int
	WriteBackoff time.Duration
	MinScore     float64
}

// Index couples an embedder with a vector store.
type Index struct {
	embedder embedder.Embedder
	store    vectordb.Store
	opts     Options
	tracer   trace.Tracer
}

// New builds an index. BatchSize defaults to 16.
func New(emb embedder.Embedder, store vectordb.Store, opts Options) (*Index, error) {
	if emb == nil {
		return nil, errors.New("index: embedder is required")
	}
	if store == nil {
		return nil, errors.New("index: vector store is required")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 16
	}
	if opts.WriteRetries < 0 {
		opts.WriteRetries = 0
	}
	if opts.WriteBackoff <= 0 {
		opts.WriteBackoff = 100 * time.Millisecond
	}
	return &Index{
		embedder: emb,
		store:    store,
		opts:     opts,
		tracer:   otel.Tracer("nutrilens.knowledge.index"),
	}, nil
}

// Insert embeds chunks in batches and upserts them. Any failure is an *IndexWriteError.
func (x *Index) Insert(ctx context.Context, chunks []chunk.Chunk) error {
	for start := 0; start < len(chunks); start += x.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return &IndexWriteError{Stage: "insert", Source: chunks[start].Source, Err: err}
		}
		end := min(start+x.opts.BatchSize, len(chunks))
		if err := x.insertBatch(ctx, chunks[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (x *Index) insertBatch(ctx context.Context, batch []chunk.Chunk) error {
	source := batch[0].Source
	texts := make([]string, len(batch))
	for i := range batch {
		texts[i] = batch[i].Text
	}
	var vectors [][]float32
	err := x.withRetry(ctx, func(ctx context.Context) error {
		var embedErr error
		vectors, embedErr = x.embedder.EmbedDocuments(ctx, texts)
		return embedErr
	})
	if err != nil {
		return &IndexWriteError{Stage: "embed", Source: source, Err: err}
	}
	if len(vectors) != len(batch) {
		return &IndexWriteError{
			Stage:  "embed",
			Source: source,
			Err:    fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(batch)),
		}
	}
	records := make([]vectordb.Record, len(batch))
	for i := range batch {
		meta := core.CloneMap(batch[i].Metadata)
		if meta == nil {
			meta = make(map[string]any)
		}
		meta["source"] = batch[i].Source
		meta["chunk_index"] = batch[i].Index
		meta["chunk_hash"] = batch[i].Hash
		records[i] = vectordb.Record{
			ID:        batch[i].ID,
			Text:      batch[i].Text,
			Embedding: vectors[i],
			Metadata:  meta,
		}
	}
	if err := x.withRetry(ctx, func(ctx context.Context) error {
		return x.store.Upsert(ctx, records)
	}); err != nil {
		return &IndexWriteError{Stage: "upsert", Source: source, Err: err}
	}
	return nil
}

func (x *Index) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(
		uint64(x.opts.WriteRetries),
		retry.WithJitterPercent(20, retry.NewExponential(x.opts.WriteBackoff)),
	)
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			if ctx.Err() != nil {
				return err
			}
			return retry.RetryableError(err)
		}
		return nil
	})
}

// Query returns up to k hits for text, best first. An empty index or no hit
// above the score floor yields an empty slice and no error.
func (x *Index) Query(ctx context.Context, text string, k int) (hits []Hit, err error) {
	term := strings.TrimSpace(text)
	if term == "" {
		return nil, errors.New("index: query text is required")
	}
	if k <= 0 {
		k = 1
	}
	ctx, span := x.tracer.Start(ctx, "nutrilens.knowledge.index.query", trace.WithAttributes(
		attribute.Int("top_k", k),
	))
	start := time.Now()
	defer func() {
		knowledge.RecordQueryLatency(ctx, time.Since(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.Int("hits", len(hits)))
			if len(hits) == 0 {
				knowledge.RecordRetrievalEmpty(ctx)
			}
		}
		span.End()
	}()
	vector, err := x.embedder.EmbedQuery(ctx, term)
	if err != nil {
		return nil, fmt.Errorf("index: embed query: %w", err)
	}
	matches, err := x.store.Search(ctx, vector, vectordb.SearchOptions{TopK: k, MinScore: x.opts.MinScore})
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	hits = make([]Hit, 0, len(matches))
	for i := range matches {
		source, _ := matches[i].Metadata["source"].(string)
		hits = append(hits, Hit{
			ID:     matches[i].ID,
			Term:   term,
			Text:   matches[i].Text,
			Score:  matches[i].Score,
			Source: source,
		})
	}
	logger.FromContext(ctx).Debug("Index query executed", "term", term, "hits", len(hits))
	return hits, nil
}

// Count reports how many chunks the index holds.
func (x *Index) Count(ctx context.Context) (int, error) {
	return x.store.Count(ctx)
}

// Close releases the underlying store.
func (x *Index) Close(ctx context.Context) error {
	return x.store.Close(ctx)
}
