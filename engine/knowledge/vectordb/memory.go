package vectordb

import (
	"context"
	"fmt"
	"sync"

	"github.com/compozy/nutrilens/engine/core"
)

// memoryStore keeps records in process memory.
type memoryStore struct {
	mu        sync.RWMutex
	dimension int
	records   map[string]Record
}

func newMemoryStore(dimension int) *memoryStore {
	return &memoryStore{
		dimension: dimension,
		records:   make(map[string]Record),
	}
}

func (s *memoryStore) Upsert(_ context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putLocked(records)
}

// putLocked validates the whole batch before writing so a bad record leaves the store untouched.
func (s *memoryStore) putLocked(records []Record) error {
	for i := range records {
		if len(records[i].Embedding) != s.dimension {
			return fmt.Errorf(
				"vector store: record %q dimension mismatch (got %d want %d)",
				records[i].ID,
				len(records[i].Embedding),
				s.dimension,
			)
		}
	}
	for i := range records {
		rec := records[i]
		s.records[rec.ID] = Record{
			ID:        rec.ID,
			Text:      rec.Text,
			Embedding: append([]float32(nil), rec.Embedding...),
			Metadata:  core.CloneMap(rec.Metadata),
		}
	}
	return nil
}

func (s *memoryStore) Search(_ context.Context, query []float32, opts SearchOptions) ([]Match, error) {
	if len(query) != s.dimension {
		return nil, fmt.Errorf("vector store: query dimension mismatch (got %d want %d)", len(query), s.dimension)
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	candidates := make([]Match, 0, len(s.records))
	for _, rec := range s.records {
		score := cosineSimilarity(rec.Embedding, query)
		if score <= opts.MinScore {
			continue
		}
		candidates = append(candidates, Match{
			ID:       rec.ID,
			Score:    score,
			Text:     rec.Text,
			Metadata: core.CloneMap(rec.Metadata),
		})
	}
	sortMatches(candidates)
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates, nil
}

func (s *memoryStore) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

func (s *memoryStore) Close(context.Context) error {
	return nil
}
