package vectordb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// fileStore is a memoryStore that snapshots itself to a JSON file after every write.
type fileStore struct {
	*memoryStore
	path string
}

func newFileStore(cfg *Config) (Store, error) {
	if cfg == nil {
		return nil, errors.New("filesystem: config is required")
	}
	storePath := filepath.Clean(cfg.Path)
	dir := filepath.Dir(storePath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("filesystem: ensure directory %q: %w", dir, err)
	}
	fs := &fileStore{
		memoryStore: newMemoryStore(cfg.Dimension),
		path:        storePath,
	}
	if err := fs.load(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (s *fileStore) Upsert(_ context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.putLocked(records); err != nil {
		return fmt.Errorf("filesystem: %w", err)
	}
	return s.persistLocked()
}

func (s *fileStore) load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("filesystem: read %q: %w", s.path, err)
	}
	var payload fileStorePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("filesystem: decode %q: %w", s.path, err)
	}
	if payload.Dimension > 0 && s.dimension != payload.Dimension {
		return fmt.Errorf(
			"filesystem: stored dimension %d does not match config %d for %q",
			payload.Dimension,
			s.dimension,
			s.path,
		)
	}
	for i := range payload.Records {
		rec := payload.Records[i]
		if len(rec.Embedding) != s.dimension {
			return fmt.Errorf("filesystem: record %q in %q has dimension %d", rec.ID, s.path, len(rec.Embedding))
		}
		s.records[rec.ID] = Record{
			ID:        rec.ID,
			Text:      rec.Text,
			Embedding: rec.Embedding,
			Metadata:  rec.Metadata,
		}
	}
	return nil
}

func (s *fileStore) persistLocked() error {
	payload := fileStorePayload{
		Dimension: s.dimension,
		Records:   make([]fileStoreRecord, 0, len(s.records)),
	}
	for _, rec := range s.records {
		payload.Records = append(payload.Records, fileStoreRecord(rec))
	}
	sort.Slice(payload.Records, func(i, j int) bool { return payload.Records[i].ID < payload.Records[j].ID })
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("filesystem: encode snapshot: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("filesystem: write snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("filesystem: commit snapshot: %w", err)
	}
	return nil
}

type fileStorePayload struct {
	Dimension int               `json:"dimension"`
	Records   []fileStoreRecord `json:"records"`
}

type fileStoreRecord struct {
	ID        string         `json:"id"`
	Text      string         `json:"text"`
	Embedding []float32      `json:"embedding"`
	Metadata  map[string]any `json:"metadata"`
}
