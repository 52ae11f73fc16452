package digest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/afero"
)

// fileStore keeps one "<digest>\t<source>\t<rfc3339>" line per record.
// Appends take an OS file lock so concurrent processes do not interleave.
type fileStore struct {
	fs      afero.Fs
	path    string
	lock    *flock.Flock
	mu      sync.RWMutex
	digests map[string]struct{}
}

func newFileStore(fs afero.Fs, path string) (*fileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("digest: file path is required")
	}
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("digest: create directory: %w", err)
	}
	s := &fileStore{
		fs:      fs,
		path:    path,
		lock:    flock.New(path + ".lock"),
		digests: make(map[string]struct{}),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *fileStore) load() error {
	f, err := s.fs.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("digest: open %s: %w", s.path, err)
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		digest, _, _ := strings.Cut(strings.TrimSpace(scanner.Text()), "\t")
		if validDigest(digest) == nil {
			s.digests[digest] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("digest: read %s: %w", s.path, err)
	}
	return nil
}

func (s *fileStore) Has(_ context.Context, digest string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.digests[digest]
	return ok, nil
}

func (s *fileStore) Add(ctx context.Context, record Record) error {
	record, err := normalize(record)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.digests[record.Digest]; ok {
		return nil
	}
	locked, err := s.lock.TryLockContext(ctx, 10*time.Millisecond)
	if err != nil {
		return fmt.Errorf("digest: lock %s: %w", s.path, err)
	}
	if !locked {
		return fmt.Errorf("digest: lock %s: not acquired", s.path)
	}
	defer s.lock.Unlock()
	f, err := s.fs.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("digest: open %s: %w", s.path, err)
	}
	line := fmt.Sprintf("%s\t%s\t%s\n", record.Digest, record.Source, record.IngestedAt.Format(time.RFC3339))
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return fmt.Errorf("digest: append %s: %w", s.path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("digest: close %s: %w", s.path, err)
	}
	s.digests[record.Digest] = struct{}{}
	return nil
}

func (s *fileStore) Close(context.Context) error {
	return nil
}
