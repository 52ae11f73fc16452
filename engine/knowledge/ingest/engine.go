package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/segmentio/ksuid"
	"github.com/spf13/afero"

	"github.com/compozy/nutrilens/engine/knowledge"
	"github.com/compozy/nutrilens/engine/knowledge/chunk"
	"github.com/compozy/nutrilens/engine/knowledge/digest"
	"github.com/compozy/nutrilens/engine/knowledge/loader"
	"github.com/compozy/nutrilens/pkg/logger"
)

// ErrSourceUnavailable is returned when the knowledge directory cannot be listed.
var ErrSourceUnavailable = errors.New("knowledge source directory unavailable")

// Inserter persists chunks into the embedding index.
type Inserter interface {
	Insert(ctx context.Context, chunks []chunk.Chunk) error
}

// Loader turns a file into documents.
type Loader interface {
	Load(ctx context.Context, path string) ([]chunk.Document, error)
}

// Engine runs ingestion passes over a directory. Runs are serialized.
type Engine struct {
	fs      afero.Fs
	loader  Loader
	chunker *chunk.Processor
	index   Inserter
	digests digest.Store
	opts    Options
	mu      sync.Mutex
}

// New builds an engine. A nil loader uses the default registry over fs.
func New(
	fs afero.Fs,
	ld Loader,
	chunker *chunk.Processor,
	index Inserter,
	digests digest.Store,
	opts Options,
) (*Engine, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if ld == nil {
		ld = loader.NewRegistry(fs)
	}
	if chunker == nil {
		return nil, errors.New("ingest: chunk processor is required")
	}
	if index == nil {
		return nil, errors.New("ingest: index is required")
	}
	if digests == nil {
		return nil, errors.New("ingest: digest store is required")
	}
	if strings.TrimSpace(opts.DataPath) == "" {
		return nil, errors.New("ingest: data path is required")
	}
	if opts.pattern() == "" {
		return nil, errors.New("ingest: at least one allowed extension is required")
	}
	return &Engine{
		fs:      fs,
		loader:  ld,
		chunker: chunker,
		index:   index,
		digests: digests,
		opts:    opts,
	}, nil
}

// Run ingests every eligible file once. Per-file failures are reported in the
// summary; only an unavailable source directory or cancellation fails the run.
func (e *Engine) Run(ctx context.Context) (*Summary, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	runID := ksuid.New().String()
	log := logger.FromContext(ctx).With("run_id", runID, "data_path", e.opts.DataPath)
	ctx = logger.ContextWithLogger(ctx, log)
	summary := &Summary{RunID: runID, DataPath: e.opts.DataPath, StartedAt: time.Now().UTC()}
	defer func() {
		summary.Duration = time.Since(summary.StartedAt)
		knowledge.RecordIngestDuration(ctx, summary.Duration)
	}()
	files, err := e.discover()
	if err != nil {
		log.Error("Knowledge ingestion aborted", "error", err)
		return summary, err
	}
	log.Info("Knowledge ingestion started", "files", len(files))
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		result := e.ingestFile(ctx, rel)
		knowledge.RecordFileOutcome(ctx, result.Outcome)
		summary.add(result)
	}
	log.Info(
		"Knowledge ingestion completed",
		"ingested", summary.Ingested,
		"skipped_duplicate", summary.SkippedDuplicate,
		"skipped_empty", summary.SkippedEmpty,
		"failed", summary.Failed,
		"chunks", summary.Chunks,
	)
	return summary, nil
}

func (e *Engine) discover() ([]string, error) {
	root := filepath.Clean(e.opts.DataPath)
	info, err := e.fs.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSourceUnavailable, root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrSourceUnavailable, root)
	}
	pattern := e.opts.pattern()
	var files []string
	err = afero.Walk(e.fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if info.IsDir() {
			if path != root && !e.opts.Recursive {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if ok, _ := doublestar.Match(pattern, strings.ToLower(rel)); ok {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSourceUnavailable, root, err)
	}
	sort.Strings(files)
	return files, nil
}

func (e *Engine) ingestFile(ctx context.Context, rel string) FileResult {
	log := logger.FromContext(ctx).With("file", rel)
	path := filepath.Join(e.opts.DataPath, filepath.FromSlash(rel))
	result := FileResult{Path: rel}
	fail := func(stage string, err error) FileResult {
		log.Error("Knowledge file ingestion failed", "stage", stage, "error", err)
		result.Outcome = knowledge.OutcomeFailed
		result.Reason = fmt.Sprintf("%s: %v", stage, err)
		return result
	}
	sum, err := digest.File(e.fs, path)
	if err != nil {
		return fail("digest", err)
	}
	result.Digest = sum
	seen, err := e.digests.Has(ctx, sum)
	if err != nil {
		return fail("lookup", err)
	}
	if seen {
		log.Debug("Knowledge file already ingested", "digest", sum)
		result.Outcome = knowledge.OutcomeSkippedDuplicate
		return result
	}
	docs, err := e.loader.Load(ctx, path)
	if err != nil {
		return fail("load", err)
	}
	for i := range docs {
		docs[i].Source = rel
	}
	if len(docs) == 0 {
		log.Warn("Knowledge file has no content")
		result.Outcome = knowledge.OutcomeSkippedEmpty
		return result
	}
	chunks, err := e.chunker.Process(docs)
	if err != nil {
		return fail("split", err)
	}
	if len(chunks) == 0 {
		log.Warn("Knowledge file produced no chunks")
		result.Outcome = knowledge.OutcomeSkippedEmpty
		return result
	}
	if err := e.index.Insert(ctx, chunks); err != nil {
		return fail("index", err)
	}
	if err := e.digests.Add(ctx, digest.Record{Digest: sum, Source: rel}); err != nil {
		return fail("record", err)
	}
	knowledge.RecordIngestChunks(ctx, strings.ToLower(filepath.Ext(rel)), len(chunks))
	log.Info("Knowledge file ingested", "chunks", len(chunks))
	result.Outcome = knowledge.OutcomeIngested
	result.Chunks = len(chunks)
	return result
}
