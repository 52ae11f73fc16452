package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compozy/nutrilens/engine/knowledge"
	"github.com/compozy/nutrilens/engine/knowledge/chunk"
	"github.com/compozy/nutrilens/engine/knowledge/digest"
	"github.com/compozy/nutrilens/engine/knowledge/embedder"
	"github.com/compozy/nutrilens/engine/knowledge/index"
	"github.com/compozy/nutrilens/engine/knowledge/vectordb"
)

const dataPath = "/kb"

type failingInserter struct {
	next   Inserter
	source string
}

func (f *failingInserter) Insert(ctx context.Context, chunks []chunk.Chunk) error {
	for i := range chunks {
		if chunks[i].Source == f.source {
			return &index.IndexWriteError{Stage: "upsert", Source: f.source, Err: errors.New("disk full")}
		}
	}
	return f.next.Insert(ctx, chunks)
}

type harness struct {
	fs      afero.Fs
	index   *index.Index
	digests digest.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	emb, err := embedder.New(&embedder.Config{
		ID:        "test",
		Provider:  embedder.ProviderHashing,
		Dimension: 64,
		BatchSize: 8,
	})
	require.NoError(t, err)
	store, err := vectordb.New(t.Context(), &vectordb.Config{
		ID:        "test",
		Provider:  vectordb.ProviderMemory,
		Dimension: 64,
	})
	require.NoError(t, err)
	idx, err := index.New(emb, store, index.Options{})
	require.NoError(t, err)
	digests, err := digest.New(t.Context(), &digest.Config{Provider: digest.ProviderSQLite, Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = digests.Close(context.Background()) })
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll(dataPath, 0o755))
	return &harness{fs: fs, index: idx, digests: digests}
}

func (h *harness) write(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(h.fs, dataPath+"/"+name, []byte(content), 0o644))
}

func (h *harness) engine(t *testing.T, inserter Inserter, opts Options) *Engine {
	t.Helper()
	if opts.DataPath == "" {
		opts.DataPath = dataPath
	}
	if len(opts.AllowedExtensions) == 0 {
		opts.AllowedExtensions = []string{".txt", ".pdf", ".json", ".md"}
	}
	chunker, err := chunk.NewProcessor(chunk.Settings{Size: 200, Overlap: 20})
	require.NoError(t, err)
	if inserter == nil {
		inserter = h.index
	}
	e, err := New(h.fs, nil, chunker, inserter, h.digests, opts)
	require.NoError(t, err)
	return e
}

func (h *harness) count(t *testing.T) int {
	t.Helper()
	n, err := h.index.Count(t.Context())
	require.NoError(t, err)
	return n
}

func outcomes(summary *Summary) map[string]string {
	out := make(map[string]string, len(summary.Files))
	for _, f := range summary.Files {
		out[f.Path] = f.Outcome
	}
	return out
}

func TestEngine_Run(t *testing.T) {
	t.Run("Should ingest eligible files and skip them on the next run", func(t *testing.T) {
		h := newHarness(t)
		h.write(t, "chicken.txt", "Grilled chicken breast: 165 kcal per 100g, 31g protein.")
		h.write(t, "foods.json", `[{"name":"white rice","kcal":130},{"name":"broccoli","kcal":35}]`)
		e := h.engine(t, nil, Options{})

		first, err := e.Run(t.Context())
		require.NoError(t, err)
		assert.NotEmpty(t, first.RunID)
		assert.Equal(t, 2, first.Ingested)
		chunksAfterFirst := h.count(t)
		assert.Equal(t, first.Chunks, chunksAfterFirst)

		second, err := e.Run(t.Context())
		require.NoError(t, err)
		assert.Equal(t, 0, second.Ingested)
		assert.Equal(t, 2, second.SkippedDuplicate)
		assert.Equal(t, chunksAfterFirst, h.count(t))
		assert.NotEqual(t, first.RunID, second.RunID)
	})
	t.Run("Should treat byte-identical files as duplicates", func(t *testing.T) {
		h := newHarness(t)
		h.write(t, "a.txt", "Boiled egg: 155 kcal per 100g.")
		h.write(t, "b.txt", "Boiled egg: 155 kcal per 100g.")
		summary, err := h.engine(t, nil, Options{}).Run(t.Context())
		require.NoError(t, err)
		assert.Equal(t, map[string]string{
			"a.txt": knowledge.OutcomeIngested,
			"b.txt": knowledge.OutcomeSkippedDuplicate,
		}, outcomes(summary))
	})
	t.Run("Should keep ingesting after a file fails and retry it later", func(t *testing.T) {
		h := newHarness(t)
		h.write(t, "a.txt", "Avocado: 160 kcal per 100g.")
		h.write(t, "b.txt", "Banana: 89 kcal per 100g.")
		failing := h.engine(t, &failingInserter{next: h.index, source: "a.txt"}, Options{})

		summary, err := failing.Run(t.Context())
		require.NoError(t, err)
		assert.Equal(t, knowledge.OutcomeFailed, outcomes(summary)["a.txt"])
		assert.Equal(t, knowledge.OutcomeIngested, outcomes(summary)["b.txt"])
		assert.Contains(t, summary.Files[0].Reason, "disk full")

		healthy, err := h.engine(t, nil, Options{}).Run(t.Context())
		require.NoError(t, err)
		assert.Equal(t, knowledge.OutcomeIngested, outcomes(healthy)["a.txt"])
		assert.Equal(t, knowledge.OutcomeSkippedDuplicate, outcomes(healthy)["b.txt"])
	})
	t.Run("Should report empty and unreadable files without aborting", func(t *testing.T) {
		h := newHarness(t)
		h.write(t, "blank.md", "   \n")
		h.write(t, "broken.json", `{"name": `)
		h.write(t, "ok.txt", "Oatmeal: 68 kcal per 100g.")
		summary, err := h.engine(t, nil, Options{}).Run(t.Context())
		require.NoError(t, err)
		assert.Equal(t, map[string]string{
			"blank.md":    knowledge.OutcomeSkippedEmpty,
			"broken.json": knowledge.OutcomeFailed,
			"ok.txt":      knowledge.OutcomeIngested,
		}, outcomes(summary))
		assert.Equal(t, 1, summary.Failed)
		assert.Equal(t, 1, summary.SkippedEmpty)
	})
	t.Run("Should honor the extension allow-list and recursion flag", func(t *testing.T) {
		h := newHarness(t)
		h.write(t, "top.TXT", "Tofu: 76 kcal per 100g.")
		h.write(t, "notes.csv", "ignored")
		require.NoError(t, h.fs.MkdirAll(dataPath+"/nested", 0o755))
		h.write(t, "nested/deep.txt", "Lentils: 116 kcal per 100g.")

		flat, err := h.engine(t, nil, Options{}).Run(t.Context())
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"top.TXT": knowledge.OutcomeIngested}, outcomes(flat))

		deep, err := h.engine(t, nil, Options{Recursive: true}).Run(t.Context())
		require.NoError(t, err)
		assert.Equal(t, knowledge.OutcomeIngested, outcomes(deep)["nested/deep.txt"])
		assert.NotContains(t, outcomes(deep), "notes.csv")
	})
	t.Run("Should fail the run when the source directory is missing", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.engine(t, nil, Options{DataPath: "/missing"}).Run(t.Context())
		assert.ErrorIs(t, err, ErrSourceUnavailable)
	})
}

func TestOptions_Pattern(t *testing.T) {
	t.Run("Should build brace patterns from normalized extensions", func(t *testing.T) {
		opts := Options{AllowedExtensions: []string{".TXT", "md", " .txt "}}
		assert.Equal(t, "*.{txt,md}", opts.pattern())
		opts.Recursive = true
		assert.Equal(t, "**/*.{txt,md}", opts.pattern())
	})
	t.Run("Should reject engines without extensions", func(t *testing.T) {
		h := newHarness(t)
		chunker, err := chunk.NewProcessor(chunk.Settings{Size: 50, Overlap: 5})
		require.NoError(t, err)
		_, err = New(h.fs, nil, chunker, h.index, h.digests, Options{DataPath: dataPath, AllowedExtensions: []string{" "}})
		assert.Error(t, err)
	})
}

func TestEngine_Schedule(t *testing.T) {
	t.Run("Should run ingestion on schedule until stopped", func(t *testing.T) {
		h := newHarness(t)
		h.write(t, "a.txt", "Pear: 57 kcal per 100g.")
		e := h.engine(t, nil, Options{})
		stop, err := e.Schedule(t.Context(), "@every 1s")
		require.NoError(t, err)
		defer stop()
		assert.Eventually(t, func() bool {
			has, err := h.index.Count(t.Context())
			return err == nil && has > 0
		}, 5*time.Second, 50*time.Millisecond)
		stop()
		stop()
	})
	t.Run("Should reject invalid schedules", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.engine(t, nil, Options{}).Schedule(t.Context(), "not a schedule")
		assert.Error(t, err)
	})
}
