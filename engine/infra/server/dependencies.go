package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/compozy/nutrilens/engine/infra/monitoring"
	"github.com/compozy/nutrilens/engine/knowledge/chunk"
	"github.com/compozy/nutrilens/engine/knowledge/digest"
	"github.com/compozy/nutrilens/engine/knowledge/embedder"
	"github.com/compozy/nutrilens/engine/knowledge/index"
	"github.com/compozy/nutrilens/engine/knowledge/ingest"
	"github.com/compozy/nutrilens/engine/knowledge/retriever"
	"github.com/compozy/nutrilens/engine/knowledge/vectordb"
	"github.com/compozy/nutrilens/engine/llm"
	"github.com/compozy/nutrilens/engine/nutrition/pipeline"
	"github.com/compozy/nutrilens/engine/nutrition/prompts"
	"github.com/compozy/nutrilens/pkg/config"
	"github.com/compozy/nutrilens/pkg/logger"
	"github.com/spf13/afero"
)

// Dependencies is the assembled service graph shared by the server and the CLI.
type Dependencies struct {
	Config     *config.Config
	Monitoring *monitoring.Service
	Index      *index.Index
	Digests    digest.Store
	Ingest     *ingest.Engine
	Builder    *retriever.Builder
	// Pipeline is nil when the graph was built without models.
	Pipeline *pipeline.Pipeline

	cleanups []func(context.Context) error
}

// BuildOptions selects optional parts of the graph.
type BuildOptions struct {
	// WithModels binds the model roles and builds the pipeline.
	WithModels bool
	// Fs backs the knowledge directory and prompt overrides. Nil uses the OS.
	Fs afero.Fs
}

// BuildDependencies wires configuration into the knowledge stack and, when
// requested, the analysis pipeline. Close releases everything built.
func BuildDependencies(ctx context.Context, cfg *config.Config, opts BuildOptions) (deps *Dependencies, err error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	log := logger.FromContext(ctx)
	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	deps = &Dependencies{Config: cfg}
	defer func() {
		if err != nil {
			_ = deps.Close(context.WithoutCancel(ctx))
			deps = nil
		}
	}()

	deps.Monitoring = monitoring.NewMonitoringServiceWithFallback(ctx, monitoring.FromAppConfig(&cfg.Monitoring))
	deps.Monitoring.SetAsGlobal()
	deps.addCleanup(deps.Monitoring.Shutdown)

	if err := deps.buildKnowledge(ctx, fs); err != nil {
		return nil, err
	}
	if !opts.WithModels {
		return deps, nil
	}
	if err := deps.buildPipeline(ctx, fs); err != nil {
		return nil, err
	}
	log.Info("Dependencies ready",
		"llm_provider", cfg.LLM.Provider,
		"vector_db", cfg.VectorDB.Provider,
		"digest_provider", cfg.Knowledge.DigestProvider,
	)
	return deps, nil
}

func (d *Dependencies) buildKnowledge(ctx context.Context, fs afero.Fs) error {
	cfg := d.Config
	emb, err := embedder.New(embedder.FromAppConfig(&cfg.Embedder))
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}
	if cfg.Embedder.CacheSize > 0 {
		if err := emb.EnableCache(cfg.Embedder.CacheSize); err != nil {
			return err
		}
	}
	store, err := vectordb.New(ctx, vectordb.FromAppConfig(&cfg.VectorDB, cfg.Embedder.Dimension))
	if err != nil {
		return fmt.Errorf("failed to open vector store: %w", err)
	}
	d.Index, err = index.New(emb, store, index.Options{
		BatchSize:    cfg.Embedder.BatchSize,
		WriteRetries: cfg.Knowledge.WriteRetries,
		WriteBackoff: cfg.Knowledge.WriteBackoff,
		MinScore:     cfg.Retrieval.MinScore,
	})
	if err != nil {
		_ = store.Close(ctx)
		return err
	}
	d.addCleanup(d.Index.Close)

	d.Digests, err = digest.New(ctx, digest.FromAppConfig(&cfg.Knowledge))
	if err != nil {
		return fmt.Errorf("failed to open digest store: %w", err)
	}
	d.addCleanup(d.Digests.Close)

	chunker, err := chunk.NewProcessor(chunk.Settings{
		Size:              cfg.Knowledge.ChunkSize,
		Overlap:           cfg.Knowledge.ChunkOverlap,
		Separators:        cfg.Knowledge.Separators,
		NormalizeNewlines: true,
	})
	if err != nil {
		return err
	}
	d.Ingest, err = ingest.New(fs, nil, chunker, d.Index, d.Digests, ingest.OptionsFromConfig(&cfg.Knowledge))
	if err != nil {
		return err
	}
	d.Builder, err = retriever.NewBuilder(d.Index, retriever.Options{
		TopK:      cfg.Retrieval.TopK,
		MaxTokens: cfg.Retrieval.MaxTokens,
	}, retriever.NewEstimator(ctx, cfg.Retrieval.Encoding))
	return err
}

func (d *Dependencies) buildPipeline(ctx context.Context, fs afero.Fs) error {
	cfg := d.Config
	models, clients, err := llm.NewModels(ctx, &cfg.LLM)
	if err != nil {
		return err
	}
	d.addCleanup(func(context.Context) error { return clients.Close() })
	set, err := prompts.Load(fs, &cfg.Prompts)
	if err != nil {
		return err
	}
	d.Pipeline, err = pipeline.New(models, d.Builder, set, pipeline.Options{
		FallbackContext: cfg.Pipeline.FallbackContext,
		CallOptions:     llm.DefaultCallOptions(&cfg.LLM),
	})
	return err
}

func (d *Dependencies) addCleanup(fn func(context.Context) error) {
	d.cleanups = append(d.cleanups, fn)
}

// Close runs cleanups in reverse order of construction.
func (d *Dependencies) Close(ctx context.Context) error {
	if d == nil {
		return nil
	}
	var errs []error
	for i := len(d.cleanups) - 1; i >= 0; i-- {
		if err := d.cleanups[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	d.cleanups = nil
	return errors.Join(errs...)
}
