package retriever

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/compozy/nutrilens/engine/knowledge/index"
	"github.com/compozy/nutrilens/engine/nutrition"
	"github.com/compozy/nutrilens/pkg/logger"
)

const maxParallelQueries = 4

// Querier looks up the knowledge index.
type Querier interface {
	Query(ctx context.Context, text string, k int) ([]index.Hit, error)
}

// Options tunes the builder.
type Options struct {
	TopK      int
	MaxTokens int
}

// Result is the grounding block handed to the computation stage.
type Result struct {
	Text       string
	References []nutrition.Reference
}

// Empty reports whether nothing was retrieved.
func (r Result) Empty() bool {
	return strings.TrimSpace(r.Text) == ""
}

type Builder struct {
	index     Querier
	opts      Options
	estimator TokenEstimator
	tracer    trace.Tracer
}

func NewBuilder(q Querier, opts Options, estimator TokenEstimator) (*Builder, error) {
	if q == nil {
		return nil, errors.New("retriever: index is required")
	}
	if opts.TopK <= 0 {
		opts.TopK = 1
	}
	if estimator == nil {
		estimator = runeEstimator{}
	}
	return &Builder{
		index:     q,
		opts:      opts,
		estimator: estimator,
		tracer:    otel.Tracer("nutrilens.knowledge.retriever"),
	}, nil
}

// BuildContext queries the index once per dish and keeps the best hit of each.
// Lines follow estimate order. A failed lookup only drops that dish.
func (b *Builder) BuildContext(ctx context.Context, estimates []nutrition.DishEstimate) Result {
	ctx, span := b.tracer.Start(ctx, "nutrilens.knowledge.retriever.build_context", trace.WithAttributes(
		attribute.Int("dishes", len(estimates)),
		attribute.Int("top_k", b.opts.TopK),
	))
	defer span.End()
	log := logger.FromContext(ctx)
	best := make([]*index.Hit, len(estimates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelQueries)
	for i := range estimates {
		name := strings.TrimSpace(estimates[i].Name)
		if name == "" {
			continue
		}
		g.Go(func() error {
			hits, err := b.index.Query(gctx, name, b.opts.TopK)
			if err != nil {
				log.Warn("Knowledge lookup failed for dish", "dish", name, "error", err)
				return nil
			}
			if len(hits) > 0 {
				best[i] = &hits[0]
			}
			return nil
		})
	}
	_ = g.Wait()
	var lines []string
	var refs []nutrition.Reference
	for i, hit := range best {
		if hit == nil {
			continue
		}
		lines = append(lines, formatLine(estimates[i].Name, hit.Text))
		refs = append(refs, nutrition.Reference{
			Dish:   estimates[i].Name,
			Source: hit.Source,
			Text:   hit.Text,
			Score:  hit.Score,
		})
	}
	lines, refs = b.applyBudget(ctx, lines, refs)
	span.SetAttributes(attribute.Int("references", len(refs)))
	log.Debug("Retrieval context built", "dishes", len(estimates), "references", len(refs))
	return Result{Text: strings.Join(lines, "\n"), References: refs}
}

func formatLine(dish, text string) string {
	return fmt.Sprintf("[%s] reference: %s", strings.TrimSpace(dish), strings.TrimSpace(text))
}

// applyBudget keeps the longest prefix of lines that fits MaxTokens.
func (b *Builder) applyBudget(
	ctx context.Context,
	lines []string,
	refs []nutrition.Reference,
) ([]string, []nutrition.Reference) {
	if b.opts.MaxTokens <= 0 || len(lines) == 0 {
		return lines, refs
	}
	total := 0
	for i, line := range lines {
		total += b.estimator.EstimateTokens(ctx, line)
		if total > b.opts.MaxTokens {
			logger.FromContext(ctx).Debug(
				"Retrieval context trimmed to token budget",
				"kept", i,
				"dropped", len(lines)-i,
				"max_tokens", b.opts.MaxTokens,
			)
			return lines[:i], refs[:i]
		}
	}
	return lines, refs
}
