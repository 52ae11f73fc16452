package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/compozy/nutrilens/engine/knowledge/retriever"
	"github.com/compozy/nutrilens/engine/llm"
	llmadapter "github.com/compozy/nutrilens/engine/llm/adapter"
	"github.com/compozy/nutrilens/engine/llm/structured"
	"github.com/compozy/nutrilens/engine/nutrition"
	"github.com/compozy/nutrilens/engine/nutrition/prompts"
	"github.com/compozy/nutrilens/pkg/logger"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Modality is the input path chosen for estimation.
type Modality string

const (
	ModalityVision Modality = "vision"
	ModalityText   Modality = "text"
)

// DefaultFallbackContext is used when retrieval finds nothing.
const DefaultFallbackContext = "No reference data was found in the knowledge base. " +
	"Estimate from general nutrition knowledge."

// Input is one analysis request. ImageURL may be an http(s) or data URL.
type Input struct {
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// Result is the outcome of a successful run.
type Result struct {
	Report    *nutrition.NutritionReport
	Estimates *nutrition.EstimateSet
	Modality  Modality
	Context   string
	Trace     []string
}

// ContextBuilder produces the grounding block for the computation stage.
type ContextBuilder interface {
	BuildContext(ctx context.Context, estimates []nutrition.DishEstimate) retriever.Result
}

// Options tunes a Pipeline.
type Options struct {
	FallbackContext string
	CallOptions     llmadapter.CallOptions
}

// Pipeline runs the staged nutrition analysis. It is safe for concurrent use;
// each Run drives its own state machine.
type Pipeline struct {
	models    *llm.Models
	builder   ContextBuilder
	prompts   *prompts.Set
	estimates *structured.Contract[nutrition.EstimateSet]
	reports   *structured.Contract[nutrition.NutritionReport]
	opts      Options
	tracer    trace.Tracer
}

type runContext struct {
	id          string
	input       Input
	modality    Modality
	estimates   *nutrition.EstimateSet
	context     retriever.Result
	contextText string
	report      *nutrition.NutritionReport
	trace       []string
	err         error
	failedStage string
}

// New validates dependencies and compiles the output contracts.
func New(models *llm.Models, builder ContextBuilder, set *prompts.Set, opts Options) (*Pipeline, error) {
	if err := models.Validate(); err != nil {
		return nil, err
	}
	if builder == nil {
		return nil, errors.New("pipeline: context builder is required")
	}
	if set == nil {
		var err error
		if set, err = prompts.Default(); err != nil {
			return nil, err
		}
	}
	if strings.TrimSpace(opts.FallbackContext) == "" {
		opts.FallbackContext = DefaultFallbackContext
	}
	estimates, err := structured.New[nutrition.EstimateSet]("estimate_set")
	if err != nil {
		return nil, fmt.Errorf("pipeline: estimate contract: %w", err)
	}
	reports, err := structured.New[nutrition.NutritionReport]("nutrition_report")
	if err != nil {
		return nil, fmt.Errorf("pipeline: report contract: %w", err)
	}
	return &Pipeline{
		models:    models,
		builder:   builder,
		prompts:   set,
		estimates: estimates,
		reports:   reports,
		opts:      opts,
		tracer:    otel.Tracer("nutrilens.nutrition.pipeline"),
	}, nil
}

// Run analyses one meal. Every error is a *nutrition.PipelineError.
func (p *Pipeline) Run(ctx context.Context, in Input) (res *Result, err error) {
	run := &runContext{id: uuid.NewString(), input: in, trace: []string{StateInit}}
	log := logger.FromContext(ctx).With("pipeline_run_id", run.id)
	ctx = logger.ContextWithLogger(ctx, log)
	ctx, span := p.tracer.Start(ctx, "nutrilens.nutrition.pipeline.run")
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Error("Pipeline run panicked", "panic", r)
			res = nil
			err = nutrition.NewPipelineError(nutrition.CodeInternal, run.failedStage, internalMessage,
				fmt.Errorf("panic: %v", r))
		}
		code := "ok"
		var perr *nutrition.PipelineError
		if errors.As(err, &perr) {
			code = perr.Code
			span.SetStatus(codes.Error, perr.Code)
			span.RecordError(err)
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.SetAttributes(attribute.String("modality", string(run.modality)), attribute.String("outcome", code))
		span.End()
		recordRun(ctx, string(run.modality), code, time.Since(started))
	}()

	machine := newRunFSM(p)
	if strings.TrimSpace(in.Text) == "" && strings.TrimSpace(in.ImageURL) == "" {
		run.err = nutrition.ErrInputMissing
		run.failedStage = StateInit
		if ferr := machine.Event(ctx, EventFailure, run); ferr != nil {
			log.Debug("Failure transition not applied", "error", ferr)
		}
	} else if ferr := machine.Event(ctx, EventInputAccepted, run); ferr != nil && run.err == nil {
		run.err = ferr
		run.failedStage = StateInit
	}

	if run.err != nil || machine.Current() != StateDone {
		cause := run.err
		if cause == nil {
			cause = fmt.Errorf("pipeline stopped in state %s", machine.Current())
		}
		perr := classify(run.failedStage, cause)
		log.Warn("Pipeline run failed", "stage", run.failedStage, "code", perr.Code, "error", cause)
		return nil, perr
	}
	log.Info("Pipeline run completed",
		"modality", run.modality,
		"items", len(run.report.Items),
		"total_calories", run.report.TotalCalories,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return &Result{
		Report:    run.report,
		Estimates: run.estimates,
		Modality:  run.modality,
		Context:   run.contextText,
		Trace:     run.trace,
	}, nil
}

func (p *Pipeline) onEnterSelectModality(_ context.Context, run *runContext) transitionResult {
	if strings.TrimSpace(run.input.ImageURL) != "" {
		run.modality = ModalityVision
	} else {
		run.modality = ModalityText
	}
	return next(EventModalitySelected)
}

func (p *Pipeline) onEnterEstimate(ctx context.Context, run *runContext) transitionResult {
	role := llm.RoleEstimateText
	kind := prompts.KindText
	if run.modality == ModalityVision {
		role = llm.RoleEstimateVision
		kind = prompts.KindVision
	}
	prompt, err := p.prompts.Render(kind, prompts.Data{
		Text:               strings.TrimSpace(run.input.Text),
		FormatInstructions: p.estimates.FormatInstructions(),
	})
	if err != nil {
		return fail(err)
	}
	msg := llmadapter.Message{Role: llmadapter.RoleUser, Content: prompt}
	opts := p.opts.CallOptions
	if run.modality == ModalityVision {
		msg.Parts = []llmadapter.ContentPart{llmadapter.ImageURLPart{URL: strings.TrimSpace(run.input.ImageURL)}}
	} else {
		opts.UseJSONMode = true
	}
	raw, err := p.models.For(role).Invoke(ctx, &llmadapter.LLMRequest{
		Messages: []llmadapter.Message{msg},
		Options:  opts,
	})
	if err != nil {
		return fail(err)
	}
	set, err := p.estimates.Parse(raw)
	if err != nil {
		return fail(err)
	}
	run.estimates = set
	return next(EventEstimated)
}

func (p *Pipeline) onEnterValidateEstimate(ctx context.Context, run *runContext) transitionResult {
	if run.estimates == nil || len(run.estimates.Items) == 0 {
		return fail(nutrition.ErrRecognitionFailed)
	}
	logger.FromContext(ctx).Debug("Dishes recognized", "count", len(run.estimates.Items))
	return next(EventEstimateValid)
}

func (p *Pipeline) onEnterBuildContext(ctx context.Context, run *runContext) transitionResult {
	run.context = p.builder.BuildContext(ctx, run.estimates.Items)
	if run.context.Empty() {
		logger.FromContext(ctx).Info("No reference data matched, using fallback context")
		run.contextText = p.opts.FallbackContext
	} else {
		run.contextText = run.context.Text
	}
	return next(EventContextReady)
}

func (p *Pipeline) onEnterCompute(ctx context.Context, run *runContext) transitionResult {
	estimates, err := json.Marshal(run.estimates.Items)
	if err != nil {
		return fail(fmt.Errorf("encode estimates: %w", err))
	}
	prompt, err := p.prompts.Render(prompts.KindCompute, prompts.Data{
		Text:               strings.TrimSpace(run.input.Text),
		Estimates:          string(estimates),
		Context:            run.contextText,
		FormatInstructions: p.reports.FormatInstructions(),
	})
	if err != nil {
		return fail(err)
	}
	opts := p.opts.CallOptions
	opts.UseJSONMode = true
	raw, err := p.models.For(llm.RoleCompute).Invoke(ctx, &llmadapter.LLMRequest{
		Messages: []llmadapter.Message{{Role: llmadapter.RoleUser, Content: prompt}},
		Options:  opts,
	})
	if err != nil {
		return fail(err)
	}
	report, err := p.reports.Parse(raw)
	if err != nil {
		return fail(err)
	}
	if err := echoEstimates(report, run.estimates, raw); err != nil {
		return fail(err)
	}
	report.References = append([]nutrition.Reference{}, run.context.References...)
	run.report = report
	return next(EventComputed)
}

// echoEstimates pins each report item to its estimate. Items are matched by
// position; the model only contributes the nutrition figures.
func echoEstimates(report *nutrition.NutritionReport, set *nutrition.EstimateSet, raw string) error {
	if len(report.Items) != len(set.Items) {
		return &structured.SchemaValidationError{
			Schema: "nutrition_report",
			Reason: fmt.Sprintf("report has %d items for %d estimated dishes", len(report.Items), len(set.Items)),
			Raw:    raw,
		}
	}
	for i := range report.Items {
		est := set.Items[i]
		report.Items[i].Name = est.Name
		report.Items[i].WeightGrams = est.WeightGrams
		report.Items[i].IsEstimated = est.IsEstimated
	}
	return nil
}
