package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/compozy/nutrilens/pkg/logger"
	"github.com/looplab/fsm"
)

const (
	StateInit             = "init"
	StateSelectModality   = "select_modality"
	StateEstimate         = "estimate"
	StateValidateEstimate = "validate_estimate"
	StateBuildContext     = "build_context"
	StateCompute          = "compute"
	StateDone             = "done"
	StateError            = "error"
)

const (
	EventInputAccepted    = "input_accepted"
	EventModalitySelected = "modality_selected"
	EventEstimated        = "estimated"
	EventEstimateValid    = "estimate_valid"
	EventContextReady     = "context_ready"
	EventComputed         = "computed"
	EventFailure          = "failure"
)

type stageDeps interface {
	onEnterSelectModality(ctx context.Context, run *runContext) transitionResult
	onEnterEstimate(ctx context.Context, run *runContext) transitionResult
	onEnterValidateEstimate(ctx context.Context, run *runContext) transitionResult
	onEnterBuildContext(ctx context.Context, run *runContext) transitionResult
	onEnterCompute(ctx context.Context, run *runContext) transitionResult
}

type transitionResult struct {
	Event string
	Err   error
}

func next(event string) transitionResult {
	return transitionResult{Event: event}
}

func fail(err error) transitionResult {
	return transitionResult{Event: EventFailure, Err: err}
}

func newRunFSM(deps stageDeps) *fsm.FSM {
	return fsm.NewFSM(StateInit, runFSMEvents(), runFSMCallbacks(deps))
}

func runFSMEvents() fsm.Events {
	return fsm.Events{
		{Name: EventInputAccepted, Src: []string{StateInit}, Dst: StateSelectModality},
		{Name: EventModalitySelected, Src: []string{StateSelectModality}, Dst: StateEstimate},
		{Name: EventEstimated, Src: []string{StateEstimate}, Dst: StateValidateEstimate},
		{Name: EventEstimateValid, Src: []string{StateValidateEstimate}, Dst: StateBuildContext},
		{Name: EventContextReady, Src: []string{StateBuildContext}, Dst: StateCompute},
		{Name: EventComputed, Src: []string{StateCompute}, Dst: StateDone},
		{
			Name: EventFailure,
			Src: []string{
				StateInit,
				StateSelectModality,
				StateEstimate,
				StateValidateEstimate,
				StateBuildContext,
				StateCompute,
			},
			Dst: StateError,
		},
	}
}

func runFSMCallbacks(deps stageDeps) fsm.Callbacks {
	handlers := map[string]func(context.Context, *runContext) transitionResult{
		StateSelectModality:   deps.onEnterSelectModality,
		StateEstimate:         deps.onEnterEstimate,
		StateValidateEstimate: deps.onEnterValidateEstimate,
		StateBuildContext:     deps.onEnterBuildContext,
		StateCompute:          deps.onEnterCompute,
	}
	callbacks := fsm.Callbacks{
		"enter_" + StateDone:  makeEnterCallback(StateDone, nil),
		"enter_" + StateError: makeEnterCallback(StateError, nil),
	}
	for state, handler := range handlers {
		callbacks["enter_"+state] = makeEnterCallback(state, handler)
	}
	return callbacks
}

func makeEnterCallback(
	state string,
	handler func(context.Context, *runContext) transitionResult,
) fsm.Callback {
	return func(ctx context.Context, e *fsm.Event) {
		run := runFromEvent(ctx, e)
		run.trace = append(run.trace, state)
		logger.FromContext(ctx).Debug("Pipeline stage entered", "stage", state, "event", e.Event)
		if handler == nil {
			return
		}
		started := time.Now()
		result := invokeStage(ctx, state, run, handler)
		logger.FromContext(ctx).Debug(
			"Pipeline stage finished",
			"stage", state,
			"duration_ms", time.Since(started).Milliseconds(),
			"next", result.Event,
		)
		applyTransitionResult(ctx, e, run, state, result)
	}
}

// invokeStage turns a panic inside a stage into a stage failure.
func invokeStage(
	ctx context.Context,
	state string,
	run *runContext,
	handler func(context.Context, *runContext) transitionResult,
) (result transitionResult) {
	defer func() {
		if r := recover(); r != nil {
			logger.FromContext(ctx).Error("Pipeline stage panicked", "stage", state, "panic", r)
			result = fail(fmt.Errorf("panic in stage %s: %v", state, r))
		}
	}()
	return handler(ctx, run)
}

func applyTransitionResult(ctx context.Context, e *fsm.Event, run *runContext, state string, result transitionResult) {
	if result.Err != nil {
		run.err = result.Err
		run.failedStage = state
		result.Event = EventFailure
	}
	if result.Event == "" {
		return
	}
	if err := e.FSM.Event(ctx, result.Event, run); err != nil && run.err == nil {
		run.err = err
		run.failedStage = state
	}
}

func runFromEvent(ctx context.Context, e *fsm.Event) *runContext {
	if e != nil && len(e.Args) > 0 {
		if run, ok := e.Args[0].(*runContext); ok && run != nil {
			return run
		}
	}
	logger.FromContext(ctx).Error("Pipeline run context missing from event args")
	return &runContext{}
}
