package pipeline

import (
	"errors"

	"github.com/compozy/nutrilens/engine/llm"
	"github.com/compozy/nutrilens/engine/llm/structured"
	"github.com/compozy/nutrilens/engine/nutrition"
)

const (
	inputMissingMessage = "Provide a meal description or an image."
	recognitionMessage  = "No dish could be recognized in the input."
	schemaMessage       = "The model returned an answer that could not be understood."
	timeoutMessage      = "The model did not respond in time. Please try again."
	internalMessage     = "The analysis could not be completed."
)

// classify maps a stage failure onto the public error taxonomy.
func classify(stage string, err error) *nutrition.PipelineError {
	var perr *nutrition.PipelineError
	if errors.As(err, &perr) {
		return perr
	}
	var schemaErr *structured.SchemaValidationError
	var timeoutErr *llm.ModelTimeoutError
	switch {
	case errors.Is(err, nutrition.ErrInputMissing):
		return nutrition.NewPipelineError(nutrition.CodeInputMissing, stage, inputMissingMessage, err)
	case errors.Is(err, nutrition.ErrRecognitionFailed):
		return nutrition.NewPipelineError(nutrition.CodeRecognitionFailed, stage, recognitionMessage, err)
	case errors.As(err, &schemaErr):
		return nutrition.NewPipelineError(nutrition.CodeSchemaValidation, stage, schemaMessage, err)
	case errors.As(err, &timeoutErr):
		return nutrition.NewPipelineError(nutrition.CodeModelTimeout, stage, timeoutMessage, err)
	default:
		return nutrition.NewPipelineError(nutrition.CodeInternal, stage, internalMessage, err)
	}
}
