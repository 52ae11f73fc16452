package nutrition

import (
	"errors"
	"fmt"
)

// Pipeline error codes exposed to callers.
const (
	CodeInputMissing      = "INPUT_MISSING"
	CodeSchemaValidation  = "SCHEMA_VALIDATION_ERROR"
	CodeRecognitionFailed = "RECOGNITION_FAILED"
	CodeModelTimeout      = "MODEL_TIMEOUT"
	CodeInternal          = "INTERNAL_PIPELINE_ERROR"
)

var (
	ErrInputMissing      = errors.New("either text or an image is required")
	ErrRecognitionFailed = errors.New("no dish could be recognized in the input")
	ErrInternal          = errors.New("internal pipeline error")
)

// PipelineError is the only error a pipeline run returns. Message is safe to
// show to end users; the cause is kept for logs.
type PipelineError struct {
	Code    string
	Message string
	Stage   string
	cause   error
}

// NewPipelineError wraps cause under code.
func NewPipelineError(code, stage, message string, cause error) *PipelineError {
	return &PipelineError{Code: code, Stage: stage, Message: message, cause: cause}
}

func (e *PipelineError) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
}

func (e *PipelineError) Unwrap() error {
	return e.cause
}

// Is matches the sentinel errors by code so callers can use errors.Is.
func (e *PipelineError) Is(target error) bool {
	switch target {
	case ErrInputMissing:
		return e.Code == CodeInputMissing
	case ErrRecognitionFailed:
		return e.Code == CodeRecognitionFailed
	case ErrInternal:
		return e.Code == CodeInternal
	}
	return false
}
