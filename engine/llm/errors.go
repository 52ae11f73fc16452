package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"time"

	"github.com/compozy/nutrilens/pkg/logger"
)

var transientRetryPattern = regexp.MustCompile(
	`(?i)(timeout|temporarily|try again|rate limit|too many requests|\b429\b|\b50[0234]\b|unavailable|overloaded)`,
)

// ModelTimeoutError reports that a model call exceeded its per-attempt deadline.
type ModelTimeoutError struct {
	Role     Role
	Model    string
	Timeout  time.Duration
	Attempts int
	Err      error
}

func (e *ModelTimeoutError) Error() string {
	return fmt.Sprintf("model %s (%s) timed out after %s (attempts: %d)", e.Model, e.Role, e.Timeout, e.Attempts)
}

func (e *ModelTimeoutError) Unwrap() error {
	return e.Err
}

func (e *ModelTimeoutError) Retryable() bool {
	return true
}

// InvocationError wraps a non-timeout model failure.
type InvocationError struct {
	Role  Role
	Model string
	Err   error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("model %s (%s) invocation failed: %v", e.Model, e.Role, e.Err)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}

func isRetryableErrorWithContext(ctx context.Context, err error) bool {
	retryable := isRetryableError(err)
	log := logger.FromContext(ctx)
	if retryable {
		log.Debug("Error is retryable, will retry", "error_type", fmt.Sprintf("%T", err), "error", err)
	} else {
		log.Debug("Error is not retryable", "error_type", fmt.Sprintf("%T", err), "error", err)
	}
	return retryable
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var retryableErr interface{ Retryable() bool }
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return transientRetryPattern.MatchString(err.Error())
}
