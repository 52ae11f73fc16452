package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	llmadapter "github.com/compozy/nutrilens/engine/llm/adapter"
	"github.com/compozy/nutrilens/pkg/logger"
	"github.com/sethvargo/go-retry"
)

const (
	defaultTimeout      = 60 * time.Second
	defaultRetryBackoff = 500 * time.Millisecond
	maxRetryAttempts    = 10
)

// Invoker sends one request to a bound model and returns its text.
type Invoker interface {
	Invoke(ctx context.Context, req *llmadapter.LLMRequest) (string, error)
}

// InvokerOptions controls timeouts and retries for a ClientInvoker.
type InvokerOptions struct {
	Timeout       time.Duration
	RetryAttempts int
	RetryBackoff  time.Duration
	Limiter       *Limiter
}

// ClientInvoker calls an LLMClient with a per-attempt deadline and bounded retries.
type ClientInvoker struct {
	role   Role
	model  string
	client llmadapter.LLMClient
	opts   InvokerOptions
}

// NewInvoker binds client to role.
func NewInvoker(role Role, model string, client llmadapter.LLMClient, opts InvokerOptions) (*ClientInvoker, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("unknown model role %q", role)
	}
	if client == nil {
		return nil, fmt.Errorf("llm client is required for role %s", role)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = defaultRetryBackoff
	}
	if opts.RetryAttempts < 0 || opts.RetryAttempts > maxRetryAttempts {
		opts.RetryAttempts = 1
	}
	return &ClientInvoker{role: role, model: model, client: client, opts: opts}, nil
}

func (i *ClientInvoker) Role() Role {
	return i.role
}

func (i *ClientInvoker) Model() string {
	return i.model
}

// Invoke implements Invoker. Caller cancellation is returned as is and never retried.
func (i *ClientInvoker) Invoke(ctx context.Context, req *llmadapter.LLMRequest) (string, error) {
	log := logger.FromContext(ctx).With("role", string(i.role), "model", i.model)
	start := time.Now()
	backoff := retry.WithMaxRetries(
		uint64(i.opts.RetryAttempts), // #nosec G115 -- bounded in NewInvoker
		retry.WithJitterPercent(20, retry.NewExponential(i.opts.RetryBackoff)),
	)
	attempts := 0
	var content string
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		out, callErr := i.attempt(ctx, req)
		if callErr == nil {
			content = out
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if isRetryableErrorWithContext(ctx, callErr) {
			log.Warn("Model call failed, retrying", "attempt", attempts, "error", callErr)
			return retry.RetryableError(callErr)
		}
		return callErr
	})
	if err == nil {
		recordCall(ctx, i.role, outcomeSuccess, time.Since(start))
		return content, nil
	}
	var timeoutErr *ModelTimeoutError
	if errors.As(err, &timeoutErr) {
		timeoutErr.Attempts = attempts
		recordCall(ctx, i.role, outcomeTimeout, time.Since(start))
		log.Error("Model call timed out", "attempts", attempts, "timeout", i.opts.Timeout)
		return "", timeoutErr
	}
	recordCall(ctx, i.role, outcomeError, time.Since(start))
	if errors.Is(err, context.Canceled) {
		return "", err
	}
	return "", &InvocationError{Role: i.role, Model: i.model, Err: err}
}

func (i *ClientInvoker) attempt(ctx context.Context, req *llmadapter.LLMRequest) (string, error) {
	release, err := i.opts.Limiter.Acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()
	attemptCtx, cancel := context.WithTimeout(ctx, i.opts.Timeout)
	defer cancel()
	resp, err := i.client.GenerateContent(attemptCtx, req)
	if err != nil {
		if ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return "", &ModelTimeoutError{Role: i.role, Model: i.model, Timeout: i.opts.Timeout, Err: err}
		}
		return "", err
	}
	if strings.TrimSpace(resp.Content) == "" {
		return "", llmadapter.ErrEmptyResponse
	}
	return resp.Content, nil
}
