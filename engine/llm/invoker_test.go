package llm

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	llmadapter "github.com/compozy/nutrilens/engine/llm/adapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClient struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, call int) (*llmadapter.LLMResponse, error)
}

func (s *stubClient) GenerateContent(ctx context.Context, _ *llmadapter.LLMRequest) (*llmadapter.LLMResponse, error) {
	s.mu.Lock()
	s.calls++
	call := s.calls
	s.mu.Unlock()
	return s.fn(ctx, call)
}

func (s *stubClient) Close() error { return nil }

func (s *stubClient) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func blockUntilDone(ctx context.Context, _ int) (*llmadapter.LLMResponse, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func newTestInvoker(t *testing.T, client llmadapter.LLMClient, opts InvokerOptions) *ClientInvoker {
	t.Helper()
	if opts.RetryBackoff == 0 {
		opts.RetryBackoff = time.Millisecond
	}
	inv, err := NewInvoker(RoleEstimateText, "qwen-plus", client, opts)
	require.NoError(t, err)
	return inv
}

func TestClientInvoker_Invoke(t *testing.T) {
	req := &llmadapter.LLMRequest{Messages: []llmadapter.Message{{Role: llmadapter.RoleUser, Content: "rice"}}}

	t.Run("Should return the model content", func(t *testing.T) {
		client := &stubClient{fn: func(context.Context, int) (*llmadapter.LLMResponse, error) {
			return &llmadapter.LLMResponse{Content: `{"items":[]}`}, nil
		}}
		out, err := newTestInvoker(t, client, InvokerOptions{}).Invoke(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, `{"items":[]}`, out)
		assert.Equal(t, 1, client.Calls())
	})

	t.Run("Should retry a transient failure once", func(t *testing.T) {
		client := &stubClient{fn: func(_ context.Context, call int) (*llmadapter.LLMResponse, error) {
			if call == 1 {
				return nil, errors.New("status 503: service temporarily unavailable")
			}
			return &llmadapter.LLMResponse{Content: "ok"}, nil
		}}
		out, err := newTestInvoker(t, client, InvokerOptions{RetryAttempts: 1}).Invoke(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "ok", out)
		assert.Equal(t, 2, client.Calls())
	})

	t.Run("Should not retry permanent failures", func(t *testing.T) {
		client := &stubClient{fn: func(context.Context, int) (*llmadapter.LLMResponse, error) {
			return nil, errors.New("invalid api key")
		}}
		_, err := newTestInvoker(t, client, InvokerOptions{RetryAttempts: 3}).Invoke(context.Background(), req)
		var invErr *InvocationError
		require.ErrorAs(t, err, &invErr)
		assert.Equal(t, RoleEstimateText, invErr.Role)
		assert.Equal(t, 1, client.Calls())
	})

	t.Run("Should return ModelTimeoutError after exhausting retries", func(t *testing.T) {
		client := &stubClient{fn: blockUntilDone}
		inv := newTestInvoker(t, client, InvokerOptions{Timeout: 20 * time.Millisecond, RetryAttempts: 1})
		_, err := inv.Invoke(context.Background(), req)
		var timeoutErr *ModelTimeoutError
		require.ErrorAs(t, err, &timeoutErr)
		assert.Equal(t, 2, timeoutErr.Attempts)
		assert.Equal(t, 20*time.Millisecond, timeoutErr.Timeout)
		assert.True(t, timeoutErr.Retryable())
		assert.Equal(t, 2, client.Calls())
	})

	t.Run("Should not retry when the caller cancels", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		client := &stubClient{fn: func(ctx context.Context, call int) (*llmadapter.LLMResponse, error) {
			cancel()
			return blockUntilDone(ctx, call)
		}}
		inv := newTestInvoker(t, client, InvokerOptions{Timeout: time.Second, RetryAttempts: 3})
		_, err := inv.Invoke(ctx, req)
		require.ErrorIs(t, err, context.Canceled)
		var timeoutErr *ModelTimeoutError
		assert.False(t, errors.As(err, &timeoutErr))
		assert.Equal(t, 1, client.Calls())
	})

	t.Run("Should treat blank content as a failure", func(t *testing.T) {
		client := &stubClient{fn: func(context.Context, int) (*llmadapter.LLMResponse, error) {
			return &llmadapter.LLMResponse{Content: "  "}, nil
		}}
		_, err := newTestInvoker(t, client, InvokerOptions{}).Invoke(context.Background(), req)
		assert.ErrorIs(t, err, llmadapter.ErrEmptyResponse)
	})
}

func TestNewInvoker(t *testing.T) {
	t.Run("Should reject unknown roles", func(t *testing.T) {
		_, err := NewInvoker(Role("summarize"), "m", &stubClient{}, InvokerOptions{})
		require.Error(t, err)
	})

	t.Run("Should require a client", func(t *testing.T) {
		_, err := NewInvoker(RoleCompute, "m", nil, InvokerOptions{})
		require.Error(t, err)
	})

	t.Run("Should apply defaults", func(t *testing.T) {
		inv, err := NewInvoker(RoleCompute, "m", &stubClient{}, InvokerOptions{RetryAttempts: -1})
		require.NoError(t, err)
		assert.Equal(t, defaultTimeout, inv.opts.Timeout)
		assert.Equal(t, 1, inv.opts.RetryAttempts)
		assert.Equal(t, RoleCompute, inv.Role())
	})
}

func TestIsRetryableError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"timeout error", &ModelTimeoutError{}, true},
		{"rate limited", errors.New("429 Too Many Requests"), true},
		{"bad gateway", errors.New("upstream returned 502"), true},
		{"bad request", errors.New("400 invalid request"), false},
	}
	for _, tc := range cases {
		t.Run("Should classify "+tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, isRetryableError(tc.err))
		})
	}
}

func TestLimiter(t *testing.T) {
	t.Run("Should be disabled without limits", func(t *testing.T) {
		assert.Nil(t, NewLimiter(0, 0))
		release, err := (*Limiter)(nil).Acquire(context.Background())
		require.NoError(t, err)
		release()
	})

	t.Run("Should cap concurrent calls", func(t *testing.T) {
		limiter := NewLimiter(2, 0)
		var active, peak atomic.Int32
		var wg sync.WaitGroup
		for range 6 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				release, err := limiter.Acquire(context.Background())
				if err != nil {
					return
				}
				n := active.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				active.Add(-1)
				release()
			}()
		}
		wg.Wait()
		assert.LessOrEqual(t, peak.Load(), int32(2))
	})

	t.Run("Should stop waiting when the context ends", func(t *testing.T) {
		limiter := NewLimiter(1, 0)
		release, err := limiter.Acquire(context.Background())
		require.NoError(t, err)
		defer release()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		_, err = limiter.Acquire(ctx)
		require.Error(t, err)
	})
}

func TestModels(t *testing.T) {
	t.Run("Should resolve each role", func(t *testing.T) {
		vision := newTestInvoker(t, &stubClient{}, InvokerOptions{})
		models := &Models{EstimateVision: vision, EstimateText: vision, Compute: vision}
		require.NoError(t, models.Validate())
		assert.Equal(t, vision, models.For(RoleEstimateVision))
		assert.Nil(t, models.For(Role("other")))
	})

	t.Run("Should report unbound roles", func(t *testing.T) {
		models := &Models{}
		err := models.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "estimate_vision")
	})
}
