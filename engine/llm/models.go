package llm

import (
	"context"
	"errors"
	"fmt"

	llmadapter "github.com/compozy/nutrilens/engine/llm/adapter"
	appconfig "github.com/compozy/nutrilens/pkg/config"
)

// Clients owns the provider clients behind a Models binding.
type Clients struct {
	clients []llmadapter.LLMClient
}

// Close releases every client.
func (c *Clients) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	for _, client := range c.clients {
		if err := client.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewModels builds one invoker per role from configuration.
func NewModels(ctx context.Context, cfg *appconfig.LLMConfig) (*Models, *Clients, error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("llm config is required")
	}
	opts := InvokerOptions{
		Timeout:       cfg.Timeout,
		RetryAttempts: cfg.RetryAttempts,
		RetryBackoff:  cfg.RetryBackoff,
		Limiter:       NewLimiter(cfg.MaxConcurrency, cfg.RequestsPerSecond),
	}
	bindings := map[Role]string{
		RoleEstimateVision: cfg.VisionModel,
		RoleEstimateText:   cfg.TextModel,
		RoleCompute:        cfg.ComputeModel,
	}
	clients := &Clients{}
	invokers := make(map[Role]Invoker, len(bindings))
	for _, role := range Roles() {
		model := bindings[role]
		client, err := llmadapter.NewLangChainAdapter(ctx, &llmadapter.ProviderConfig{
			Provider: llmadapter.ProviderName(cfg.Provider),
			Model:    model,
			APIKey:   cfg.APIKey.Value(),
			APIURL:   cfg.BaseURL,
		})
		if err != nil {
			_ = clients.Close()
			return nil, nil, fmt.Errorf("failed to create client for role %s: %w", role, err)
		}
		clients.clients = append(clients.clients, client)
		invoker, err := NewInvoker(role, model, client, opts)
		if err != nil {
			_ = clients.Close()
			return nil, nil, err
		}
		invokers[role] = invoker
	}
	models := &Models{
		EstimateVision: invokers[RoleEstimateVision],
		EstimateText:   invokers[RoleEstimateText],
		Compute:        invokers[RoleCompute],
	}
	return models, clients, nil
}

// DefaultCallOptions derives request options from configuration.
func DefaultCallOptions(cfg *appconfig.LLMConfig) llmadapter.CallOptions {
	if cfg == nil {
		return llmadapter.CallOptions{}
	}
	return llmadapter.CallOptions{
		Temperature: cfg.Temperature,
		MaxTokens:   int32(min(cfg.MaxTokens, 1<<30)), // #nosec G115 -- clamped
	}
}
