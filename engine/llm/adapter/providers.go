package llmadapter

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// ProviderName identifies a model backend.
type ProviderName string

const (
	ProviderOpenAI ProviderName = "openai"
	ProviderOllama ProviderName = "ollama"
	ProviderGoogle ProviderName = "googleai"
)

// ProviderConfig selects one model on one provider.
type ProviderConfig struct {
	Provider ProviderName
	Model    string
	APIKey   string
	APIURL   string
}

// CreateLLM builds the langchaingo model for the provider configuration.
func CreateLLM(ctx context.Context, p *ProviderConfig) (llms.Model, error) {
	if p == nil {
		return nil, fmt.Errorf("provider config is required")
	}
	if p.Model == "" {
		return nil, fmt.Errorf("model is required for provider %s", p.Provider)
	}
	switch p.Provider {
	case ProviderOpenAI:
		return createOpenAILLM(p)
	case ProviderOllama:
		return createOllamaLLM(p)
	case ProviderGoogle:
		return createGoogleLLM(ctx, p)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", p.Provider)
	}
}

// createOpenAILLM also serves OpenAI-compatible endpoints such as DashScope.
func createOpenAILLM(p *ProviderConfig) (llms.Model, error) {
	opts := []openai.Option{
		openai.WithModel(p.Model),
	}
	if p.APIKey != "" {
		opts = append(opts, openai.WithToken(p.APIKey))
	}
	if p.APIURL != "" {
		opts = append(opts, openai.WithBaseURL(p.APIURL))
	}
	return openai.New(opts...)
}

func createOllamaLLM(p *ProviderConfig) (llms.Model, error) {
	opts := []ollama.Option{
		ollama.WithModel(p.Model),
	}
	if p.APIURL != "" {
		opts = append(opts, ollama.WithServerURL(p.APIURL))
	}
	return ollama.New(opts...)
}

func createGoogleLLM(ctx context.Context, p *ProviderConfig) (llms.Model, error) {
	opts := []googleai.Option{
		googleai.WithDefaultModel(p.Model),
	}
	if p.APIKey != "" {
		opts = append(opts, googleai.WithAPIKey(p.APIKey))
	}
	if p.APIURL != "" {
		return nil, fmt.Errorf("googleai does not support custom API URL")
	}
	return googleai.New(ctx, opts...)
}
