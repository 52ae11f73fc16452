package llmadapter

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"
)

// ErrEmptyResponse is returned when the provider produces no choices.
var ErrEmptyResponse = errors.New("empty response from LLM")

// LangChainAdapter adapts a langchaingo model to LLMClient.
type LangChainAdapter struct {
	model    llms.Model
	provider ProviderName
}

// NewLangChainAdapter creates the provider model and wraps it.
func NewLangChainAdapter(ctx context.Context, config *ProviderConfig) (*LangChainAdapter, error) {
	model, err := CreateLLM(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM model: %w", err)
	}
	return NewAdapterForModel(config.Provider, model), nil
}

// NewAdapterForModel wraps an existing model; the provider decides how image parts are sent.
func NewAdapterForModel(provider ProviderName, model llms.Model) *LangChainAdapter {
	return &LangChainAdapter{model: model, provider: provider}
}

// GenerateContent implements LLMClient.
func (a *LangChainAdapter) GenerateContent(ctx context.Context, req *LLMRequest) (*LLMResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("llm request is required")
	}
	messages, err := a.convertMessages(req)
	if err != nil {
		return nil, err
	}
	options := a.buildCallOptions(req)
	response, err := a.model.GenerateContent(ctx, messages, options...)
	if err != nil {
		return nil, fmt.Errorf("langchain GenerateContent failed: %w", err)
	}
	return a.convertResponse(response)
}

// Close implements LLMClient.
func (a *LangChainAdapter) Close() error {
	return nil
}

func (a *LangChainAdapter) convertMessages(req *LLMRequest) ([]llms.MessageContent, error) {
	messages := make([]llms.MessageContent, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, req.SystemPrompt))
	}
	for _, msg := range req.Messages {
		content := llms.MessageContent{Role: a.mapMessageRole(msg.Role)}
		if msg.Content != "" {
			content.Parts = append(content.Parts, llms.TextContent{Text: msg.Content})
		}
		for _, part := range msg.Parts {
			converted, err := a.convertPart(part)
			if err != nil {
				return nil, err
			}
			content.Parts = append(content.Parts, converted)
		}
		messages = append(messages, content)
	}
	return messages, nil
}

// convertPart sends images as URLs to OpenAI-compatible providers and as raw bytes to the rest.
func (a *LangChainAdapter) convertPart(part ContentPart) (llms.ContentPart, error) {
	switch p := part.(type) {
	case ImageURLPart:
		if a.wantsBinaryImages() && IsDataURL(p.URL) {
			mimeType, data, err := ParseDataURL(p.URL)
			if err != nil {
				return nil, fmt.Errorf("invalid image data url: %w", err)
			}
			return llms.BinaryContent{MIMEType: mimeType, Data: data}, nil
		}
		return llms.ImageURLContent{URL: p.URL, Detail: p.Detail}, nil
	case BinaryPart:
		if !a.wantsBinaryImages() && isImageMIME(p.MIMEType) {
			return llms.ImageURLContent{URL: ToDataURL(p.MIMEType, p.Data)}, nil
		}
		return llms.BinaryContent{MIMEType: p.MIMEType, Data: p.Data}, nil
	default:
		return nil, fmt.Errorf("unsupported content part %T", part)
	}
}

func (a *LangChainAdapter) wantsBinaryImages() bool {
	return a.provider == ProviderGoogle || a.provider == ProviderOllama
}

func (a *LangChainAdapter) mapMessageRole(role string) llms.ChatMessageType {
	switch role {
	case RoleSystem:
		return llms.ChatMessageTypeSystem
	case RoleUser:
		return llms.ChatMessageTypeHuman
	case RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}

func (a *LangChainAdapter) buildCallOptions(req *LLMRequest) []llms.CallOption {
	var options []llms.CallOption
	if req.Options.Temperature > 0 {
		options = append(options, llms.WithTemperature(req.Options.Temperature))
	}
	if req.Options.MaxTokens > 0 {
		options = append(options, llms.WithMaxTokens(int(req.Options.MaxTokens)))
	}
	if req.Options.UseJSONMode {
		options = append(options, llms.WithJSONMode())
	}
	return options
}

func (a *LangChainAdapter) convertResponse(resp *llms.ContentResponse) (*LLMResponse, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}
	choice := resp.Choices[0]
	return &LLMResponse{
		Content: choice.Content,
		Usage:   extractUsage(choice.GenerationInfo),
	}, nil
}

func extractUsage(info map[string]any) *Usage {
	if len(info) == 0 {
		return nil
	}
	usage := &Usage{
		PromptTokens:     intFrom(info["PromptTokens"]),
		CompletionTokens: intFrom(info["CompletionTokens"]),
		TotalTokens:      intFrom(info["TotalTokens"]),
	}
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}
	if usage.TotalTokens == 0 {
		return nil
	}
	return usage
}

func intFrom(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
