package llmadapter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type recordingModel struct {
	messages []llms.MessageContent
	options  llms.CallOptions
	response *llms.ContentResponse
	err      error
}

func (m *recordingModel) GenerateContent(
	_ context.Context,
	messages []llms.MessageContent,
	options ...llms.CallOption,
) (*llms.ContentResponse, error) {
	m.messages = messages
	for _, opt := range options {
		opt(&m.options)
	}
	return m.response, m.err
}

func (m *recordingModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func TestLangChainAdapter_ConvertMessages(t *testing.T) {
	adapter := NewAdapterForModel(ProviderOpenAI, nil)

	t.Run("Should convert messages with system prompt", func(t *testing.T) {
		req := LLMRequest{
			SystemPrompt: "You are a nutritionist",
			Messages: []Message{
				{Role: RoleUser, Content: "Hello"},
				{Role: RoleAssistant, Content: "Hi there!"},
			},
		}
		messages, err := adapter.convertMessages(&req)
		require.NoError(t, err)
		require.Len(t, messages, 3)
		assert.Equal(t, llms.ChatMessageTypeSystem, messages[0].Role)
		assert.Equal(t, "You are a nutritionist", messages[0].Parts[0].(llms.TextContent).Text)
		assert.Equal(t, llms.ChatMessageTypeHuman, messages[1].Role)
		assert.Equal(t, llms.ChatMessageTypeAI, messages[2].Role)
	})

	t.Run("Should map unknown roles to human", func(t *testing.T) {
		messages, err := adapter.convertMessages(&LLMRequest{Messages: []Message{{Role: "tool", Content: "x"}}})
		require.NoError(t, err)
		assert.Equal(t, llms.ChatMessageTypeHuman, messages[0].Role)
	})
}

func TestLangChainAdapter_ImageParts(t *testing.T) {
	pixel := []byte{0x89, 'P', 'N', 'G'}
	dataURL := ToDataURL("image/png", pixel)

	t.Run("Should keep image URLs for openai compatible providers", func(t *testing.T) {
		adapter := NewAdapterForModel(ProviderOpenAI, nil)
		req := LLMRequest{Messages: []Message{{
			Role:    RoleUser,
			Content: "What is on the plate?",
			Parts:   []ContentPart{ImageURLPart{URL: dataURL, Detail: "high"}},
		}}}
		msgs, err := adapter.convertMessages(&req)
		require.NoError(t, err)
		require.Len(t, msgs[0].Parts, 2)
		assert.Equal(t, "What is on the plate?", msgs[0].Parts[0].(llms.TextContent).Text)
		img, ok := msgs[0].Parts[1].(llms.ImageURLContent)
		require.True(t, ok)
		assert.Equal(t, dataURL, img.URL)
		assert.Equal(t, "high", img.Detail)
	})

	t.Run("Should decode data URLs into binary parts for googleai", func(t *testing.T) {
		adapter := NewAdapterForModel(ProviderGoogle, nil)
		req := LLMRequest{Messages: []Message{{
			Role:  RoleUser,
			Parts: []ContentPart{ImageURLPart{URL: dataURL}},
		}}}
		msgs, err := adapter.convertMessages(&req)
		require.NoError(t, err)
		require.Len(t, msgs[0].Parts, 1)
		bin, ok := msgs[0].Parts[0].(llms.BinaryContent)
		require.True(t, ok)
		assert.Equal(t, "image/png", bin.MIMEType)
		assert.Equal(t, pixel, bin.Data)
	})

	t.Run("Should turn binary images into data URLs for openai", func(t *testing.T) {
		adapter := NewAdapterForModel(ProviderOpenAI, nil)
		req := LLMRequest{Messages: []Message{{
			Role:  RoleUser,
			Parts: []ContentPart{BinaryPart{MIMEType: "image/png", Data: pixel}},
		}}}
		msgs, err := adapter.convertMessages(&req)
		require.NoError(t, err)
		img, ok := msgs[0].Parts[0].(llms.ImageURLContent)
		require.True(t, ok)
		assert.Equal(t, dataURL, img.URL)
	})

	t.Run("Should reject malformed data URLs", func(t *testing.T) {
		adapter := NewAdapterForModel(ProviderOllama, nil)
		req := LLMRequest{Messages: []Message{{
			Role:  RoleUser,
			Parts: []ContentPart{ImageURLPart{URL: "data:image/png;base64,%%%"}},
		}}}
		_, err := adapter.convertMessages(&req)
		require.Error(t, err)
	})

	t.Run("Should report image presence on the request", func(t *testing.T) {
		withImage := LLMRequest{Messages: []Message{{Parts: []ContentPart{ImageURLPart{URL: dataURL}}}}}
		textOnly := LLMRequest{Messages: []Message{{Content: "rice"}}}
		assert.True(t, withImage.HasImage())
		assert.False(t, textOnly.HasImage())
	})
}

func TestLangChainAdapter_GenerateContent(t *testing.T) {
	t.Run("Should pass call options and return the first choice", func(t *testing.T) {
		model := &recordingModel{response: &llms.ContentResponse{Choices: []*llms.ContentChoice{{
			Content:        `{"items":[]}`,
			GenerationInfo: map[string]any{"PromptTokens": 12, "CompletionTokens": 3},
		}}}}
		adapter := NewAdapterForModel(ProviderOpenAI, model)
		resp, err := adapter.GenerateContent(context.Background(), &LLMRequest{
			Messages: []Message{{Role: RoleUser, Content: "rice"}},
			Options:  CallOptions{Temperature: 0.2, MaxTokens: 256, UseJSONMode: true},
		})
		require.NoError(t, err)
		assert.Equal(t, `{"items":[]}`, resp.Content)
		require.NotNil(t, resp.Usage)
		assert.Equal(t, 15, resp.Usage.TotalTokens)
		assert.True(t, model.options.JSONMode)
		assert.Equal(t, 256, model.options.MaxTokens)
		assert.InDelta(t, 0.2, model.options.Temperature, 1e-9)
	})

	t.Run("Should fail on an empty response", func(t *testing.T) {
		adapter := NewAdapterForModel(ProviderOpenAI, &recordingModel{response: &llms.ContentResponse{}})
		_, err := adapter.GenerateContent(context.Background(), &LLMRequest{})
		assert.ErrorIs(t, err, ErrEmptyResponse)
	})

	t.Run("Should wrap provider errors", func(t *testing.T) {
		boom := errors.New("status 503: unavailable")
		adapter := NewAdapterForModel(ProviderOpenAI, &recordingModel{err: boom})
		_, err := adapter.GenerateContent(context.Background(), &LLMRequest{})
		assert.ErrorIs(t, err, boom)
	})
}

func TestCreateLLM(t *testing.T) {
	t.Run("Should reject unsupported providers", func(t *testing.T) {
		_, err := CreateLLM(context.Background(), &ProviderConfig{Provider: "anthropic", Model: "x"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported provider")
	})

	t.Run("Should require a model", func(t *testing.T) {
		_, err := CreateLLM(context.Background(), &ProviderConfig{Provider: ProviderOpenAI})
		require.Error(t, err)
	})

	t.Run("Should build an openai compatible client", func(t *testing.T) {
		model, err := CreateLLM(context.Background(), &ProviderConfig{
			Provider: ProviderOpenAI,
			Model:    "qwen-plus",
			APIKey:   "test-key",
			APIURL:   "http://localhost:9/v1",
		})
		require.NoError(t, err)
		assert.NotNil(t, model)
	})
}
