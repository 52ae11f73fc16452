package llmadapter

import (
	"context"
)

// Role constants for message roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// LLMRequest represents a request to the LLM, independent of provider
type LLMRequest struct {
	SystemPrompt string
	Messages     []Message
	Options      CallOptions
}

// Message represents a conversation message. Parts are appended after Content.
type Message struct {
	Role    string
	Content string
	Parts   []ContentPart
}

// ContentPart is a non-text message part.
type ContentPart interface {
	isContentPart()
}

// ImageURLPart references an image by URL. Data URLs are accepted.
type ImageURLPart struct {
	URL    string
	Detail string
}

func (ImageURLPart) isContentPart() {}

// BinaryPart carries inline bytes.
type BinaryPart struct {
	MIMEType string
	Data     []byte
}

func (BinaryPart) isContentPart() {}

// CallOptions represents options for the LLM call
type CallOptions struct {
	Temperature float64
	MaxTokens   int32
	UseJSONMode bool
}

// LLMResponse represents the response from the LLM
type LLMResponse struct {
	Content string
	Usage   *Usage
}

// Usage represents token usage information
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// LLMClient is the main interface for LLM interactions
type LLMClient interface {
	// GenerateContent sends a request to the LLM and returns a response
	GenerateContent(ctx context.Context, req *LLMRequest) (*LLMResponse, error)
	// Close cleans up any resources held by the client
	Close() error
}

// HasImage reports whether any message carries an image part.
func (r *LLMRequest) HasImage() bool {
	for _, m := range r.Messages {
		for _, p := range m.Parts {
			switch part := p.(type) {
			case ImageURLPart:
				return true
			case BinaryPart:
				if isImageMIME(part.MIMEType) {
					return true
				}
			}
		}
	}
	return false
}
