package retriever

import (
	"context"
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/compozy/nutrilens/pkg/logger"
)

const defaultEncoding = "cl100k_base"

type TokenEstimator interface {
	EstimateTokens(ctx context.Context, text string) int
}

type runeEstimator struct{}

func (r runeEstimator) EstimateTokens(_ context.Context, text string) int {
	count := len([]rune(text))
	if count == 0 {
		return 0
	}
	tokens := count / 4
	if tokens == 0 {
		return 1
	}
	return tokens
}

type tiktokenEstimator struct {
	tke *tiktoken.Tiktoken
}

func (t *tiktokenEstimator) EstimateTokens(_ context.Context, text string) int {
	return len(t.tke.Encode(text, nil, nil))
}

// NewTiktokenEstimator resolves encodingOrModel as an encoding name first, then as a model name.
func NewTiktokenEstimator(encodingOrModel string) (TokenEstimator, error) {
	if encodingOrModel == "" {
		encodingOrModel = defaultEncoding
	}
	tke, err := tiktoken.GetEncoding(encodingOrModel)
	if err != nil {
		tke, err = tiktoken.EncodingForModel(encodingOrModel)
		if err != nil {
			return nil, fmt.Errorf("retriever: resolve encoding %q: %w", encodingOrModel, err)
		}
	}
	return &tiktokenEstimator{tke: tke}, nil
}

// NewEstimator returns a tiktoken estimator, or the rune heuristic when the
// encoding tables cannot be loaded.
func NewEstimator(ctx context.Context, encodingOrModel string) TokenEstimator {
	estimator, err := NewTiktokenEstimator(encodingOrModel)
	if err != nil {
		logger.FromContext(ctx).Warn("Token encoding unavailable, using rune estimate", "error", err)
		return runeEstimator{}
	}
	return estimator
}
