package embedder

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// HashingClient is an offline embeddings.EmbedderClient. It projects word
// unigrams and bigrams into a fixed number of buckets with signed feature
// hashing and L2-normalizes the result, so texts sharing words score high
// under cosine similarity.
type HashingClient struct {
	dimension int
}

// NewHashingClient returns a client producing vectors of the given dimension.
func NewHashingClient(dimension int) *HashingClient {
	if dimension <= 0 {
		dimension = 256
	}
	return &HashingClient{dimension: dimension}
}

// CreateEmbedding implements embeddings.EmbedderClient.
func (h *HashingClient) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.embed(text)
	}
	return out, nil
}

func (h *HashingClient) embed(text string) []float32 {
	vec := make([]float64, h.dimension)
	tokens := tokenPattern.FindAllString(strings.ToLower(text), -1)
	for i, tok := range tokens {
		h.add(vec, tok, 1)
		if i > 0 {
			h.add(vec, tokens[i-1]+" "+tok, 0.5)
		}
	}
	norm := 0.0
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	out := make([]float32, h.dimension)
	if norm == 0 {
		return out
	}
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}

func (h *HashingClient) add(vec []float64, feature string, weight float64) {
	hasher := fnv.New64a()
	_, _ = hasher.Write([]byte(feature))
	sum := hasher.Sum64()
	idx := int(sum % uint64(h.dimension))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	vec[idx] += weight
}
