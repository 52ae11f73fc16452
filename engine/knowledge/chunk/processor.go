package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/compozy/nutrilens/engine/core"
	"github.com/tmc/langchaingo/textsplitter"
)

var newlinePattern = regexp.MustCompile(`\r\n|\r`)

// Processor splits documents into overlapping chunks of bounded size.
type Processor struct {
	settings Settings
	splitter textsplitter.RecursiveCharacter
}

// NewProcessor validates settings and builds a processor.
func NewProcessor(settings Settings) (*Processor, error) {
	if settings.Size <= 0 {
		return nil, errors.New("chunk: size must be greater than zero")
	}
	if settings.Overlap < 0 {
		return nil, errors.New("chunk: overlap cannot be negative")
	}
	if settings.Overlap >= settings.Size {
		return nil, fmt.Errorf("chunk: overlap %d must be smaller than size %d", settings.Overlap, settings.Size)
	}
	if len(settings.Separators) == 0 {
		settings.Separators = DefaultSeparators
	}
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(settings.Size),
		textsplitter.WithChunkOverlap(settings.Overlap),
		textsplitter.WithSeparators(settings.Separators),
	)
	return &Processor{settings: settings, splitter: splitter}, nil
}

// Process splits docs into chunks. Chunk indexes run per source across all of
// its documents so that pages of one PDF never collide.
func (p *Processor) Process(docs []Document) ([]Chunk, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	next := make(map[string]int)
	chunks := make([]Chunk, 0, len(docs))
	for di := range docs {
		doc := docs[di]
		text := p.preprocess(doc.Text)
		if text == "" {
			continue
		}
		segments, err := p.splitter.SplitText(text)
		if err != nil {
			return nil, fmt.Errorf("chunk: split %s: %w", doc.Source, err)
		}
		for _, segment := range segments {
			chunkText := strings.TrimSpace(segment)
			if chunkText == "" {
				continue
			}
			idx := next[doc.Source]
			next[doc.Source] = idx + 1
			hash := hashText(chunkText)
			metadata := core.CloneMap(doc.Metadata)
			if metadata == nil {
				metadata = make(map[string]any)
			}
			metadata["chunk_index"] = idx
			metadata["source"] = doc.Source
			chunks = append(chunks, Chunk{
				ID:       ChunkID(doc.Source, idx, hash),
				Text:     chunkText,
				Hash:     hash,
				Source:   doc.Source,
				Index:    idx,
				Metadata: metadata,
			})
		}
	}
	return chunks, nil
}

// ChunkID derives a stable identifier so re-inserting a chunk overwrites itself.
func ChunkID(source string, index int, hash string) string {
	return hashText(source + "::" + fmt.Sprint(index) + "::" + hash)
}

func (p *Processor) preprocess(text string) string {
	normalized := text
	if p.settings.NormalizeNewlines {
		normalized = newlinePattern.ReplaceAllString(normalized, "\n")
	}
	return strings.TrimSpace(normalized)
}

func hashText(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:16])
}
