package loader

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/compozy/nutrilens/engine/knowledge/chunk"
)

// ReadPDF emits one document per page that has extractable text.
func ReadPDF(ctx context.Context, source string, data []byte) (docs []chunk.Document, err error) {
	// The pdf package panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			docs = nil
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	total := reader.NumPage()
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract page %d: %w", i, err)
		}
		text = strings.TrimSpace(normalizeNewlines(text))
		if text == "" {
			continue
		}
		docs = append(docs, chunk.Document{
			Source:   source,
			Text:     text,
			Metadata: map[string]any{"page": i, "total_pages": total},
		})
	}
	return docs, nil
}
