package loader

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/afero"

	"github.com/compozy/nutrilens/engine/knowledge/chunk"
)

// MaxFileSizeBytes caps how much of a single knowledge file is read.
const MaxFileSizeBytes = 32 * 1024 * 1024

// Reader turns raw file bytes into documents. Returning no documents is not an error.
type Reader func(ctx context.Context, source string, data []byte) ([]chunk.Document, error)

// Registry dispatches files to readers by extension.
type Registry struct {
	fs      afero.Fs
	readers map[string]Reader
}

// NewRegistry registers the text, markdown, PDF and JSON readers.
func NewRegistry(fs afero.Fs) *Registry {
	r := &Registry{fs: fs, readers: make(map[string]Reader)}
	r.Register(".txt", ReadText)
	r.Register(".md", ReadText)
	r.Register(".pdf", ReadPDF)
	r.Register(".json", ReadJSON)
	return r
}

// Register binds a reader to a file extension, replacing any previous binding.
func (r *Registry) Register(ext string, reader Reader) {
	r.readers[normalizeExt(ext)] = reader
}

// Supports reports whether a reader is registered for the path's extension.
func (r *Registry) Supports(path string) bool {
	_, ok := r.readers[normalizeExt(filepath.Ext(path))]
	return ok
}

// Extensions lists the registered extensions in sorted order.
func (r *Registry) Extensions() []string {
	out := make([]string, 0, len(r.readers))
	for ext := range r.readers {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Load reads path and runs the matching reader. Every document carries the
// detected content type and the extension in its metadata.
func (r *Registry) Load(ctx context.Context, path string) ([]chunk.Document, error) {
	ext := normalizeExt(filepath.Ext(path))
	reader, ok := r.readers[ext]
	if !ok {
		return nil, fmt.Errorf("loader: no reader for extension %q", ext)
	}
	data, err := r.readFile(path)
	if err != nil {
		return nil, err
	}
	docs, err := reader(ctx, path, data)
	if err != nil {
		return nil, fmt.Errorf("loader: read %s: %w", path, err)
	}
	contentType := mimetype.Detect(data).String()
	out := docs[:0]
	for i := range docs {
		if strings.TrimSpace(docs[i].Text) == "" {
			continue
		}
		if docs[i].Metadata == nil {
			docs[i].Metadata = make(map[string]any, 2)
		}
		docs[i].Metadata["content_type"] = contentType
		docs[i].Metadata["extension"] = ext
		out = append(out, docs[i])
	}
	return out, nil
}

func (r *Registry) readFile(path string) ([]byte, error) {
	f, err := r.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loader: open %s: %w", path, err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, MaxFileSizeBytes+1))
	if err != nil {
		return nil, fmt.Errorf("loader: read %s: %w", path, err)
	}
	if len(data) > MaxFileSizeBytes {
		return nil, fmt.Errorf("loader: %s exceeds maximum size of %d bytes", path, MaxFileSizeBytes)
	}
	return data, nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
