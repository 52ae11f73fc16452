package chunk

// Document represents raw content produced by a loader prior to chunking.
type Document struct {
	// Source is the path of the file the content came from.
	Source   string
	Text     string
	Metadata map[string]any
}

// Settings configures chunking behavior.
type Settings struct {
	Size              int
	Overlap           int
	Separators        []string
	NormalizeNewlines bool
}

// Chunk is one retrievable slice of a source document.
type Chunk struct {
	ID       string
	Text     string
	Hash     string
	Source   string
	Index    int
	Metadata map[string]any
}

// DefaultSeparators are tried longest first; the empty separator splits on characters.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}
