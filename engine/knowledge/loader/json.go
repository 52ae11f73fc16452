package loader

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"

	"github.com/compozy/nutrilens/engine/knowledge/chunk"
)

var errInvalidJSON = errors.New("invalid json")

// ReadJSON emits one document per top-level element: array items, or the
// values of a top-level object. String elements are used verbatim, everything
// else is re-encoded as compact JSON.
func ReadJSON(_ context.Context, source string, data []byte) ([]chunk.Document, error) {
	if strings.TrimSpace(string(data)) == "" {
		return nil, nil
	}
	if !gjson.ValidBytes(data) {
		return nil, errInvalidJSON
	}
	root := gjson.ParseBytes(data)
	var docs []chunk.Document
	appendElement := func(key string, value gjson.Result) {
		text := elementText(value)
		if text == "" {
			return
		}
		meta := map[string]any{"element": key}
		docs = append(docs, chunk.Document{Source: source, Text: text, Metadata: meta})
	}
	if !root.IsArray() && !root.IsObject() {
		appendElement("0", root)
		return docs, nil
	}
	index := 0
	root.ForEach(func(key, value gjson.Result) bool {
		name := key.String()
		if root.IsArray() {
			name = strconv.Itoa(index)
		}
		appendElement(name, value)
		index++
		return true
	})
	return docs, nil
}

func elementText(value gjson.Result) string {
	switch value.Type {
	case gjson.String:
		return strings.TrimSpace(value.Str)
	case gjson.Null:
		return ""
	default:
		return strings.TrimSpace(string(pretty.Ugly([]byte(value.Raw))))
	}
}
