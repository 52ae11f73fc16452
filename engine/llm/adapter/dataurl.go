package llmadapter

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var errNotDataURL = errors.New("not a data url")

// ParseDataURL decodes "data:<mime>[;base64],<payload>".
func ParseDataURL(raw string) (mimeType string, data []byte, err error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(raw), "data:")
	if !ok {
		return "", nil, errNotDataURL
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("data url: missing payload separator")
	}
	isBase64 := false
	if before, found := strings.CutSuffix(meta, ";base64"); found {
		meta = before
		isBase64 = true
	}
	mimeType, _, _ = strings.Cut(meta, ";")
	if mimeType == "" {
		mimeType = "text/plain"
	}
	if isBase64 {
		data, err = base64.StdEncoding.DecodeString(payload)
		if err != nil {
			data, err = base64.RawStdEncoding.DecodeString(payload)
		}
		if err != nil {
			return "", nil, fmt.Errorf("data url: decode base64: %w", err)
		}
		return mimeType, data, nil
	}
	decoded, err := url.PathUnescape(payload)
	if err != nil {
		return "", nil, fmt.Errorf("data url: unescape payload: %w", err)
	}
	return mimeType, []byte(decoded), nil
}

// ToDataURL encodes data as a base64 data URL.
func ToDataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// IsDataURL reports whether raw uses the data scheme.
func IsDataURL(raw string) bool {
	return strings.HasPrefix(strings.TrimSpace(raw), "data:")
}

func isImageMIME(mimeType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mimeType)), "image/")
}
