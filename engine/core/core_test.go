package core

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError(t *testing.T) {
	t.Run("Should wrap the cause and expose the code", func(t *testing.T) {
		cause := errors.New("dial tcp: refused")
		err := NewError(cause, "INDEX_WRITE_FAILED", map[string]any{"source": "a.txt"})
		wrapped := fmt.Errorf("ingest: %w", err)
		assert.ErrorIs(t, wrapped, cause)
		assert.Equal(t, "INDEX_WRITE_FAILED", ErrorCode(wrapped))
		assert.Equal(t, "INDEX_WRITE_FAILED: dial tcp: refused", err.Error())
		m := err.AsMap()
		assert.Equal(t, "a.txt", m["details"].(map[string]any)["source"])
	})

	t.Run("Should return empty code for foreign errors", func(t *testing.T) {
		assert.Empty(t, ErrorCode(errors.New("plain")))
	})
}

func TestProblem_Document(t *testing.T) {
	t.Run("Should fill defaults", func(t *testing.T) {
		doc := (&Problem{
			Status: http.StatusBadRequest,
			Detail: "text or image is required",
			Code:   "INPUT_MISSING",
		}).Document()
		require.Equal(t, http.StatusBadRequest, doc.Status)
		assert.Equal(t, "Bad Request", doc.Title)
		assert.Equal(t, "about:blank", doc.Type)
		assert.Equal(t, "INPUT_MISSING", doc.Code)
	})

	t.Run("Should default to internal server error", func(t *testing.T) {
		doc := NormalizeProblem(nil).Document()
		assert.Equal(t, http.StatusInternalServerError, doc.Status)
		assert.Equal(t, "Internal Server Error", doc.Title)
	})
}

func TestCloneMap(t *testing.T) {
	t.Run("Should copy without aliasing the source", func(t *testing.T) {
		src := map[string]any{"a": 1}
		out := CloneMap(src)
		out["a"] = 2
		assert.Equal(t, 1, src["a"])
		assert.Nil(t, CloneMap(nil))
	})
}
