package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrations(t *testing.T) {
	t.Run("Should create the ingested digests table", func(t *testing.T) {
		ctx := t.Context()
		s, err := NewStore(ctx, &Config{Path: MemoryPath})
		require.NoError(t, err)
		defer s.Close(ctx)
		require.NoError(t, ApplyMigrations(ctx, s.DB()))

		var name string
		err = s.DB().QueryRowContext(
			ctx,
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'ingested_digests'",
		).Scan(&name)
		require.NoError(t, err)
		assert.Equal(t, "ingested_digests", name)
	})
	t.Run("Should be idempotent across reopen", func(t *testing.T) {
		ctx := t.Context()
		path := filepath.Join(t.TempDir(), "digests.db")
		for range 2 {
			s, err := NewStore(ctx, &Config{Path: path})
			require.NoError(t, err)
			require.NoError(t, ApplyMigrations(ctx, s.DB()))
			require.NoError(t, s.Close(ctx))
		}
	})
}
