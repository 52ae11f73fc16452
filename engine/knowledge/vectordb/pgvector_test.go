package vectordb

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPGStore(t *testing.T, ensureIndex bool) (*pgStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	mock.ExpectExec("CREATE EXTENSION IF NOT EXISTS vector").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "nutrition_chunks"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	if ensureIndex {
		mock.ExpectExec("CREATE INDEX IF NOT EXISTS").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	}
	store, err := newPGStoreWithPool(context.Background(), mock, &Config{
		ID:          "pg",
		Provider:    ProviderPGVector,
		DSN:         "postgres://unused",
		Dimension:   3,
		EnsureIndex: ensureIndex,
	})
	require.NoError(t, err)
	return store, mock
}

func TestPGStore(t *testing.T) {
	ctx := context.Background()
	t.Run("Should create schema and index on start", func(t *testing.T) {
		_, mock := newMockPGStore(t, true)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Should upsert records inside a transaction", func(t *testing.T) {
		store, mock := newMockPGStore(t, false)
		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO "nutrition_chunks"`).
			WithArgs("c1", pgxmock.AnyArg(), "Tofu 76 kcal", pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec(`INSERT INTO "nutrition_chunks"`).
			WithArgs("c2", pgxmock.AnyArg(), "Egg 155 kcal", pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()
		err := store.Upsert(ctx, []Record{
			{ID: "c1", Text: "Tofu 76 kcal", Embedding: []float32{1, 0, 0}},
			{ID: "c2", Text: "Egg 155 kcal", Embedding: []float32{0, 1, 0}},
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Should roll back when a row fails", func(t *testing.T) {
		store, mock := newMockPGStore(t, false)
		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO "nutrition_chunks"`).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()
		err := store.Upsert(ctx, []Record{{ID: "c1", Embedding: []float32{1, 0, 0}}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disk full")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Should reject wrong dimensions before touching the database", func(t *testing.T) {
		store, mock := newMockPGStore(t, false)
		err := store.Upsert(ctx, []Record{{ID: "c1", Embedding: []float32{1}}})
		require.Error(t, err)
		_, err = store.Search(ctx, []float32{1}, SearchOptions{})
		require.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Should search with the score floor and decode metadata", func(t *testing.T) {
		store, mock := newMockPGStore(t, false)
		rows := pgxmock.NewRows([]string{"id", "document", "metadata", "score"}).
			AddRow("c2", "Egg 155 kcal", []byte(`{"source":"eggs.txt"}`), 0.8).
			AddRow("c1", "Tofu 76 kcal", []byte(`{"source":"tofu.txt"}`), 0.9)
		mock.ExpectQuery(`SELECT id, document, metadata, 1 - \(embedding <=> \$1\) AS score FROM "nutrition_chunks"`).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), 0.25, pgxmock.AnyArg()).
			WillReturnRows(rows)
		matches, err := store.Search(ctx, []float32{1, 0, 0}, SearchOptions{TopK: 2, MinScore: 0.25})
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.Equal(t, "c1", matches[0].ID)
		assert.Equal(t, "tofu.txt", matches[0].Metadata["source"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Should count rows", func(t *testing.T) {
		store, mock := newMockPGStore(t, false)
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM "nutrition_chunks"`).
			WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(7))
		count, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 7, count)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
