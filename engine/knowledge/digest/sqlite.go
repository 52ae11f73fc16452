package digest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/compozy/nutrilens/engine/infra/sqlite"
)

const sqliteTable = "ingested_digests"

type sqliteStore struct {
	store *sqlite.Store
	qb    sq.StatementBuilderType
}

func newSQLiteStore(ctx context.Context, path string) (*sqliteStore, error) {
	store, err := sqlite.NewStore(ctx, &sqlite.Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := sqlite.ApplyMigrations(ctx, store.DB()); err != nil {
		store.Close(ctx)
		return nil, err
	}
	return &sqliteStore{
		store: store,
		qb:    sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}, nil
}

func (s *sqliteStore) Has(ctx context.Context, digest string) (bool, error) {
	query, args, err := s.qb.Select("1").From(sqliteTable).Where(sq.Eq{"digest": digest}).Limit(1).ToSql()
	if err != nil {
		return false, fmt.Errorf("digest: build lookup: %w", err)
	}
	var one int
	err = s.store.DB().QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("digest: lookup %s: %w", digest, err)
	}
	return true, nil
}

func (s *sqliteStore) Add(ctx context.Context, record Record) error {
	record, err := normalize(record)
	if err != nil {
		return err
	}
	query, args, err := s.qb.Insert(sqliteTable).
		Columns("digest", "source", "ingested_at").
		Values(record.Digest, record.Source, record.IngestedAt).
		Suffix("ON CONFLICT (digest) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("digest: build insert: %w", err)
	}
	if _, err := s.store.DB().ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("digest: insert %s: %w", record.Digest, err)
	}
	return nil
}

func (s *sqliteStore) Close(ctx context.Context) error {
	return s.store.Close(ctx)
}
