package vectordb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

// pgPool is the subset of *pgxpool.Pool the store needs.
type pgPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

const defaultPGTable = "nutrition_chunks"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type pgStore struct {
	pool       pgPool
	tableIdent string
	indexIdent string
	dimension  int
	ensureIdx  bool
}

type pgMatchRow struct {
	ID       string  `db:"id"`
	Document string  `db:"document"`
	Metadata []byte  `db:"metadata"`
	Score    float64 `db:"score"`
}

func newPGStore(ctx context.Context, cfg *Config) (Store, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("vector_db %q: failed to connect to postgres: %w", cfg.ID, err)
	}
	store, err := newPGStoreWithPool(ctx, pool, cfg)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

func newPGStoreWithPool(ctx context.Context, pool pgPool, cfg *Config) (*pgStore, error) {
	table := cfg.Table
	if table == "" {
		table = defaultPGTable
	}
	store := &pgStore{
		pool:       pool,
		tableIdent: pgx.Identifier{table}.Sanitize(),
		indexIdent: pgx.Identifier{table + "_embedding_idx"}.Sanitize(),
		dimension:  cfg.Dimension,
		ensureIdx:  cfg.EnsureIndex,
	}
	if err := store.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (p *pgStore) ensureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("pgvector: enable extension: %w", err)
	}
	createTable := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		embedding vector(%d),
		document TEXT,
		metadata JSONB,
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	)`, p.tableIdent, p.dimension)
	if _, err := p.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("pgvector: create table: %w", err)
	}
	if p.ensureIdx {
		createIndex := fmt.Sprintf(
			"CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding vector_cosine_ops)",
			p.indexIdent,
			p.tableIdent,
		)
		if _, err := p.pool.Exec(ctx, createIndex); err != nil {
			return fmt.Errorf("pgvector: create index: %w", err)
		}
	}
	return nil
}

func (p *pgStore) Upsert(ctx context.Context, records []Record) (err error) {
	if len(records) == 0 {
		return nil
	}
	for i := range records {
		if len(records[i].Embedding) != p.dimension {
			return fmt.Errorf(
				"pgvector: record %q dimension mismatch (got %d want %d)",
				records[i].ID,
				len(records[i].Embedding),
				p.dimension,
			)
		}
	}
	tx, txErr := p.pool.Begin(ctx)
	if txErr != nil {
		return fmt.Errorf("pgvector: begin tx: %w", txErr)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = fmt.Errorf("pgvector: rollback failed: %w; original error: %v", rbErr, err)
			}
			return
		}
		if commitErr := tx.Commit(ctx); commitErr != nil {
			err = fmt.Errorf("pgvector: commit: %w", commitErr)
		}
	}()
	now := time.Now().UTC()
	for i := range records {
		rec := records[i]
		metadata, marshalErr := json.Marshal(rec.Metadata)
		if marshalErr != nil {
			return fmt.Errorf("pgvector: marshal metadata for %q: %w", rec.ID, marshalErr)
		}
		stmt, args, buildErr := psql.Insert(p.tableIdent).
			Columns("id", "embedding", "document", "metadata", "updated_at").
			Values(rec.ID, pgvector.NewVector(rec.Embedding), rec.Text, metadata, now).
			Suffix(`ON CONFLICT (id) DO UPDATE SET
    embedding = excluded.embedding,
    document = excluded.document,
    metadata = excluded.metadata,
    updated_at = excluded.updated_at`).
			ToSql()
		if buildErr != nil {
			return fmt.Errorf("pgvector: build upsert: %w", buildErr)
		}
		if _, execErr := tx.Exec(ctx, stmt, args...); execErr != nil {
			return fmt.Errorf("pgvector: upsert %q: %w", rec.ID, execErr)
		}
	}
	return nil
}

func (p *pgStore) Search(ctx context.Context, query []float32, opts SearchOptions) ([]Match, error) {
	if len(query) != p.dimension {
		return nil, fmt.Errorf("pgvector: query dimension mismatch (got %d want %d)", len(query), p.dimension)
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	vec := pgvector.NewVector(query)
	stmt, args, err := psql.Select("id", "document", "metadata").
		Column(sq.Expr("1 - (embedding <=> ?) AS score", vec)).
		From(p.tableIdent).
		Where(sq.Expr("1 - (embedding <=> ?) > ?", vec, opts.MinScore)).
		OrderByClause("embedding <=> ? ASC, id ASC", vec).
		Limit(uint64(topK)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("pgvector: build search: %w", err)
	}
	var rows []pgMatchRow
	if err := pgxscan.Select(ctx, p.pool, &rows, stmt, args...); err != nil {
		return nil, fmt.Errorf("pgvector: search: %w", err)
	}
	results := make([]Match, 0, len(rows))
	for i := range rows {
		meta := make(map[string]any)
		if len(rows[i].Metadata) > 0 {
			if err := json.Unmarshal(rows[i].Metadata, &meta); err != nil {
				return nil, fmt.Errorf("pgvector: decode metadata: %w", err)
			}
		}
		results = append(results, Match{
			ID:       rows[i].ID,
			Score:    rows[i].Score,
			Text:     rows[i].Document,
			Metadata: meta,
		})
	}
	sortMatches(results)
	return results, nil
}

func (p *pgStore) Count(ctx context.Context) (int, error) {
	stmt, args, err := psql.Select("COUNT(*)").From(p.tableIdent).ToSql()
	if err != nil {
		return 0, fmt.Errorf("pgvector: build count: %w", err)
	}
	var count int
	if err := p.pool.QueryRow(ctx, stmt, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("pgvector: count: %w", err)
	}
	return count, nil
}

func (p *pgStore) Close(_ context.Context) error {
	p.pool.Close()
	return nil
}
