// Package catalog maintains an optional Postgres index of acquired documents
// and pipeline runs. The directory tree stays the source of truth; the
// catalog exists for querying and run history.
package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/echoma/occ-info-memo/internal/record"
)

// Catalog wraps all SQL used by the crawler and the pipeline.
type Catalog struct {
	pool *pgxpool.Pool
}

// Open connects to Postgres and ensures the schema exists.
func Open(ctx context.Context, dsn string) (*Catalog, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 4
	cfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect catalog: %w", err)
	}
	c := &Catalog{pool: pool}
	if err := c.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return c, nil
}

// Close releases the connection pool.
func (c *Catalog) Close() {
	c.pool.Close()
}

func (c *Catalog) ensureSchema(ctx context.Context) error {
	const stmt = `
CREATE TABLE IF NOT EXISTS documents (
	number INTEGER PRIMARY KEY,
	created_date TEXT NOT NULL,
	last_modified TIMESTAMPTZ NOT NULL,
	category TEXT,
	title TEXT,
	page_count INTEGER,
	fetched_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_created_date ON documents(created_date);
CREATE TABLE IF NOT EXISTS runs (
	id UUID PRIMARY KEY,
	window_seconds BIGINT NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	status TEXT NOT NULL,
	documents_done INTEGER NOT NULL DEFAULT 0
);`
	if _, err := c.pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// UpsertDocument records an acquired document, replacing any earlier row.
func (c *Catalog) UpsertDocument(ctx context.Context, doc *record.Document) error {
	_, err := c.pool.Exec(ctx, `
		INSERT INTO documents (number, created_date, last_modified, category, title, page_count, fetched_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (number) DO UPDATE SET
			created_date = EXCLUDED.created_date,
			last_modified = EXCLUDED.last_modified,
			category = EXCLUDED.category,
			title = EXCLUDED.title,
			page_count = EXCLUDED.page_count,
			fetched_at = EXCLUDED.fetched_at
	`, doc.Number, doc.CreatedDate, doc.LastModified, doc.Category, doc.Title, doc.PageCount, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert document %d: %w", doc.Number, err)
	}
	return nil
}

// StartRun inserts a running batch row.
func (c *Catalog) StartRun(ctx context.Context, id string, window time.Duration) error {
	_, err := c.pool.Exec(ctx, `
		INSERT INTO runs (id, window_seconds, started_at, status)
		VALUES ($1,$2,$3,'running')
	`, id, int64(window/time.Second), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert run %s: %w", id, err)
	}
	return nil
}

// FinishRun records the batch outcome.
func (c *Catalog) FinishRun(ctx context.Context, id string, status string, documentsDone int) error {
	_, err := c.pool.Exec(ctx, `
		UPDATE runs SET finished_at=$1, status=$2, documents_done=$3 WHERE id=$4
	`, time.Now().UTC(), status, documentsDone, id)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	return nil
}
