package sqlstore

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgStore struct{ pool *pgxpool.Pool }

// NewPostgres wraps an existing pool and bootstraps the pg_trgm extension
// plus the materials table with a generated tsvector column over its text
// column. Bootstrap is best-effort: a non-superuser role that
// cannot create extensions still gets a working table, just without
// trigram similarity.
func NewPostgres(pool *pgxpool.Pool) Store {
	ctx := context.Background()
	_, _ = pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS pg_trgm`)
	_, _ = pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS materials (
  id TEXT PRIMARY KEY,
  text TEXT NOT NULL,
  metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
  ts tsvector GENERATED ALWAYS AS (to_tsvector('simple', coalesce(text,''))) STORED
);
`)
	_, _ = pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS materials_ts_idx ON materials USING GIN (ts)`)
	_, _ = pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS materials_trgm_idx ON materials USING GIN (text gin_trgm_ops)`)
	return &pgStore{pool: pool}
}

func (p *pgStore) Index(ctx context.Context, id, text string, metadata map[string]string) error {
	md := mapToJSON(metadata)
	_, err := p.pool.Exec(ctx, `
INSERT INTO materials(id, text, metadata) VALUES($1,$2,$3)
ON CONFLICT (id) DO UPDATE SET text=EXCLUDED.text, metadata=EXCLUDED.metadata
`, id, text, md)
	return err
}

func (p *pgStore) Remove(ctx context.Context, id string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM materials WHERE id=$1`, id)
	return err
}

// Search runs both a full-text rank and a trigram similarity query and
// returns the union ordered by the better of the two scores; trigram
// similarity lets short, misspelled, or partial material names still
// surface (the "fuzzy" search mode in the engine relies on this).
func (p *pgStore) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 10
	}
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, nil
	}
	rows, err := p.pool.Query(ctx, `
SELECT id,
       GREATEST(ts_rank(ts, plainto_tsquery('simple',$1)), similarity(text, $1)) AS score,
       left(text, 160) AS snippet,
       text,
       metadata
FROM materials
WHERE ts @@ plainto_tsquery('simple',$1) OR text % $1
ORDER BY score DESC
LIMIT $2
`, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Result, 0, limit)
	for rows.Next() {
		var r Result
		var md map[string]string
		if err := rows.Scan(&r.ID, &r.Score, &r.Snippet, &r.Text, &md); err != nil {
			return nil, err
		}
		r.Metadata = md
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *pgStore) GetByID(ctx context.Context, id string) (Result, bool, error) {
	row := p.pool.QueryRow(ctx, `SELECT id, text, metadata FROM materials WHERE id=$1`, id)
	var r Result
	var md map[string]string
	if err := row.Scan(&r.ID, &r.Text, &md); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Result{}, false, nil
		}
		return Result{}, false, err
	}
	r.Metadata = md
	return r, true, nil
}

// SnippetForID returns a query-highlighted excerpt using Postgres
// ts_headline.
func (p *pgStore) SnippetForID(ctx context.Context, id, lang, query string) (string, bool, error) {
	var snip string
	err := p.pool.QueryRow(ctx, `
SELECT ts_headline(to_regconfig($2), text, websearch_to_tsquery(to_regconfig($2), $3))
FROM materials WHERE id=$1
`, id, lang, query).Scan(&snip)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return snip, true, nil
}

// DistinctMetadata enumerates distinct non-empty values of one metadata
// field, feeding the name/category suggestion sources.
func (p *pgStore) DistinctMetadata(ctx context.Context, key string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.pool.Query(ctx, `
SELECT DISTINCT metadata->>$1 FROM materials
WHERE coalesce(metadata->>$1, '') <> ''
ORDER BY 1
LIMIT $2
`, key, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (p *pgStore) Close() { p.pool.Close() }

// mapToJSON ensures we never hand the driver a nil map so the JSONB NOT NULL
// column never sees a SQL NULL.
func mapToJSON(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
