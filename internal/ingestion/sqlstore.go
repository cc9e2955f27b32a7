package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgJobStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an existing pool and bootstraps the
// processing_jobs/job_items tables. Job-item
// transitions go through a row-level transaction, the job tracker's locking
// discipline ("the job tracker updates a single job row per item under
// row-level transaction semantics").
func NewPostgresStore(pool *pgxpool.Pool) Store {
	ctx := context.Background()
	_, _ = pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS processing_jobs (
  request_id TEXT PRIMARY KEY,
  created_at TIMESTAMPTZ NOT NULL,
  total INT NOT NULL
);`)
	_, _ = pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS job_items (
  request_id TEXT NOT NULL REFERENCES processing_jobs(request_id) ON DELETE CASCADE,
  material_id TEXT NOT NULL,
  status TEXT NOT NULL,
  sku TEXT NOT NULL DEFAULT '',
  similarity DOUBLE PRECISION NOT NULL DEFAULT 0,
  error TEXT NOT NULL DEFAULT '',
  attempts INT NOT NULL DEFAULT 0,
  last_attempt_at TIMESTAMPTZ,
  PRIMARY KEY (request_id, material_id)
);`)
	return &pgJobStore{pool: pool}
}

func (s *pgJobStore) CreateJob(ctx context.Context, requestID string, items []Item) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `INSERT INTO processing_jobs(request_id, created_at, total) VALUES ($1,$2,$3)`,
		requestID, time.Now(), len(items)); err != nil {
		return fmt.Errorf("ingestion: create job row: %w", err)
	}
	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(`INSERT INTO job_items(request_id, material_id, status) VALUES ($1,$2,$3)`,
			requestID, it.MaterialID, string(StatusPending))
	}
	br := tx.SendBatch(ctx, batch)
	for range items {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("ingestion: create job item row: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *pgJobStore) UpdateItem(ctx context.Context, requestID, materialID string, update func(*JobItem)) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
SELECT material_id, status, sku, similarity, error, attempts, last_attempt_at
FROM job_items WHERE request_id=$1 AND material_id=$2 FOR UPDATE`, requestID, materialID)
	var it JobItem
	var status string
	var lastAttempt *time.Time
	if err := row.Scan(&it.MaterialID, &status, &it.SKU, &it.Similarity, &it.Error, &it.Attempts, &lastAttempt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("ingestion: job item %s/%s not found", requestID, materialID)
		}
		return err
	}
	it.Status = ItemStatus(status)
	if lastAttempt != nil {
		it.LastAttemptAt = *lastAttempt
	}

	update(&it)

	_, err = tx.Exec(ctx, `
UPDATE job_items SET status=$1, sku=$2, similarity=$3, error=$4, attempts=$5, last_attempt_at=$6
WHERE request_id=$7 AND material_id=$8`,
		string(it.Status), it.SKU, it.Similarity, it.Error, it.Attempts, it.LastAttemptAt, requestID, materialID)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *pgJobStore) Job(ctx context.Context, requestID string) (Job, bool, error) {
	var j Job
	row := s.pool.QueryRow(ctx, `SELECT request_id, created_at, total FROM processing_jobs WHERE request_id=$1`, requestID)
	if err := row.Scan(&j.RequestID, &j.CreatedAt, &j.Total); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Job{}, false, nil
		}
		return Job{}, false, err
	}

	rows, err := s.pool.Query(ctx, `SELECT status, count(*) FROM job_items WHERE request_id=$1 GROUP BY status`, requestID)
	if err != nil {
		return Job{}, false, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return Job{}, false, err
		}
		applyCount(&j, ItemStatus(status), n)
	}
	return j, true, rows.Err()
}

func (s *pgJobStore) Items(ctx context.Context, requestID string) ([]JobItem, bool, error) {
	rows, err := s.pool.Query(ctx, `
SELECT material_id, status, sku, similarity, error, attempts, last_attempt_at
FROM job_items WHERE request_id=$1 ORDER BY material_id`, requestID)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()
	var out []JobItem
	for rows.Next() {
		var it JobItem
		var status string
		var lastAttempt *time.Time
		if err := rows.Scan(&it.MaterialID, &status, &it.SKU, &it.Similarity, &it.Error, &it.Attempts, &lastAttempt); err != nil {
			return nil, false, err
		}
		it.Status = ItemStatus(status)
		if lastAttempt != nil {
			it.LastAttemptAt = *lastAttempt
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	return out, len(out) > 0, nil
}

func (s *pgJobStore) Ephemeral() bool { return false }

func applyCount(j *Job, status ItemStatus, n int) {
	switch status {
	case StatusPending:
		j.Pending = n
	case StatusProcessing:
		j.Processing = n
	case StatusCompleted:
		j.Completed = n
	case StatusFailed:
		j.Failed = n
	}
}
