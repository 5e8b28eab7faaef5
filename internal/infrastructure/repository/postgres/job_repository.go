package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/pdf-converter/internal/core/domain"
)

// JobRepository persists the conversion journal.
type JobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *JobRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101701)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS conversion_jobs (
	id TEXT PRIMARY KEY,
	request_id TEXT,
	operation TEXT NOT NULL,
	status TEXT NOT NULL,
	error_kind TEXT,
	error_message TEXT,
	input_names JSONB NOT NULL DEFAULT '[]'::jsonb,
	input_bytes BIGINT NOT NULL DEFAULT 0,
	output_count INTEGER NOT NULL DEFAULT 0,
	output_bytes BIGINT NOT NULL DEFAULT 0,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conversion_jobs_operation ON conversion_jobs(operation, status);
CREATE INDEX IF NOT EXISTS idx_conversion_jobs_finished_at ON conversion_jobs(finished_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// RecordJob inserts job once; redelivered jobs are ignored.
func (r *JobRepository) RecordJob(ctx context.Context, job domain.ConversionJob) error {
	names := job.InputNames
	if names == nil {
		names = []string{}
	}
	namesJSON, err := json.Marshal(names)
	if err != nil {
		return fmt.Errorf("marshal input names: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO conversion_jobs (
	id, request_id, operation, status, error_kind, error_message, input_names,
	input_bytes, output_count, output_bytes, duration_ms, started_at, finished_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (id) DO NOTHING
`,
		job.ID, job.RequestID, string(job.Operation), string(job.Status), job.ErrorKind, job.Error, namesJSON,
		job.InputBytes, job.OutputCount, job.OutputBytes, job.DurationMS, job.StartedAt, job.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert conversion job: %w", err)
	}
	return nil
}
