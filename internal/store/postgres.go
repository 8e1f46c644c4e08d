package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "github.com/lib/pq"

	"mljobs/internal/apperrors"
	"mljobs/internal/artifact"
	"mljobs/internal/job"
)

// Postgres is the production job record store. Transitions run in a
// transaction holding a row lock on the job, so the legal-transition check
// and the write form one atomic unit; the model insert for a completed
// transition commits in the same transaction.
type Postgres struct {
	db *sql.DB
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS jobs (
	id                UUID PRIMARY KEY,
	dataset_ref       TEXT NOT NULL,
	target_column     TEXT NOT NULL,
	algorithm         TEXT NOT NULL,
	problem_type      TEXT NOT NULL,
	hyperparameters   JSONB NOT NULL DEFAULT '{}',
	split_ratio       DOUBLE PRECISION NOT NULL,
	submitted_by      TEXT NOT NULL,
	status            TEXT NOT NULL,
	progress          INT NOT NULL DEFAULT 0,
	result_ref        TEXT,
	error_detail      TEXT,
	created_at        TIMESTAMPTZ NOT NULL,
	started_at        TIMESTAMPTZ,
	completed_at      TIMESTAMPTZ,
	dispatch_attempts INT NOT NULL DEFAULT 0,
	last_dispatch_at  TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS jobs_submitter_idx ON jobs (submitted_by, created_at DESC);
CREATE INDEX IF NOT EXISTS jobs_pending_idx ON jobs (created_at) WHERE status = 'pending';

CREATE TABLE IF NOT EXISTS models (
	job_id                 UUID PRIMARY KEY REFERENCES jobs(id),
	algorithm              TEXT NOT NULL,
	problem_type           TEXT NOT NULL,
	metrics                JSONB NOT NULL DEFAULT '{}',
	feature_importance     JSONB NOT NULL DEFAULT '[]',
	model_ref              TEXT NOT NULL,
	training_duration_secs INT NOT NULL DEFAULT 0,
	created_at             TIMESTAMPTZ NOT NULL
);
`

const jobColumns = `id, dataset_ref, target_column, algorithm, problem_type,
	hyperparameters, split_ratio, submitted_by, status, progress, result_ref,
	error_detail, created_at, started_at, completed_at, dispatch_attempts,
	last_dispatch_at`

// NewPostgres opens a Postgres-backed store and ensures the schema exists.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, apperrors.Internal("store.open", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, apperrors.Internal("store.ping", err)
	}
	if _, err := db.ExecContext(ctx, pgSchema); err != nil {
		db.Close()
		return nil, apperrors.Internal("store.migrate", err)
	}
	return &Postgres{db: db}, nil
}

// Create persists a new record.
func (p *Postgres) Create(ctx context.Context, rec *job.Record) error {
	hp, err := json.Marshal(rec.Spec.Hyperparameters)
	if err != nil {
		return apperrors.Internal("store.create", err)
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		rec.ID,
		rec.Spec.DatasetID,
		rec.Spec.TargetColumn,
		rec.Spec.Algorithm,
		rec.Spec.ProblemType,
		hp,
		rec.Spec.SplitRatio,
		rec.Spec.SubmittedBy,
		rec.Status,
		rec.Progress,
		nullString(rec.ResultRef),
		nullString(rec.ErrorDetail),
		rec.CreatedAt,
		rec.StartedAt,
		rec.CompletedAt,
		rec.DispatchAttempts,
		rec.LastDispatchAt,
	)
	if err != nil {
		return apperrors.Internal("store.create", err)
	}
	return nil
}

// Get returns the record by ID.
func (p *Postgres) Get(ctx context.Context, id string) (*job.Record, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	return scanJob(row, id)
}

// Mutate applies fn to the record inside a transaction holding a row lock.
func (p *Postgres) Mutate(ctx context.Context, id string, fn job.Mutation) (*job.Record, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperrors.Internal("store.mutate", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1 FOR UPDATE`, id)
	rec, err := scanJob(row, id)
	if err != nil {
		return nil, err
	}

	model, err := fn(rec)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE jobs SET status = $2, progress = $3, result_ref = $4,
			error_detail = $5, started_at = $6, completed_at = $7,
			dispatch_attempts = $8, last_dispatch_at = $9
		WHERE id = $1`,
		id,
		rec.Status,
		rec.Progress,
		nullString(rec.ResultRef),
		nullString(rec.ErrorDetail),
		rec.StartedAt,
		rec.CompletedAt,
		rec.DispatchAttempts,
		rec.LastDispatchAt,
	)
	if err != nil {
		return nil, apperrors.Internal("store.mutate", err)
	}

	if model != nil {
		metrics, err := json.Marshal(model.Metrics)
		if err != nil {
			return nil, apperrors.Internal("store.mutate", err)
		}
		fi, err := json.Marshal(model.FeatureImportance)
		if err != nil {
			return nil, apperrors.Internal("store.mutate", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO models (job_id, algorithm, problem_type, metrics,
				feature_importance, model_ref, training_duration_secs, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (job_id) DO NOTHING`,
			model.JobID,
			model.Algorithm,
			model.ProblemType,
			metrics,
			fi,
			model.ModelRef,
			model.TrainingDurationSecs,
			model.CreatedAt,
		)
		if err != nil {
			return nil, apperrors.Internal("store.mutate", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, apperrors.Internal("store.mutate", err)
	}
	return rec, nil
}

// GetModel returns the model record for a job.
func (p *Postgres) GetModel(ctx context.Context, jobID string) (*artifact.Model, error) {
	var (
		m       artifact.Model
		metrics []byte
		fi      []byte
	)
	err := p.db.QueryRowContext(ctx, `
		SELECT job_id, algorithm, problem_type, metrics, feature_importance,
			model_ref, training_duration_secs, created_at
		FROM models WHERE job_id = $1`, jobID,
	).Scan(&m.JobID, &m.Algorithm, &m.ProblemType, &metrics, &fi,
		&m.ModelRef, &m.TrainingDurationSecs, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("model", jobID)
	}
	if err != nil {
		return nil, apperrors.Internal("store.getModel", err)
	}

	if err := json.Unmarshal(metrics, &m.Metrics); err != nil {
		return nil, apperrors.Internal("store.getModel", err)
	}
	if err := json.Unmarshal(fi, &m.FeatureImportance); err != nil {
		return nil, apperrors.Internal("store.getModel", err)
	}
	return &m, nil
}

// ListBySubmitter returns records for a submitter, newest first.
func (p *Postgres) ListBySubmitter(ctx context.Context, submitter string) ([]*job.Record, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE submitted_by = $1 ORDER BY created_at DESC`, submitter)
	if err != nil {
		return nil, apperrors.Internal("store.list", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// ListStalePending returns pending records created before the cutoff.
func (p *Postgres) ListStalePending(ctx context.Context, cutoff time.Time) ([]*job.Record, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE status = $1 AND created_at < $2 ORDER BY created_at`,
		job.StatePending, cutoff)
	if err != nil {
		return nil, apperrors.Internal("store.listStalePending", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// Ping verifies the database connection.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner, id string) (*job.Record, error) {
	var (
		rec            job.Record
		hp             []byte
		resultRef      sql.NullString
		errorDetail    sql.NullString
		startedAt      sql.NullTime
		completedAt    sql.NullTime
		lastDispatchAt sql.NullTime
	)
	err := row.Scan(
		&rec.ID,
		&rec.Spec.DatasetID,
		&rec.Spec.TargetColumn,
		&rec.Spec.Algorithm,
		&rec.Spec.ProblemType,
		&hp,
		&rec.Spec.SplitRatio,
		&rec.Spec.SubmittedBy,
		&rec.Status,
		&rec.Progress,
		&resultRef,
		&errorDetail,
		&rec.CreatedAt,
		&startedAt,
		&completedAt,
		&rec.DispatchAttempts,
		&lastDispatchAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("job", id)
	}
	if err != nil {
		return nil, apperrors.Internal("store.scan", err)
	}

	if len(hp) > 0 {
		if err := json.Unmarshal(hp, &rec.Spec.Hyperparameters); err != nil {
			return nil, apperrors.Internal("store.scan", err)
		}
	}
	rec.ResultRef = resultRef.String
	rec.ErrorDetail = errorDetail.String
	if startedAt.Valid {
		rec.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		rec.CompletedAt = &completedAt.Time
	}
	if lastDispatchAt.Valid {
		rec.LastDispatchAt = &lastDispatchAt.Time
	}
	return &rec, nil
}

func collectJobs(rows *sql.Rows) ([]*job.Record, error) {
	var out []*job.Record
	for rows.Next() {
		rec, err := scanJob(rows, "")
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Internal("store.scan", err)
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ job.Store = (*Postgres)(nil)
