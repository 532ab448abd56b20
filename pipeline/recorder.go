package pipeline

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"city311-api/models"
)

const createRunsTable = `
	CREATE TABLE IF NOT EXISTS model_runs (
		run_id          TEXT PRIMARY KEY,
		status          TEXT NOT NULL,
		source          TEXT,
		started_at      TIMESTAMPTZ,
		finished_at     TIMESTAMPTZ,
		rows_read       BIGINT,
		records_kept    BIGINT,
		records_dropped BIGINT,
		train_size      BIGINT,
		test_size       BIGINT,
		accuracy        DOUBLE PRECISION,
		precision_score DOUBLE PRECISION,
		recall          DOUBLE PRECISION,
		f1_score        DOUBLE PRECISION,
		completion_rate DOUBLE PRECISION,
		artifact_key    TEXT,
		error           TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_model_runs_started_at ON model_runs (started_at);
`

// PGRecorder upserts run rows into Postgres.
type PGRecorder struct {
	pool *pgxpool.Pool
}

var _ Recorder = (*PGRecorder)(nil)

func NewPGRecorder(pool *pgxpool.Pool) *PGRecorder {
	return &PGRecorder{pool: pool}
}

// EnsureSchema creates the model_runs table when the API has not migrated it
// yet.
func (r *PGRecorder) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, createRunsTable); err != nil {
		return fmt.Errorf("create model_runs: %w", err)
	}
	return nil
}

func (r *PGRecorder) RecordRun(ctx context.Context, run *models.ModelRun) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO model_runs (
			run_id, status, source, started_at, finished_at,
			rows_read, records_kept, records_dropped, train_size, test_size,
			accuracy, precision_score, recall, f1_score, completion_rate,
			artifact_key, error
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (run_id) DO UPDATE SET
			status = EXCLUDED.status,
			finished_at = EXCLUDED.finished_at,
			rows_read = EXCLUDED.rows_read,
			records_kept = EXCLUDED.records_kept,
			records_dropped = EXCLUDED.records_dropped,
			train_size = EXCLUDED.train_size,
			test_size = EXCLUDED.test_size,
			accuracy = EXCLUDED.accuracy,
			precision_score = EXCLUDED.precision_score,
			recall = EXCLUDED.recall,
			f1_score = EXCLUDED.f1_score,
			completion_rate = EXCLUDED.completion_rate,
			artifact_key = EXCLUDED.artifact_key,
			error = EXCLUDED.error
	`,
		run.RunID, run.Status, run.Source, run.StartedAt, run.FinishedAt,
		run.RowsRead, run.RecordsKept, run.RecordsDropped, run.TrainSize, run.TestSize,
		run.Accuracy, run.PrecisionScore, run.Recall, run.F1Score, run.CompletionRate,
		run.ArtifactKey, run.Error,
	)
	if err != nil {
		return fmt.Errorf("upsert run %s: %w", run.RunID, err)
	}
	return nil
}
