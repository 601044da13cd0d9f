// Package archive keeps a durable history of finished plot jobs in Postgres.
// The ledger stays the source of truth for status; the archive is write-behind
// and its failures never change a job's outcome.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jupark12/go-plot-queue/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS plot_job_history (
	job_id      TEXT PRIMARY KEY,
	x_field     TEXT NOT NULL,
	y_field     TEXT NOT NULL,
	plot_type   TEXT NOT NULL DEFAULT '',
	state       TEXT NOT NULL,
	reason      TEXT NOT NULL DEFAULT '',
	worker_id   TEXT NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	duration_ms BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_plot_job_history_finished_at ON plot_job_history (finished_at DESC);
`

// Entry is one archived job.
type Entry struct {
	JobID      string           `json:"job_id"`
	XField     string           `json:"x_field"`
	YField     string           `json:"y_field"`
	PlotType   models.PlotType  `json:"plot_type,omitempty"`
	Status     models.JobStatus `json:"status"`
	Worker     string           `json:"worker_id"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	DurationMS int64            `json:"duration_ms"`
}

// EntryFromOutcome flattens a worker outcome into a history row.
func EntryFromOutcome(o models.JobOutcome) Entry {
	return Entry{
		JobID:      o.Job.ID,
		XField:     o.Job.XField,
		YField:     o.Job.YField,
		PlotType:   o.Job.PlotType,
		Status:     o.Status,
		Worker:     o.Worker,
		StartedAt:  o.StartedAt.UTC(),
		FinishedAt: o.FinishedAt.UTC(),
		DurationMS: o.Duration().Milliseconds(),
	}
}

// Postgres writes job outcomes to plot_job_history.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Open connects to databaseURL and makes sure the history table exists.
func Open(ctx context.Context, databaseURL string, logger *slog.Logger) (*Postgres, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to reach database: %w", err)
	}

	p := &Postgres{pool: pool, logger: logger}
	if err := p.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info("job archive ready")
	return p, nil
}

// EnsureSchema creates the history table if needed.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create plot_job_history: %w", err)
	}
	return nil
}

// Record archives a terminal outcome. A job id is archived once; a repeat
// overwrites the earlier row. Queued or processing outcomes are rejected.
func (p *Postgres) Record(ctx context.Context, outcome models.JobOutcome) error {
	if !outcome.Status.IsTerminal() {
		return fmt.Errorf("%w: job %s is still %s", models.ErrValidation, outcome.Job.ID, outcome.Status)
	}
	e := EntryFromOutcome(outcome)
	_, err := p.pool.Exec(ctx, `
		INSERT INTO plot_job_history
			(job_id, x_field, y_field, plot_type, state, reason, worker_id, started_at, finished_at, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (job_id) DO UPDATE SET
			state = EXCLUDED.state,
			reason = EXCLUDED.reason,
			worker_id = EXCLUDED.worker_id,
			started_at = EXCLUDED.started_at,
			finished_at = EXCLUDED.finished_at,
			duration_ms = EXCLUDED.duration_ms`,
		e.JobID, e.XField, e.YField, string(e.PlotType),
		string(e.Status.State()), e.Status.Reason(), e.Worker,
		e.StartedAt, e.FinishedAt, e.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("%w: archive job %s: %v", models.ErrDependency, e.JobID, err)
	}
	return nil
}

// Recent returns up to limit archived jobs, newest first.
func (p *Postgres) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := p.pool.Query(ctx, `
		SELECT job_id, x_field, y_field, plot_type, state, reason, worker_id, started_at, finished_at, duration_ms
		FROM plot_job_history
		ORDER BY finished_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: query job history: %v", models.ErrDependency, err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var (
			e        Entry
			plotType string
			state    string
			reason   string
		)
		err := row.Scan(&e.JobID, &e.XField, &e.YField, &plotType, &state, &reason,
			&e.Worker, &e.StartedAt, &e.FinishedAt, &e.DurationMS)
		e.PlotType = models.PlotType(plotType)
		e.Status = models.JobStatus(state)
		if models.JobStatus(state) == models.StatusFailed {
			e.Status = models.Failed(reason)
		}
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: scan job history: %v", models.ErrDependency, err)
	}
	return entries, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}
