// Package service binds the dataset cache, job ledger and job queue into the
// operations exposed to clients. It holds no state of its own; every call is a
// handful of independent store round trips.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/jupark12/go-plot-queue/dataset"
	"github.com/jupark12/go-plot-queue/ledger"
	"github.com/jupark12/go-plot-queue/models"
	"github.com/jupark12/go-plot-queue/queue"
	"github.com/jupark12/go-plot-queue/store"
)

// ErrImportDisabled is returned by ImportDataset when no catalog is configured.
var ErrImportDisabled = errors.New("dataset import is not configured")

// Fetcher loads records from an external data catalog.
type Fetcher interface {
	Fetch(ctx context.Context, source, file string) ([]models.Record, error)
}

// JobRequest is what a client submits; the id is assigned on submission.
type JobRequest struct {
	XField   string          `json:"x_field"`
	YField   string          `json:"y_field"`
	PlotType models.PlotType `json:"plot_type,omitempty"`
}

// Analytics is the submission and query façade.
type Analytics struct {
	store    store.Store
	datasets *dataset.Cache
	ledger   *ledger.Ledger
	queue    *queue.PlotJobQueue
	fetcher  Fetcher
	logger   *slog.Logger
}

// NewAnalytics wires the façade. fetcher may be nil, which disables imports.
func NewAnalytics(s store.Store, datasets *dataset.Cache, l *ledger.Ledger, q *queue.PlotJobQueue, fetcher Fetcher, logger *slog.Logger) *Analytics {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analytics{
		store:    s,
		datasets: datasets,
		ledger:   l,
		queue:    q,
		fetcher:  fetcher,
		logger:   logger,
	}
}

// UploadDataset replaces the dataset with raw, which must be a JSON list of records.
func (a *Analytics) UploadDataset(ctx context.Context, raw []byte) (int, error) {
	n, err := a.datasets.ReplaceJSON(ctx, raw)
	if err != nil {
		return 0, err
	}
	a.logger.Info("dataset uploaded", "records", n)
	return n, nil
}

// GetDataset returns the current dataset, empty when none is loaded.
func (a *Analytics) GetDataset(ctx context.Context) ([]models.Record, error) {
	return a.datasets.All(ctx)
}

// GetRecord returns the record whose identifier field matches id.
func (a *Analytics) GetRecord(ctx context.Context, id string) (models.Record, error) {
	return a.datasets.FindByID(ctx, id)
}

// DeleteDataset removes the dataset. Jobs already queued will fail with
// "dataset not loaded" when they run.
func (a *Analytics) DeleteDataset(ctx context.Context) error {
	if err := a.datasets.Clear(ctx); err != nil {
		return err
	}
	a.logger.Info("dataset deleted")
	return nil
}

// SubmitJob assigns a fresh id, records it as queued and enqueues it.
func (a *Analytics) SubmitJob(ctx context.Context, req JobRequest) (models.PlotJob, models.JobStatus, error) {
	job := models.PlotJob{
		ID:       uuid.NewString(),
		XField:   strings.TrimSpace(req.XField),
		YField:   strings.TrimSpace(req.YField),
		PlotType: models.PlotType(strings.ToLower(string(req.PlotType))),
	}
	if err := job.Validate(); err != nil {
		return models.PlotJob{}, "", err
	}

	// queued must exist before the worker can pick the job up.
	if err := a.ledger.SetStatus(ctx, job.ID, models.StatusQueued); err != nil {
		return models.PlotJob{}, "", err
	}
	if err := a.queue.EnqueueJob(ctx, job); err != nil {
		// Leave a terminal status behind rather than a job that never runs.
		if serr := a.ledger.SetStatus(ctx, job.ID, models.Failed("enqueue failed")); serr != nil {
			a.logger.Error("failed to mark unqueued job", "job_id", job.ID, "error", serr)
		}
		return models.PlotJob{}, "", err
	}

	a.logger.Info("job submitted", "job_id", job.ID, "x_field", job.XField, "y_field", job.YField, "plot_type", job.PlotType)
	return job, models.StatusQueued, nil
}

// JobStatus returns the current status string of a job.
func (a *Analytics) JobStatus(ctx context.Context, jobID string) (models.JobStatus, error) {
	return a.ledger.GetStatus(ctx, jobID)
}

// JobResult returns the PNG of a completed job. Unknown and unfinished jobs
// both report ErrNotFound.
func (a *Analytics) JobResult(ctx context.Context, jobID string) ([]byte, error) {
	return a.ledger.GetResult(ctx, jobID)
}

// ListJobs returns every known job with its status.
func (a *Analytics) ListJobs(ctx context.Context) (map[string]models.JobStatus, error) {
	return a.ledger.All(ctx)
}

// TriggerSnapshot asks the store for a background save.
func (a *Analytics) TriggerSnapshot(ctx context.Context) error {
	if err := a.store.Snapshot(ctx); err != nil {
		if errors.Is(err, store.ErrSnapshotInProgress) {
			return err
		}
		return fmt.Errorf("%w: snapshot: %v", models.ErrDependency, err)
	}
	a.logger.Info("snapshot started")
	return nil
}

// ImportDataset fetches file from source in the external catalog and makes it
// the current dataset.
func (a *Analytics) ImportDataset(ctx context.Context, source, file string) (int, error) {
	if strings.TrimSpace(source) == "" || strings.TrimSpace(file) == "" {
		return 0, fmt.Errorf("%w: source and file are required", models.ErrValidation)
	}
	if a.fetcher == nil {
		return 0, fmt.Errorf("%w: %v", models.ErrDependency, ErrImportDisabled)
	}

	records, err := a.fetcher.Fetch(ctx, source, file)
	if err != nil {
		return 0, err
	}
	n, err := a.datasets.Replace(ctx, records)
	if err != nil {
		return 0, err
	}
	a.logger.Info("dataset imported", "source", source, "file", file, "records", n)
	return n, nil
}

// Ping checks the store connection.
func (a *Analytics) Ping(ctx context.Context) error {
	return a.store.Ping(ctx)
}
