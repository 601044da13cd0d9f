package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jupark12/go-plot-queue/models"
)

// retryDelay is how long the worker backs off after a queue error.
const retryDelay = 5 * time.Second

var errDatasetNotLoaded = errors.New("dataset not loaded")

// JobSource hands out plot jobs in FIFO order, blocking until one is available.
type JobSource interface {
	DequeueJob(ctx context.Context) (models.PlotJob, error)
}

// StatusLedger is where the worker records statuses and rendered images.
type StatusLedger interface {
	SetStatus(ctx context.Context, jobID string, status models.JobStatus) error
	SetResult(ctx context.Context, jobID string, image []byte) error
}

// DatasetLoader returns the current dataset; an empty slice means none is loaded.
type DatasetLoader interface {
	All(ctx context.Context) ([]models.Record, error)
}

// Recorder persists terminal job outcomes somewhere durable.
type Recorder interface {
	Record(ctx context.Context, outcome models.JobOutcome) error
}

// RenderFunc turns records into PNG bytes.
type RenderFunc func(records []models.Record, xField, yField string, plotType models.PlotType) ([]byte, error)

// Worker represents a processing node that consumes jobs one at a time
type Worker struct {
	ID         string
	Processing bool
	mu         sync.Mutex

	queue    JobSource
	ledger   StatusLedger
	datasets DatasetLoader
	render   RenderFunc
	notifier func(models.JobEvent)
	recorder Recorder
	logger   *slog.Logger
}

// NewWorker creates a new worker instance
func NewWorker(id string, queue JobSource, ledger StatusLedger, datasets DatasetLoader, render RenderFunc, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		ID:       id,
		queue:    queue,
		ledger:   ledger,
		datasets: datasets,
		render:   render,
		logger:   logger.With("worker_id", id),
	}
}

// SetNotifier sets the callback invoked on every status transition
func (w *Worker) SetNotifier(fn func(models.JobEvent)) {
	w.notifier = fn
}

// SetRecorder sets where terminal outcomes are archived
func (w *Worker) SetRecorder(r Recorder) {
	w.recorder = r
}

// IsProcessing reports whether a job is currently being handled.
func (w *Worker) IsProcessing() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.Processing
}

// Start runs the loop in a goroutine. The returned channel closes when it exits.
func (w *Worker) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()
	return done
}

// Run consumes jobs until ctx is cancelled. A job already in progress is
// finished before Run returns.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("worker started, listening for jobs")

	for {
		job, err := w.queue.DequeueJob(ctx)
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Info("worker stopping")
				return
			}
			if errors.Is(err, models.ErrValidation) {
				if job.ID == "" {
					w.logger.Warn("skipping malformed job descriptor", "error", err)
					continue
				}
				w.logger.Warn("malformed job descriptor", "job_id", job.ID, "error", err)
				w.finish(context.WithoutCancel(ctx), job, models.Failed("malformed job descriptor"), time.Now())
				continue
			}
			w.logger.Error("failed to dequeue job", "error", err)
			select {
			case <-ctx.Done():
				w.logger.Info("worker stopping")
				return
			case <-time.After(retryDelay):
			}
			continue
		}

		w.setProcessing(true)
		w.handle(context.WithoutCancel(ctx), job)
		w.setProcessing(false)
	}
}

// handle keeps a panic in one job from taking down the loop.
func (w *Worker) handle(ctx context.Context, job models.PlotJob) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("job handler panicked", "job_id", job.ID, "panic", r)
		}
	}()
	w.processJob(ctx, job)
}

func (w *Worker) processJob(ctx context.Context, job models.PlotJob) {
	started := time.Now()

	if job.ID == "" {
		w.logger.Warn("job descriptor has no job_id, skipping", "x_field", job.XField, "y_field", job.YField)
		return
	}
	if strings.TrimSpace(job.XField) == "" || strings.TrimSpace(job.YField) == "" {
		w.finish(ctx, job, models.Failed("missing job fields"), started)
		return
	}

	w.logger.Info("processing job", "job_id", job.ID, "x_field", job.XField, "y_field", job.YField, "plot_type", job.PlotType)
	w.transition(ctx, job.ID, models.StatusProcessing)

	image, err := w.execute(ctx, job)
	if err != nil {
		w.finish(ctx, job, models.Failed(err.Error()), started)
		return
	}

	// The result must be readable before the job is reported completed.
	if err := w.ledger.SetResult(ctx, job.ID, image); err != nil {
		w.finish(ctx, job, models.Failed(err.Error()), started)
		return
	}
	w.finish(ctx, job, models.StatusCompleted, started)
}

func (w *Worker) execute(ctx context.Context, job models.PlotJob) (image []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while rendering: %v", r)
		}
	}()

	records, err := w.datasets.All(ctx)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errDatasetNotLoaded
	}
	return w.render(records, job.XField, job.YField, job.PlotType)
}

func (w *Worker) finish(ctx context.Context, job models.PlotJob, status models.JobStatus, started time.Time) {
	w.transition(ctx, job.ID, status)

	if status == models.StatusCompleted {
		w.logger.Info("job completed", "job_id", job.ID, "duration", time.Since(started))
	} else {
		w.logger.Warn("job failed", "job_id", job.ID, "reason", status.Reason())
	}

	if w.recorder == nil {
		return
	}
	outcome := models.JobOutcome{
		Job:        job,
		Status:     status,
		Worker:     w.ID,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
	if err := w.recorder.Record(ctx, outcome); err != nil {
		w.logger.Warn("failed to archive job outcome", "job_id", job.ID, "error", err)
	}
}

func (w *Worker) transition(ctx context.Context, jobID string, status models.JobStatus) {
	if err := w.ledger.SetStatus(ctx, jobID, status); err != nil {
		w.logger.Error("failed to record job status", "job_id", jobID, "status", status, "error", err)
	}
	if w.notifier != nil {
		w.notifier(models.JobEvent{JobID: jobID, Status: status})
	}
}

func (w *Worker) setProcessing(v bool) {
	w.mu.Lock()
	w.Processing = v
	w.mu.Unlock()
}
