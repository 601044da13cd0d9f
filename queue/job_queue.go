package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jupark12/go-plot-queue/models"
	"github.com/jupark12/go-plot-queue/store"
)

// PlotJobQueue is a FIFO of plot job descriptors kept in a store list
type PlotJobQueue struct {
	store  store.Store
	key    string
	logger *slog.Logger
}

// NewPlotJobQueue creates a queue on the given list key
func NewPlotJobQueue(s store.Store, key string, logger *slog.Logger) *PlotJobQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &PlotJobQueue{store: s, key: key, logger: logger}
}

// EnqueueJob appends the serialized descriptor to the tail of the queue
func (q *PlotJobQueue) EnqueueJob(ctx context.Context, job models.PlotJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	if err := q.store.RPush(ctx, q.key, string(data)); err != nil {
		return fmt.Errorf("%w: enqueue job %s: %v", models.ErrDependency, job.ID, err)
	}

	q.logger.Debug("job enqueued", "job_id", job.ID, "x_field", job.XField, "y_field", job.YField)
	return nil
}

// DequeueJob blocks until a descriptor is available and removes the oldest one.
// A descriptor that cannot be decoded is consumed and reported as ErrValidation;
// if it still carries a string job_id, the returned job has that ID set so the
// caller can record the failure.
func (q *PlotJobQueue) DequeueJob(ctx context.Context) (models.PlotJob, error) {
	raw, err := q.store.BLPop(ctx, q.key)
	if err != nil {
		if ctx.Err() != nil {
			return models.PlotJob{}, ctx.Err()
		}
		return models.PlotJob{}, fmt.Errorf("%w: dequeue: %v", models.ErrDependency, err)
	}

	var job models.PlotJob
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return models.PlotJob{ID: descriptorID(raw)}, fmt.Errorf("%w: malformed job descriptor %q: %v", models.ErrValidation, raw, err)
	}
	return job, nil
}

// descriptorID pulls job_id out of an otherwise undecodable descriptor.
func descriptorID(raw string) string {
	var fields map[string]any
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return ""
	}
	id, _ := fields["job_id"].(string)
	return id
}
