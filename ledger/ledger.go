// Package ledger records job status strings and base64 PNG results keyed by job id.
package ledger

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/jupark12/go-plot-queue/models"
	"github.com/jupark12/go-plot-queue/store"
)

// Ledger wraps two store hashes: one for statuses and one for results.
type Ledger struct {
	store     store.Store
	statusKey string
	resultKey string
}

// New creates a ledger over the given hash keys.
func New(s store.Store, statusKey, resultKey string) *Ledger {
	return &Ledger{store: s, statusKey: statusKey, resultKey: resultKey}
}

// SetStatus overwrites the job status. No history is kept.
func (l *Ledger) SetStatus(ctx context.Context, jobID string, status models.JobStatus) error {
	if err := l.store.HSet(ctx, l.statusKey, jobID, string(status)); err != nil {
		return fmt.Errorf("%w: set status of %s: %v", models.ErrDependency, jobID, err)
	}
	return nil
}

// GetStatus returns the latest status of a job.
func (l *Ledger) GetStatus(ctx context.Context, jobID string) (models.JobStatus, error) {
	v, err := l.store.HGet(ctx, l.statusKey, jobID)
	if errors.Is(err, store.ErrNil) || (err == nil && v == "") {
		return "", fmt.Errorf("%w: job %s", models.ErrNotFound, jobID)
	}
	if err != nil {
		return "", fmt.Errorf("%w: get status of %s: %v", models.ErrDependency, jobID, err)
	}
	return models.JobStatus(v), nil
}

// SetResult stores the rendered image as base64.
func (l *Ledger) SetResult(ctx context.Context, jobID string, image []byte) error {
	encoded := base64.StdEncoding.EncodeToString(image)
	if err := l.store.HSet(ctx, l.resultKey, jobID, encoded); err != nil {
		return fmt.Errorf("%w: set result of %s: %v", models.ErrDependency, jobID, err)
	}
	return nil
}

// GetResult returns the decoded image of a completed job.
func (l *Ledger) GetResult(ctx context.Context, jobID string) ([]byte, error) {
	v, err := l.store.HGet(ctx, l.resultKey, jobID)
	if errors.Is(err, store.ErrNil) || (err == nil && v == "") {
		return nil, fmt.Errorf("%w: result of job %s not found or job not completed", models.ErrNotFound, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get result of %s: %v", models.ErrDependency, jobID, err)
	}
	image, err := base64.StdEncoding.DecodeString(v)
	if err != nil {
		return nil, fmt.Errorf("result of job %s is corrupt: %w", jobID, err)
	}
	return image, nil
}

// All returns every known job id with its status.
func (l *Ledger) All(ctx context.Context) (map[string]models.JobStatus, error) {
	raw, err := l.store.HGetAll(ctx, l.statusKey)
	if err != nil {
		return nil, fmt.Errorf("%w: list statuses: %v", models.ErrDependency, err)
	}
	out := make(map[string]models.JobStatus, len(raw))
	for id, status := range raw {
		out[id] = models.JobStatus(status)
	}
	return out, nil
}
