package models

import (
	"fmt"
	"strings"
	"time"
)

// JobStatus represents the current state of a job in the ledger
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Failed builds the terminal status string carrying a human-readable reason.
func Failed(reason string) JobStatus {
	if reason == "" {
		return StatusFailed
	}
	return JobStatus(fmt.Sprintf("%s: %s", StatusFailed, reason))
}

// State strips the failure reason, so "failed: no data" reports StatusFailed.
func (s JobStatus) State() JobStatus {
	if s == StatusFailed || strings.HasPrefix(string(s), string(StatusFailed)+":") {
		return StatusFailed
	}
	return s
}

// Reason returns the failure reason, or "" for non-failed statuses.
func (s JobStatus) Reason() string {
	if s == StatusFailed || s.State() != StatusFailed {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(string(s), string(StatusFailed)+":"))
}

// IsTerminal reports whether the worker will never touch the job again.
func (s JobStatus) IsTerminal() bool {
	switch s.State() {
	case StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// PlotType selects the chart style. The zero value means auto-detect.
type PlotType string

const (
	PlotAuto    PlotType = ""
	PlotScatter PlotType = "scatter"
	PlotBar     PlotType = "bar"
)

// Valid reports whether p is a known plot type (or auto).
func (p PlotType) Valid() bool {
	switch p {
	case PlotAuto, PlotScatter, PlotBar:
		return true
	}
	return false
}

// PlotJob is the descriptor placed on the queue. It is immutable once enqueued.
type PlotJob struct {
	ID       string   `json:"job_id"`
	XField   string   `json:"x_field"`
	YField   string   `json:"y_field"`
	PlotType PlotType `json:"plot_type,omitempty"`
}

// Validate checks the fields a worker needs to run the job.
func (j PlotJob) Validate() error {
	if strings.TrimSpace(j.XField) == "" || strings.TrimSpace(j.YField) == "" {
		return fmt.Errorf("%w: missing job fields", ErrValidation)
	}
	if !j.PlotType.Valid() {
		return fmt.Errorf("%w: unknown plot_type %q", ErrValidation, j.PlotType)
	}
	return nil
}

// JobEvent is published on every status transition.
type JobEvent struct {
	JobID  string    `json:"job_id"`
	Status JobStatus `json:"status"`
}

// JobOutcome describes a job that reached a terminal status.
type JobOutcome struct {
	Job        PlotJob
	Status     JobStatus
	Worker     string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration is the wall time the worker spent on the job.
func (o JobOutcome) Duration() time.Duration {
	return o.FinishedAt.Sub(o.StartedAt)
}
