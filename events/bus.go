// Package events carries job status transitions from the worker to API
// processes over the store's pub/sub channel.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jupark12/go-plot-queue/models"
	"github.com/jupark12/go-plot-queue/store"
)

// Bus publishes and subscribes to job events on one channel.
type Bus struct {
	store   store.Store
	channel string
	logger  *slog.Logger
}

// NewBus creates a bus on the given channel.
func NewBus(s store.Store, channel string, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{store: s, channel: channel, logger: logger}
}

// Publish sends an event. Events are best effort; nobody listening is fine.
func (b *Bus) Publish(ctx context.Context, event models.JobEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal job event: %w", err)
	}
	return b.store.Publish(ctx, b.channel, string(data))
}

// Notify adapts Publish to the worker's notifier callback, logging failures.
func (b *Bus) Notify(event models.JobEvent) {
	if err := b.Publish(context.Background(), event); err != nil {
		b.logger.Warn("failed to publish job event", "job_id", event.JobID, "error", err)
	}
}

// Subscribe streams decoded events until ctx is done.
func (b *Bus) Subscribe(ctx context.Context) (<-chan models.JobEvent, error) {
	raw, err := b.store.Subscribe(ctx, b.channel)
	if err != nil {
		return nil, err
	}

	out := make(chan models.JobEvent)
	go func() {
		defer close(out)
		for msg := range raw {
			var event models.JobEvent
			if err := json.Unmarshal([]byte(msg), &event); err != nil {
				b.logger.Warn("dropping malformed job event", "payload", msg, "error", err)
				continue
			}
			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
