// Package store provides the shared key-value backend used as dataset cache,
// job ledger, job queue and event bus.
package store

import (
	"context"
	"errors"
)

var (
	// ErrNil is returned when a key or hash field does not exist.
	ErrNil = errors.New("store: nil")

	// ErrSnapshotInProgress is returned when a background snapshot is already running.
	ErrSnapshotInProgress = errors.New("store: snapshot already in progress")
)

// Store is the subset of Redis semantics the service relies on.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Del(ctx context.Context, keys ...string) error

	HGet(ctx context.Context, key, field string) (string, error)
	HSet(ctx context.Context, key, field, value string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	RPush(ctx context.Context, key, value string) error
	// BLPop blocks until the list has an element or ctx is done.
	BLPop(ctx context.Context, key string) (string, error)

	Publish(ctx context.Context, channel, message string) error
	// Subscribe delivers messages until ctx is done, then closes the channel.
	Subscribe(ctx context.Context, channel string) (<-chan string, error)

	// Snapshot starts a fire-and-forget background save.
	Snapshot(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
