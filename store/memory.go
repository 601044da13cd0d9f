package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"sync"
)

// Memory is an in-process Store. It backs single-process deployments and tests.
type Memory struct {
	mu      sync.Mutex
	strings map[string]string
	hashes  map[string]map[string]string
	lists   map[string][]string
	// wake is closed and replaced on every push so blocked poppers re-check.
	wake chan struct{}

	subsMu sync.Mutex
	subs   map[string]map[chan string]struct{}

	snapshotPath string
	saving       bool
	saved        chan struct{}
	logger       *slog.Logger
}

// NewMemory creates an empty in-process store. Snapshots are written as JSON to
// snapshotPath; an empty path makes Snapshot a no-op.
func NewMemory(snapshotPath string, logger *slog.Logger) *Memory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Memory{
		strings:      make(map[string]string),
		hashes:       make(map[string]map[string]string),
		lists:        make(map[string][]string),
		wake:         make(chan struct{}),
		subs:         make(map[string]map[chan string]struct{}),
		snapshotPath: snapshotPath,
		logger:       logger,
	}
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.strings[key]
	if !ok {
		return "", ErrNil
	}
	return v, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strings[key] = value
	return nil
}

func (m *Memory) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.strings, key)
		delete(m.hashes, key)
		delete(m.lists, key)
	}
	return nil
}

func (m *Memory) HGet(_ context.Context, key, field string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.hashes[key][field]
	if !ok {
		return "", ErrNil
	}
	return v, nil
}

func (m *Memory) HSet(_ context.Context, key, field, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string]string)
		m.hashes[key] = h
	}
	h[field] = value
	return nil
}

func (m *Memory) HGetAll(_ context.Context, key string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.hashes[key]))
	maps.Copy(out, m.hashes[key])
	return out, nil
}

func (m *Memory) RPush(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists[key] = append(m.lists[key], value)
	close(m.wake)
	m.wake = make(chan struct{})
	return nil
}

func (m *Memory) BLPop(ctx context.Context, key string) (string, error) {
	for {
		m.mu.Lock()
		if l := m.lists[key]; len(l) > 0 {
			v := l[0]
			if len(l) == 1 {
				delete(m.lists, key)
			} else {
				m.lists[key] = l[1:]
			}
			m.mu.Unlock()
			return v, nil
		}
		wake := m.wake
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-wake:
		}
	}
}

// Len returns the length of a list. Used by tests and diagnostics.
func (m *Memory) Len(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.lists[key])
}

func (m *Memory) Publish(_ context.Context, channel, message string) error {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for sub := range m.subs[channel] {
		select {
		case sub <- message:
		default:
			m.logger.Warn("subscriber is slow, dropping message", "channel", channel)
		}
	}
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, channel string) (<-chan string, error) {
	sub := make(chan string, 64)

	m.subsMu.Lock()
	if m.subs[channel] == nil {
		m.subs[channel] = make(map[chan string]struct{})
	}
	m.subs[channel][sub] = struct{}{}
	m.subsMu.Unlock()

	go func() {
		<-ctx.Done()
		m.subsMu.Lock()
		delete(m.subs[channel], sub)
		close(sub)
		m.subsMu.Unlock()
	}()

	return sub, nil
}

// Snapshot dumps strings, hashes and lists to the snapshot file in the background.
func (m *Memory) Snapshot(_ context.Context) error {
	m.mu.Lock()
	if m.saving {
		m.mu.Unlock()
		return ErrSnapshotInProgress
	}
	m.saving = true
	m.saved = make(chan struct{})
	dump := struct {
		Strings map[string]string            `json:"strings"`
		Hashes  map[string]map[string]string `json:"hashes"`
		Lists   map[string][]string          `json:"lists"`
	}{
		Strings: maps.Clone(m.strings),
		Hashes:  make(map[string]map[string]string, len(m.hashes)),
		Lists:   make(map[string][]string, len(m.lists)),
	}
	for k, h := range m.hashes {
		dump.Hashes[k] = maps.Clone(h)
	}
	for k, l := range m.lists {
		dump.Lists[k] = append([]string(nil), l...)
	}
	saved := m.saved
	m.mu.Unlock()

	go func() {
		defer func() {
			m.mu.Lock()
			m.saving = false
			m.mu.Unlock()
			close(saved)
		}()

		if m.snapshotPath == "" {
			return
		}
		data, err := json.Marshal(dump)
		if err != nil {
			m.logger.Error("snapshot marshal failed", "error", err)
			return
		}
		if err := os.WriteFile(m.snapshotPath, data, 0644); err != nil {
			m.logger.Error("snapshot write failed", "path", m.snapshotPath, "error", err)
			return
		}
		m.logger.Info("snapshot written", "path", m.snapshotPath, "bytes", len(data))
	}()

	return nil
}

// WaitSnapshot blocks until the running snapshot (if any) has finished.
func (m *Memory) WaitSnapshot() {
	m.mu.Lock()
	saved := m.saved
	m.mu.Unlock()
	if saved != nil {
		<-saved
	}
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }

// String implements fmt.Stringer for log output.
func (m *Memory) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fmt.Sprintf("memory(strings=%d hashes=%d lists=%d)", len(m.strings), len(m.hashes), len(m.lists))
}
