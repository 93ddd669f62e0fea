// Package storage provides the durable storage capability the sync engine
// writes its state through. The engine persists two independent keys (the
// progress snapshot and the outbox queue) on every mutation; a third key
// holds replay confirmations. Embeddings without durable storage inject the
// in-memory implementation and lose nothing but crash durability.
package storage

import (
	"context"
	"errors"
	"sync"
)

// Well-known keys used by the engine.
const (
	KeyProgressSnapshot = "progress_snapshot"
	KeyOutboxQueue      = "outbox_queue"
	KeyConfirmations    = "sync_confirmations"
)

// ErrKeyNotFound is returned by Load when no value has been saved under the
// requested key.
var ErrKeyNotFound = errors.New("storage key not found")

// KV is a small durable key-value capability. Implementations must tolerate
// concurrent calls; values are opaque serialized blobs.
type KV interface {
	// Load returns the blob saved under key, or ErrKeyNotFound.
	Load(ctx context.Context, key string) ([]byte, error)

	// Save durably replaces the blob under key.
	Save(ctx context.Context, key string, data []byte) error

	// Delete removes the blob under key. Deleting a missing key is not an
	// error.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the implementation.
	Close() error
}

// Memory is a volatile KV for tests and embeddings without durable storage.
type Memory struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemory creates an empty in-memory KV.
func NewMemory() *Memory {
	return &Memory{values: make(map[string][]byte)}
}

// Load implements KV.
func (m *Memory) Load(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.values[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Save implements KV.
func (m *Memory) Save(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make([]byte, len(data))
	copy(stored, data)
	m.values[key] = stored
	return nil
}

// Delete implements KV.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.values, key)
	return nil
}

// Close implements KV.
func (m *Memory) Close() error {
	return nil
}
