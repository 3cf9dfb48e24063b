package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Keys of the persisted collections.
const (
	KeyArticles     = "articles"
	KeyFeeds        = "feeds"
	KeyTriggers     = "triggers"
	KeyAlertHistory = "alert_history"
)

// StateStore persists independently keyed JSON blobs. Load reports false
// when the key has never been saved.
type StateStore interface {
	Load(ctx context.Context, key string, v any) (bool, error)
	Save(ctx context.Context, key string, v any) error
}

// MemoryState keeps encoded blobs in process memory. Values still go through
// JSON so callers never share memory with the store.
type MemoryState struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

var _ StateStore = (*MemoryState)(nil)

func NewMemoryState() *MemoryState {
	return &MemoryState{blobs: make(map[string][]byte)}
}

func (m *MemoryState) Load(_ context.Context, key string, v any) (bool, error) {
	m.mu.RLock()
	raw, ok := m.blobs[key]
	m.mu.RUnlock()

	if !ok {
		return false, nil
	}

	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}

	return true, nil
}

func (m *MemoryState) Save(_ context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	m.mu.Lock()
	m.blobs[key] = raw
	m.mu.Unlock()

	return nil
}
