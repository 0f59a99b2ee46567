package dedup

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"sync"
)

type memoryStore struct {
	mu     sync.Mutex
	data   map[string][]byte
	gets   int
	puts   int
	getErr error
	putErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[string][]byte)}
}

func (m *memoryStore) Get(_ context.Context, key string, dst any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.getErr != nil {
		return false, m.getErr
	}
	raw, ok := m.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dst)
}

func (m *memoryStore) Put(_ context.Context, key string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	if m.putErr != nil {
		return m.putErr
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.data[key] = raw
	return nil
}

func (m *memoryStore) ids(key string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	if raw, ok := m.data[key]; ok {
		_ = json.Unmarshal(raw, &ids)
	}
	return ids
}

var errStoreDown = errors.New("store down")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}
