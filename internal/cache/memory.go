package cache

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-process cache, used by tests and dry runs.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]map[string][]byte
}

// NewMemory returns an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]map[string][]byte)}
}

func (m *Memory) Driver() Driver { return DriverMemory }

func (m *Memory) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	body, ok := m.entries[namespace][key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), body...), true, nil
}

func (m *Memory) Put(ctx context.Context, namespace, key string, body []byte) error {
	if err := checkName(namespace); err != nil {
		return err
	}
	if err := checkName(key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ns, ok := m.entries[namespace]
	if !ok {
		ns = make(map[string][]byte)
		m.entries[namespace] = ns
	}
	ns[key] = append([]byte(nil), body...)
	return nil
}

func (m *Memory) Delete(ctx context.Context, namespace, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[namespace][key]; !ok {
		return false, nil
	}
	delete(m.entries[namespace], key)
	return true, nil
}

func (m *Memory) List(ctx context.Context, namespace string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.entries[namespace]))
	for k := range m.entries[namespace] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
