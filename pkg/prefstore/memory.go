package prefstore

import "sync"

// Memory is an in-process store with the same contract as Node, minus the
// file. Flush only counts calls.
type Memory struct {
	mu      sync.Mutex
	values  map[string]int64
	flushes int
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]int64)}
}

// Get returns the stored value, or 0 when absent.
func (m *Memory) Get(key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.values[key], nil
}

// Put stores value under key.
func (m *Memory) Put(key string, value int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = value

	return nil
}

// Remove deletes key.
func (m *Memory) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.values, key)

	return nil
}

// Flush implements the store contract.
func (m *Memory) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.flushes++

	return nil
}

// Flushes returns how many times Flush was called.
func (m *Memory) Flushes() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.flushes
}
