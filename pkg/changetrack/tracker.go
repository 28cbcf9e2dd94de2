// Package changetrack decides whether a compilation database changed since it
// was last consumed, using a persisted modification timestamp.
package changetrack

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrPersistence indicates the timestamp store could not be read or flushed.
var ErrPersistence = errors.New("change store persistence failed")

// Store is the key/value contract the tracker needs. Get returns 0 for unknown
// keys; writes are durable only after Flush.
type Store interface {
	Get(key string) (int64, error)
	Put(key string, value int64) error
	Remove(key string) error
	Flush() error
}

// Record is the stored and the observed timestamp of one database file, in
// epoch milliseconds. Zero means never recorded, or file missing.
type Record struct {
	Key     string `json:"key"     yaml:"key"`
	Stored  int64  `json:"stored"  yaml:"stored"`
	Current int64  `json:"current" yaml:"current"`
}

// Changed reports any difference, including a file that became older.
func (r Record) Changed() bool {
	return r.Stored != r.Current
}

// Tracker tracks one database file in one store.
type Tracker struct {
	store Store
	key   string
}

// New creates a tracker for path. The key is the absolute path.
func New(store Store, path string) (*Tracker, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}

	return &Tracker{store: store, key: abs}, nil
}

// Key returns the store key, i.e. the absolute database path.
func (t *Tracker) Key() string {
	return t.key
}

// HasChanged compares the stored timestamp with the file's current one. With
// reset it records the current timestamp first, whether or not it changed, so
// an immediate second call returns false.
func (t *Tracker) HasChanged(reset bool) (bool, error) {
	stored, err := t.store.Get(t.key)
	if err != nil {
		return false, fmt.Errorf("%w: get %s: %w", ErrPersistence, t.key, err)
	}

	current := ModTime(t.key)

	if reset {
		err = t.Commit(current)
		if err != nil {
			return stored != current, err
		}
	}

	return stored != current, nil
}

// Inspect reads both timestamps without writing anything.
func (t *Tracker) Inspect() (Record, error) {
	stored, err := t.store.Get(t.key)
	if err != nil {
		return Record{}, fmt.Errorf("%w: get %s: %w", ErrPersistence, t.key, err)
	}

	return Record{Key: t.key, Stored: stored, Current: ModTime(t.key)}, nil
}

// Forget drops the stored timestamp so the next check reports a change.
func (t *Tracker) Forget() error {
	err := t.store.Remove(t.key)
	if err != nil {
		return fmt.Errorf("%w: remove %s: %w", ErrPersistence, t.key, err)
	}

	err = t.store.Flush()
	if err != nil {
		return fmt.Errorf("%w: flush: %w", ErrPersistence, err)
	}

	return nil
}

// Commit records timestamp as consumed. Callers that read the database pass
// the timestamp observed before reading it, so a write that lands meanwhile
// is still reported as a change.
func (t *Tracker) Commit(timestamp int64) error {
	err := t.store.Put(t.key, timestamp)
	if err != nil {
		return fmt.Errorf("%w: put %s: %w", ErrPersistence, t.key, err)
	}

	err = t.store.Flush()
	if err != nil {
		return fmt.Errorf("%w: flush: %w", ErrPersistence, err)
	}

	return nil
}

// ModTime returns the modification time of path in epoch milliseconds, or 0
// when the file does not exist or cannot be stat'ed.
func ModTime(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}

	return info.ModTime().UnixMilli()
}
