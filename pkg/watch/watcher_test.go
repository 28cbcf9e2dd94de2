package watch_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/ccdb/pkg/watch"
)

const (
	testInterval = 50 * time.Millisecond
	testTimeout  = 5 * time.Second
)

func TestDebouncer_CollapsesBurst(t *testing.T) {
	t.Parallel()

	d := watch.NewDebouncer(testInterval)

	for range 5 {
		d.Trigger()
	}

	select {
	case <-d.C():
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for debounced fire")
	}

	select {
	case <-d.C():
		t.Fatal("burst fired more than once")
	case <-time.After(3 * testInterval):
	}
}

func TestDebouncer_Stop(t *testing.T) {
	t.Parallel()

	d := watch.NewDebouncer(testInterval)
	d.Trigger()
	d.Stop()

	select {
	case <-d.C():
		t.Fatal("stopped debouncer fired")
	case <-time.After(3 * testInterval):
	}
}

func TestNew_InvalidDebounce(t *testing.T) {
	t.Parallel()

	_, err := watch.New(filepath.Join(t.TempDir(), "compile_commands.json"), 0, nil)

	assert.ErrorIs(t, err, watch.ErrInvalidDebounce)
}

func TestNew_MissingDirectory(t *testing.T) {
	t.Parallel()

	_, err := watch.New(filepath.Join(t.TempDir(), "gone", "compile_commands.json"), testInterval, nil)

	assert.Error(t, err)
}

func TestWatcher_RunCallsOnChange(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "compile_commands.json")

	w, err := watch.New(path, testInterval, nil)
	require.NoError(t, err)

	t.Cleanup(func() { _ = w.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := make(chan struct{}, 8)
	done := make(chan error, 1)

	go func() {
		done <- w.Run(ctx, func(context.Context) error {
			calls <- struct{}{}

			return errors.New("handler errors are logged only")
		})
	}()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(path, []byte("[]"), 0o600))

	select {
	case <-calls:
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for change callback")
	}

	require.NoError(t, os.WriteFile(path, []byte("[ ]"), 0o600))

	select {
	case <-calls:
	case <-time.After(testTimeout):
		t.Fatal("loop stopped after a handler error")
	}

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(testTimeout):
		t.Fatal("Run did not return after cancel")
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	w, err := watch.New(filepath.Join(dir, "compile_commands.json"), testInterval, nil)
	require.NoError(t, err)

	t.Cleanup(func() { _ = w.Close() })

	ctx, cancel := context.WithCancel(context.Background())

	var calls atomic.Int32

	done := make(chan struct{})

	go func() {
		defer close(done)

		_ = w.Run(ctx, func(context.Context) error {
			calls.Add(1)

			return nil
		})
	}()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.json"), []byte("[]"), 0o600))
	time.Sleep(5 * testInterval)

	cancel()
	<-done

	assert.Zero(t, calls.Load())
}
