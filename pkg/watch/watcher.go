package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrInvalidDebounce is returned for a non-positive debounce interval.
var ErrInvalidDebounce = errors.New("debounce interval must be positive")

const relevantOps = fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename

// OnChange is called after the watched file settles. Errors are logged and
// do not stop the loop.
type OnChange func(ctx context.Context) error

// Watcher watches one file through its parent directory, so the file may be
// replaced by rename or deleted and recreated by the build tool.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	debouncer *Debouncer
	path      string
	logger    *slog.Logger
}

// New creates a watcher for path.
func New(path string, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	if debounce <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDebounce, debounce)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fs watcher: %w", err)
	}

	err = fsWatcher.Add(filepath.Dir(abs))
	if err != nil {
		fsWatcher.Close()

		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	return &Watcher{
		fsWatcher: fsWatcher,
		debouncer: NewDebouncer(debounce),
		path:      abs,
		logger:    logger,
	}, nil
}

// Path returns the absolute path of the watched file.
func (w *Watcher) Path() string {
	return w.path
}

// Run calls onChange after each settled burst of events on the watched file
// until ctx is done. It returns nil on cancellation.
func (w *Watcher) Run(ctx context.Context, onChange OnChange) error {
	defer w.debouncer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}

			if w.relevant(event) {
				w.logger.DebugContext(ctx, "database event", slog.String("op", event.Op.String()))
				w.debouncer.Trigger()
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}

			w.logger.WarnContext(ctx, "watcher error", slog.Any("error", err))

		case <-w.debouncer.C():
			err := onChange(ctx)
			if err != nil {
				w.logger.ErrorContext(ctx, "change handler failed", slog.Any("error", err))
			}
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&relevantOps == 0 {
		return false
	}

	return filepath.Clean(event.Name) == w.path
}

// Close stops the watcher and releases resources.
func (w *Watcher) Close() error {
	err := w.fsWatcher.Close()
	if err != nil {
		return fmt.Errorf("close fs watcher: %w", err)
	}

	return nil
}
