// Package engine ties loading, extraction, toolchain detection and change
// tracking of one compilation database into a session.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/ccdb/pkg/changetrack"
	"github.com/Sumatoshi-tech/ccdb/pkg/compiledb"
	"github.com/Sumatoshi-tech/ccdb/pkg/prefstore"
	"github.com/Sumatoshi-tech/ccdb/pkg/toolchain"
)

const (
	spanParse   = "ccdb.parse"
	spanRefresh = "ccdb.refresh"

	attrDatabase = "ccdb.database"
	attrUnits    = "ccdb.units"
	attrChanged  = "ccdb.changed"
)

// Recorder receives ingestion measurements. *observability.IngestMetrics
// implements it.
type Recorder interface {
	RecordParse(ctx context.Context, duration time.Duration, units int, err error)
	RecordChangeCheck(ctx context.Context, changed bool)
}

// Option configures a Session.
type Option func(*Session)

// WithProject sets the owning project name.
func WithProject(name string) Option {
	return func(s *Session) { s.project = name }
}

// WithConfig sets the build configuration name (e.g. "Debug").
func WithConfig(name string) Option {
	return func(s *Session) { s.config = name }
}

// WithStore sets the timestamp store already scoped to the project and
// configuration. Without it the session keeps timestamps in memory.
func WithStore(store changetrack.Store) Option {
	return func(s *Session) { s.store = store }
}

// WithLogger sets the session logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(recorder Recorder) Option {
	return func(s *Session) { s.recorder = recorder }
}

// WithTracer sets the tracer used for parse and refresh spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Session) { s.tracer = tracer }
}

// WithDetectorOptions forwards options to the toolchain detector.
func WithDetectorOptions(opts ...toolchain.Option) Option {
	return func(s *Session) { s.detectOpts = append(s.detectOpts, opts...) }
}

// Session owns the parsed state of one compilation database. Parse replaces
// the state only when the whole pass succeeds.
type Session struct {
	path    string
	project string
	config  string

	store      changetrack.Store
	tracker    *changetrack.Tracker
	detector   *toolchain.Detector
	detectOpts []toolchain.Option
	logger     *slog.Logger
	recorder   Recorder
	tracer     trace.Tracer

	mu        sync.RWMutex
	units     []compiledb.CompileUnit
	toolchain toolchain.Info
}

// New creates a session for the database at path. Nothing is read until Parse.
func New(path string, opts ...Option) (*Session, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}

	s := &Session{path: abs}

	for _, opt := range opts {
		opt(s)
	}

	if s.store == nil {
		s.store = prefstore.NewMemory()
	}

	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}

	if s.tracer == nil {
		s.tracer = nooptrace.NewTracerProvider().Tracer("ccdb")
	}

	s.logger = s.logger.With(slog.String("database", abs))

	s.tracker, err = changetrack.New(s.store, abs)
	if err != nil {
		return nil, err
	}

	s.detector = toolchain.NewDetector(append(s.detectOpts, toolchain.WithLogger(s.logger))...)
	s.units = []compiledb.CompileUnit{}

	return s, nil
}

// Path returns the absolute database path.
func (s *Session) Path() string { return s.path }

// Project returns the owning project name.
func (s *Session) Project() string { return s.project }

// Config returns the build configuration name.
func (s *Session) Config() string { return s.config }

// Parse loads the database, extracts its units and detects the toolchain from
// the first unit. On error the previous units and toolchain are kept.
func (s *Session) Parse(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, spanParse, trace.WithAttributes(attribute.String(attrDatabase, s.path)))
	defer span.End()

	start := time.Now()

	units, info, err := s.parse(ctx)

	if s.recorder != nil {
		s.recorder.RecordParse(ctx, time.Since(start), len(units), err)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.ErrorContext(ctx, "parse failed", slog.Any("error", err))

		return err
	}

	span.SetAttributes(attribute.Int(attrUnits, len(units)))

	s.mu.Lock()
	s.units = units
	s.toolchain = info
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "database parsed",
		slog.Int("units", len(units)),
		slog.String("compiler", info.Command),
		slog.String("sysroot", info.Sysroot),
	)

	return nil
}

func (s *Session) parse(ctx context.Context) ([]compiledb.CompileUnit, toolchain.Info, error) {
	records, err := compiledb.Load(s.path)
	if err != nil {
		return nil, toolchain.Info{}, err
	}

	units := compiledb.Extract(records)
	if len(units) == 0 {
		return units, toolchain.Info{}, nil
	}

	info := s.detector.Detect(units[0].Command)
	if !info.HasCompiler() {
		s.logger.WarnContext(ctx, "no compiler in first command",
			slog.Any("error", toolchain.ErrEmptyToolchain),
			slog.String("file", units[0].SourceFile),
		)
	}

	return units, info, nil
}

// Sources returns the units of the last successful pass in database order.
func (s *Session) Sources() []compiledb.CompileUnit {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]compiledb.CompileUnit, len(s.units))
	copy(out, s.units)

	return out
}

// SourcesOutsideProject is always empty; units are never classified against
// the project tree.
func (s *Session) SourcesOutsideProject() []compiledb.CompileUnit {
	return []compiledb.CompileUnit{}
}

// HasSourcesOutsideProject is always false.
func (s *Session) HasSourcesOutsideProject() bool { return false }

// IsOutsideProject is always false.
func (s *Session) IsOutsideProject(compiledb.CompileUnit) bool { return false }

// Toolchain returns the toolchain of the last successful pass. It is zero
// before the first pass and after a pass over an empty database.
func (s *Session) Toolchain() toolchain.Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.toolchain
}

// HasChanged reports whether the database file changed since the last reset.
func (s *Session) HasChanged(ctx context.Context, reset bool) (bool, error) {
	changed, err := s.tracker.HasChanged(reset)

	if s.recorder != nil {
		s.recorder.RecordChangeCheck(ctx, changed)
	}

	if err != nil {
		s.logger.WarnContext(ctx, "change store", slog.Any("error", err))
	}

	return changed, err
}

// Inspect returns the stored and current timestamps of the database.
func (s *Session) Inspect() (changetrack.Record, error) {
	return s.tracker.Inspect()
}

// Forget drops the stored timestamp.
func (s *Session) Forget() error {
	return s.tracker.Forget()
}

// Refresh re-parses the database when it changed and then records the
// timestamp seen before the pass as consumed. It reports whether a parse pass
// ran. A failed parse is not recorded, so the next Refresh retries, and a
// write during the pass is picked up by the next Refresh.
func (s *Session) Refresh(ctx context.Context) (bool, error) {
	ctx, span := s.tracer.Start(ctx, spanRefresh, trace.WithAttributes(attribute.String(attrDatabase, s.path)))
	defer span.End()

	before, err := s.tracker.Inspect()
	if err != nil {
		s.logger.WarnContext(ctx, "change store", slog.Any("error", err))

		return false, err
	}

	changed := before.Changed()

	if s.recorder != nil {
		s.recorder.RecordChangeCheck(ctx, changed)
	}

	span.SetAttributes(attribute.Bool(attrChanged, changed))

	if !changed {
		return false, nil
	}

	err = s.Parse(ctx)
	if err != nil {
		return true, err
	}

	// Commit what was observed before the pass, not the current mtime.
	err = s.tracker.Commit(before.Current)
	if err != nil {
		s.logger.WarnContext(ctx, "change store", slog.Any("error", err))
	}

	return true, err
}

// DefaultProject names a project after the directory holding its database,
// for callers that were given no explicit project name.
func DefaultProject(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	return filepath.Base(filepath.Dir(abs))
}
