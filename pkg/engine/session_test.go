package engine_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/ccdb/pkg/compiledb"
	"github.com/Sumatoshi-tech/ccdb/pkg/engine"
	"github.com/Sumatoshi-tech/ccdb/pkg/prefstore"
	"github.com/Sumatoshi-tech/ccdb/pkg/toolchain"
)

const crossDatabase = `[
  {"directory": "/build", "command": "/opt/cross/bin/arm-linux-gnueabi-gcc --sysroot=/opt/sysroot -c /src/a.c -o a.o", "file": "/src/a.c"},
  {"directory": "/build", "command": "/usr/bin/g++ -c /src/b.cpp", "file": "/src/b.cpp"}
]`

type recorder struct {
	mu     sync.Mutex
	parses []error
	units  []int
	checks []bool

	// afterParse runs inside Parse, before the session commits anything.
	afterParse func(pass int)
}

func (r *recorder) RecordParse(_ context.Context, _ time.Duration, units int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.parses = append(r.parses, err)
	r.units = append(r.units, units)

	if r.afterParse != nil {
		r.afterParse(len(r.parses))
	}
}

func (r *recorder) RecordChangeCheck(_ context.Context, changed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.checks = append(r.checks, changed)
}

func writeDatabase(t *testing.T, dir, content string, mtime time.Time) string {
	t.Helper()

	path := filepath.Join(dir, compiledb.DefaultFilename)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	require.NoError(t, os.Chtimes(path, mtime, mtime))

	return path
}

func TestSession_ParseCrossToolchain(t *testing.T) {
	t.Parallel()

	path := writeDatabase(t, t.TempDir(), crossDatabase, time.UnixMilli(1700000000000))
	rec := &recorder{}

	session, err := engine.New(path, engine.WithProject("demo"), engine.WithConfig("Debug"), engine.WithRecorder(rec))
	require.NoError(t, err)

	require.NoError(t, session.Parse(context.Background()))

	sources := session.Sources()
	require.Len(t, sources, 2)
	assert.Equal(t, "/src/a.c", sources[0].SourceFile)
	assert.Equal(t, "/src/b.cpp", sources[1].SourceFile)

	info := session.Toolchain()
	assert.Equal(t, "/opt/cross/bin/arm-linux-gnueabi-gcc", info.Command)
	assert.Equal(t, "/opt/cross/bin", info.Directory)
	assert.Equal(t, "arm-linux-gnueabi-gcc", info.Executable)
	assert.Equal(t, "/opt/sysroot", info.Sysroot)
	assert.Equal(t, "--sysroot /opt/sysroot", info.Flags)

	assert.Equal(t, "demo", session.Project())
	assert.Equal(t, "Debug", session.Config())
	assert.Equal(t, path, session.Path())
	assert.Equal(t, []int{2}, rec.units)
}

func TestSession_OutsideProjectAlwaysEmpty(t *testing.T) {
	t.Parallel()

	path := writeDatabase(t, t.TempDir(), crossDatabase, time.Now())

	session, err := engine.New(path)
	require.NoError(t, err)
	require.NoError(t, session.Parse(context.Background()))

	assert.Empty(t, session.SourcesOutsideProject())
	assert.NotNil(t, session.SourcesOutsideProject())
	assert.False(t, session.HasSourcesOutsideProject())

	for _, unit := range session.Sources() {
		assert.False(t, session.IsOutsideProject(unit))
	}
}

func TestSession_EmptyDatabase(t *testing.T) {
	t.Parallel()

	path := writeDatabase(t, t.TempDir(), "[]", time.Now())

	session, err := engine.New(path)
	require.NoError(t, err)
	require.NoError(t, session.Parse(context.Background()))

	assert.Empty(t, session.Sources())
	assert.True(t, session.Toolchain().IsZero())
}

func TestSession_NoCompilerToken(t *testing.T) {
	t.Parallel()

	path := writeDatabase(t, t.TempDir(),
		`[{"directory": "/b", "command": "clang -c a.c", "file": "a.c"}]`, time.Now())

	session, err := engine.New(path)
	require.NoError(t, err)
	require.NoError(t, session.Parse(context.Background()))

	assert.Len(t, session.Sources(), 1)
	assert.False(t, session.Toolchain().HasCompiler())
	assert.Empty(t, session.Toolchain().Directory)
}

func TestSession_FailedParseKeepsPreviousState(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeDatabase(t, dir, crossDatabase, time.Now())
	rec := &recorder{}

	session, err := engine.New(path, engine.WithRecorder(rec))
	require.NoError(t, err)
	require.NoError(t, session.Parse(context.Background()))

	writeDatabase(t, dir, `[{"directory": "/b", "command": "gcc -c x.c"}]`, time.Now())

	err = session.Parse(context.Background())
	require.ErrorIs(t, err, compiledb.ErrMissingField)

	assert.Len(t, session.Sources(), 2)
	assert.Equal(t, "/opt/sysroot", session.Toolchain().Sysroot)
	require.Len(t, rec.parses, 2)
	assert.NoError(t, rec.parses[0])
	assert.Error(t, rec.parses[1])
}

func TestSession_MissingDatabase(t *testing.T) {
	t.Parallel()

	session, err := engine.New(filepath.Join(t.TempDir(), compiledb.DefaultFilename))
	require.NoError(t, err)

	err = session.Parse(context.Background())
	require.ErrorIs(t, err, compiledb.ErrNotFound)
	assert.Empty(t, session.Sources())
}

func TestSession_SourcesIsACopy(t *testing.T) {
	t.Parallel()

	path := writeDatabase(t, t.TempDir(), crossDatabase, time.Now())

	session, err := engine.New(path)
	require.NoError(t, err)
	require.NoError(t, session.Parse(context.Background()))

	sources := session.Sources()
	sources[0].SourceFile = "mutated"

	assert.Equal(t, "/src/a.c", session.Sources()[0].SourceFile)
}

func TestSession_StrictDetector(t *testing.T) {
	t.Parallel()

	path := writeDatabase(t, t.TempDir(),
		`[{"directory": "/b", "command": "gcc --sysroot \"/opt/my sysroot\" -c a.c", "file": "a.c"}]`, time.Now())

	session, err := engine.New(path, engine.WithDetectorOptions(toolchain.WithStrictTokenizer()))
	require.NoError(t, err)
	require.NoError(t, session.Parse(context.Background()))

	assert.Equal(t, "/opt/my sysroot", session.Toolchain().Sysroot)
}

func TestSession_Refresh(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeDatabase(t, dir, crossDatabase, time.UnixMilli(1700000000000))
	store := prefstore.NewMemory()

	session, err := engine.New(path, engine.WithStore(store))
	require.NoError(t, err)

	ctx := context.Background()

	parsed, err := session.Refresh(ctx)
	require.NoError(t, err)
	assert.True(t, parsed)
	assert.Len(t, session.Sources(), 2)

	parsed, err = session.Refresh(ctx)
	require.NoError(t, err)
	assert.False(t, parsed)

	writeDatabase(t, dir, "[]", time.UnixMilli(1700000009000))

	parsed, err = session.Refresh(ctx)
	require.NoError(t, err)
	assert.True(t, parsed)
	assert.Empty(t, session.Sources())
}

func TestSession_RefreshKeepsWriteDuringParsePending(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeDatabase(t, dir, crossDatabase, time.UnixMilli(1700000000000))

	rec := &recorder{afterParse: func(pass int) {
		if pass == 1 {
			writeDatabase(t, dir, "[]", time.UnixMilli(1700000009000))
		}
	}}

	session, err := engine.New(path, engine.WithStore(prefstore.NewMemory()), engine.WithRecorder(rec))
	require.NoError(t, err)

	ctx := context.Background()

	parsed, err := session.Refresh(ctx)
	require.NoError(t, err)
	assert.True(t, parsed)
	assert.Len(t, session.Sources(), 2)

	parsed, err = session.Refresh(ctx)
	require.NoError(t, err)
	assert.True(t, parsed, "the rewrite during the first pass must be ingested")
	assert.Empty(t, session.Sources())

	parsed, err = session.Refresh(ctx)
	require.NoError(t, err)
	assert.False(t, parsed)
}

func TestSession_RefreshFailureIsRetried(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeDatabase(t, dir, "{broken", time.UnixMilli(1700000000000))

	session, err := engine.New(path)
	require.NoError(t, err)

	ctx := context.Background()

	parsed, err := session.Refresh(ctx)
	require.ErrorIs(t, err, compiledb.ErrMalformedDatabase)
	assert.True(t, parsed)

	changed, err := session.HasChanged(ctx, false)
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestSession_HasChangedAndForget(t *testing.T) {
	t.Parallel()

	path := writeDatabase(t, t.TempDir(), crossDatabase, time.UnixMilli(1700000000000))
	rec := &recorder{}

	session, err := engine.New(path, engine.WithRecorder(rec))
	require.NoError(t, err)

	ctx := context.Background()

	changed, err := session.HasChanged(ctx, true)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = session.HasChanged(ctx, true)
	require.NoError(t, err)
	assert.False(t, changed)

	record, err := session.Inspect()
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000000), record.Stored)

	require.NoError(t, session.Forget())

	changed, err = session.HasChanged(ctx, false)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, []bool{true, false, true}, rec.checks)
}

func TestDefaultProject(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "build", engine.DefaultProject("/src/app/build/compile_commands.json"))
}
