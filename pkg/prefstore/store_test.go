package prefstore_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/ccdb/pkg/prefstore"
)

func TestOpen_EmptyProject(t *testing.T) {
	t.Parallel()

	_, err := prefstore.Open(t.TempDir(), prefstore.Scope{}, nil)

	assert.ErrorIs(t, err, prefstore.ErrEmptyProject)
}

func TestNode_GetAbsentIsZero(t *testing.T) {
	t.Parallel()

	node, err := prefstore.Open(t.TempDir(), prefstore.Scope{Project: "demo"}, nil)
	require.NoError(t, err)

	value, err := node.Get("/missing")
	require.NoError(t, err)
	assert.Zero(t, value)
}

func TestNode_FlushPersists(t *testing.T) {
	t.Parallel()

	for _, codec := range []prefstore.Codec{prefstore.JSONCodec{}, prefstore.YAMLCodec{}} {
		dir := t.TempDir()
		scope := prefstore.Scope{Project: "demo", Config: "Debug"}

		node, err := prefstore.Open(dir, scope, codec)
		require.NoError(t, err)

		require.NoError(t, node.Put("/a/compile_commands.json", 1700000000123))
		require.NoError(t, node.Flush())

		assert.True(t, strings.HasSuffix(node.Path(), codec.Extension()))

		reopened, err := prefstore.Open(dir, scope, codec)
		require.NoError(t, err)

		value, err := reopened.Get("/a/compile_commands.json")
		require.NoError(t, err)
		assert.Equal(t, int64(1700000000123), value)
	}
}

func TestNode_UnflushedNotPersisted(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	scope := prefstore.Scope{Project: "demo"}

	node, err := prefstore.Open(dir, scope, nil)
	require.NoError(t, err)

	require.NoError(t, node.Put("k", 42))

	reopened, err := prefstore.Open(dir, scope, nil)
	require.NoError(t, err)

	value, err := reopened.Get("k")
	require.NoError(t, err)
	assert.Zero(t, value)
}

func TestNode_ScopesAreIsolated(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	debug, err := prefstore.Open(dir, prefstore.Scope{Project: "demo", Config: "Debug"}, nil)
	require.NoError(t, err)

	require.NoError(t, debug.Put("k", 1))
	require.NoError(t, debug.Flush())

	release, err := prefstore.Open(dir, prefstore.Scope{Project: "demo", Config: "Release"}, nil)
	require.NoError(t, err)

	value, err := release.Get("k")
	require.NoError(t, err)
	assert.Zero(t, value)
	assert.NotEqual(t, debug.Path(), release.Path())
}

func TestNode_EscapesScopeNames(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	node, err := prefstore.Open(dir, prefstore.Scope{Project: "a/b", Config: "x y"}, nil)
	require.NoError(t, err)

	assert.Equal(t, dir, filepath.Dir(node.Path()))
	require.NoError(t, node.Put("k", 1))
	require.NoError(t, node.Flush())
}

func TestNode_SeparatorInNameDoesNotCollide(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	joined, err := prefstore.Open(dir, prefstore.Scope{Project: "fw@Debug"}, nil)
	require.NoError(t, err)

	split, err := prefstore.Open(dir, prefstore.Scope{Project: "fw", Config: "Debug"}, nil)
	require.NoError(t, err)

	assert.NotEqual(t, joined.Path(), split.Path())

	require.NoError(t, joined.Put("k", 42))
	require.NoError(t, joined.Flush())
	require.NoError(t, split.Put("other", 7))
	require.NoError(t, split.Flush())

	reopened, err := prefstore.Open(dir, prefstore.Scope{Project: "fw", Config: "Debug"}, nil)
	require.NoError(t, err)

	value, err := reopened.Get("k")
	require.NoError(t, err)
	assert.Zero(t, value)

	reopened, err = prefstore.Open(dir, prefstore.Scope{Project: "fw@Debug"}, nil)
	require.NoError(t, err)

	value, err = reopened.Get("k")
	require.NoError(t, err)
	assert.Equal(t, int64(42), value)
}

func TestNode_RemoveAndKeys(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	scope := prefstore.Scope{Project: "demo"}

	node, err := prefstore.Open(dir, scope, nil)
	require.NoError(t, err)

	require.NoError(t, node.Put("b", 2))
	require.NoError(t, node.Put("a", 1))
	assert.Equal(t, []string{"a", "b"}, node.Keys())

	require.NoError(t, node.Remove("a"))
	require.NoError(t, node.Flush())

	reopened, err := prefstore.Open(dir, scope, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, reopened.Keys())
}

func TestNode_FlushWithoutChangesWritesNothing(t *testing.T) {
	t.Parallel()

	node, err := prefstore.Open(t.TempDir(), prefstore.Scope{Project: "demo"}, nil)
	require.NoError(t, err)

	require.NoError(t, node.Flush())

	_, err = os.Stat(node.Path())
	assert.True(t, os.IsNotExist(err))
}

func TestOpen_CorruptFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	scope := prefstore.Scope{Project: "demo"}

	node, err := prefstore.Open(dir, scope, nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(node.Path(), []byte("{not json"), 0o600))

	_, err = prefstore.Open(dir, scope, nil)
	assert.Error(t, err)
}

func TestCodecByName(t *testing.T) {
	t.Parallel()

	codec, err := prefstore.CodecByName("yaml")
	require.NoError(t, err)
	assert.Equal(t, ".yaml", codec.Extension())

	codec, err = prefstore.CodecByName("")
	require.NoError(t, err)
	assert.Equal(t, ".json", codec.Extension())

	_, err = prefstore.CodecByName("toml")
	assert.ErrorIs(t, err, prefstore.ErrUnknownCodec)
}

func TestDefaultDir_StateHome(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/tmp/state")

	dir, err := prefstore.DefaultDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("/tmp/state", "ccdb"), dir)
}

func TestMemory_Contract(t *testing.T) {
	t.Parallel()

	mem := prefstore.NewMemory()

	value, err := mem.Get("k")
	require.NoError(t, err)
	assert.Zero(t, value)

	require.NoError(t, mem.Put("k", 7))
	require.NoError(t, mem.Flush())

	value, err = mem.Get("k")
	require.NoError(t, err)
	assert.Equal(t, int64(7), value)

	require.NoError(t, mem.Remove("k"))

	value, err = mem.Get("k")
	require.NoError(t, err)
	assert.Zero(t, value)
	assert.Equal(t, 1, mem.Flushes())
}
