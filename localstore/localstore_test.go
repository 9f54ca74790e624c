package localstore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dfscluster/dfs-host/wire"
)

func newTestStore(t *testing.T) *Store {
	dir := t.TempDir()
	return New(dir)
}

func TestCreateOpenWriteReadRoundTrip(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Create("hello.txt", wire.TypeFile))
	require.NoError(t, s.Open("hello.txt"))

	n, err := s.Write("hello.txt", 0, []byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, 11, n)

	got, err := s.Read("hello.txt", 0, 11)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello world"), got)

	got, err = s.Read("hello.txt", 6, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte("world"), got)
}

func TestReadPastEOFReturnsShortSlice(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create("f", wire.TypeFile))
	_, err := s.Write("f", 0, []byte("abc"))
	require.NoError(t, err)

	got, err := s.Read("f", 0, 100)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
}

func TestCreateAlreadyExistsFails(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create("f", wire.TypeFile))
	err := s.Create("f", wire.TypeFile)
	assert.True(t, os.IsExist(err))
}

func TestGetAttrFile(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create("f", wire.TypeFile))
	_, err := s.Write("f", 0, []byte("1234567890"))
	require.NoError(t, err)

	attr, err := s.GetAttr("f")
	require.NoError(t, err)
	assert.Equal(t, wire.TypeFile, attr.Type)
	assert.Equal(t, uint64(10), attr.Size)
}

func TestGetAttrDir(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create("d", wire.TypeDir))
	attr, err := s.GetAttr("d")
	require.NoError(t, err)
	assert.Equal(t, wire.TypeDir, attr.Type)
}

func TestGetAttrNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetAttr("missing")
	assert.True(t, os.IsNotExist(err))
}

func TestTrunc(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create("f", wire.TypeFile))
	_, err := s.Write("f", 0, []byte("0123456789"))
	require.NoError(t, err)

	require.NoError(t, s.Trunc("f", 4))
	attr, err := s.GetAttr("f")
	require.NoError(t, err)
	assert.Equal(t, uint64(4), attr.Size)
}

func TestLookupReturnsNormalizedKey(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create("a", wire.TypeFile))
	key, err := s.Lookup("/a")
	require.NoError(t, err)
	assert.Equal(t, "a", key)
}

func TestLookupMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Lookup("nope")
	assert.True(t, os.IsNotExist(err))
}

func TestRemoveFile(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create("f", wire.TypeFile))
	require.NoError(t, s.Remove("f"))
	_, err := s.GetAttr("f")
	assert.True(t, os.IsNotExist(err))
}

func TestRemoveMissing(t *testing.T) {
	s := newTestStore(t)
	err := s.Remove("nope")
	assert.True(t, os.IsNotExist(err))
}

func TestReadDirSkipsStartAndNonRegularTypes(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create("a", wire.TypeFile))
	require.NoError(t, s.Create("b", wire.TypeFile))
	require.NoError(t, s.Create("c", wire.TypeDir))
	require.NoError(t, os.Symlink("a", filepath.Join(s.Root(), "link")))

	entries, err := s.ReadDir("", 0)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	entries, err = s.ReadDir("", 1)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestRename(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create("a", wire.TypeFile))
	require.NoError(t, s.Rename("a", "b"))

	_, err := s.GetAttr("a")
	assert.True(t, os.IsNotExist(err))
	_, err = s.GetAttr("b")
	require.NoError(t, err)
}

func TestGetParent(t *testing.T) {
	s := newTestStore(t)
	assert.Equal(t, "a", s.GetParent("a/b"))
	assert.Equal(t, "", s.GetParent("a"))
	assert.Equal(t, "a/b", s.GetParent("a/b/c"))
}

func TestCleanRejectsEscapeOutsideRoot(t *testing.T) {
	s := newTestStore(t)
	full := s.clean("sub/../../escape")
	assert.True(t, strings.HasPrefix(full, s.Root()))
}

func TestFsync(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create("f", wire.TypeFile))
	assert.NoError(t, s.Fsync("f"))
}

func TestReleaseIsNoop(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create("f", wire.TypeFile))
	assert.NoError(t, s.Release("f"))
}
