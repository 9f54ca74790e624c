package wire

import (
	"testing"

	"github.com/dfscluster/dfs-host/axerror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOkErrRoundTrip(t *testing.T) {
	w := NewWriter()
	WriteOk(w)
	r := NewReader(w.Bytes())
	ok, _, err := ReadOutcome(r)
	require.NoError(t, err)
	assert.True(t, ok)

	w = NewWriter()
	WriteErr(w, axerror.NotFound)
	r = NewReader(w.Bytes())
	ok, code, err := ReadOutcome(r)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, axerror.NotFound, code)
}

func TestNodeAttrRoundTrip(t *testing.T) {
	attr := NodeAttr{Mode: 0755, Type: TypeFile, Size: 4096, Blocks: 8}
	w := NewWriter()
	EncodeNodeAttr(w, attr)
	got, err := DecodeNodeAttr(NewReader(w.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, attr, got)
}

func TestDirEntryRoundTrip(t *testing.T) {
	e := DirEntry{Type: TypeDir, Name: "subdir"}
	w := NewWriter()
	EncodeDirEntry(w, e)
	got, err := DecodeDirEntry(NewReader(w.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, e, got)
}
