package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterReaderUvarintRoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 127, 128, 300, 1 << 40} {
		w := NewWriter()
		w.WriteUvarint(v)
		got, err := NewReader(w.Bytes()).ReadUvarint()
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestWriterReaderStringRoundTrip(t *testing.T) {
	w := NewWriter()
	w.WriteString("hello/world")
	got, err := NewReader(w.Bytes()).ReadString()
	require.NoError(t, err)
	assert.Equal(t, "hello/world", got)
}

func TestWriterReaderBytesRoundTrip(t *testing.T) {
	w := NewWriter()
	w.WriteBytes([]byte{1, 2, 3})
	got, err := NewReader(w.Bytes()).ReadBytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got)
}

func TestReaderErrorsOnTruncatedInput(t *testing.T) {
	_, err := NewReader(nil).ReadByte()
	assert.Error(t, err)

	_, err = NewReader([]byte{0x80}).ReadUvarint()
	assert.Error(t, err)

	w := NewWriter()
	w.WriteString("hi")
	_, err = NewReader(w.Bytes()[:1]).ReadString()
	assert.Error(t, err)
}

func TestJoinRelPath(t *testing.T) {
	assert.Equal(t, "a", JoinRelPath("a", ""))
	assert.Equal(t, "b", JoinRelPath("", "b"))
	assert.Equal(t, "a/b", JoinRelPath("a", "b"))
	assert.Equal(t, "", JoinRelPath("", ""))
}
