package frame

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	payload := []byte("hello")
	got, err := Decode(Encode(payload))
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestDecodeIncomplete(t *testing.T) {
	_, err := Decode(EncodePartial([]byte("partial")))
	assert.ErrorIs(t, err, ErrIncomplete)

	_, err = Decode(nil)
	assert.ErrorIs(t, err, ErrIncomplete)
}

func TestDecodeCorrupt(t *testing.T) {
	_, err := Decode([]byte{0xFF, 'x'})
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestWriteAtomicCompleteThenReadFrame(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteAtomicComplete(dir, "0.yjson", []byte("payload")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "0.yjson", entries[0].Name())

	got, err := ReadFrame(dir, "0.yjson")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)
}

func TestReadFrameMissingIsIncomplete(t *testing.T) {
	dir := t.TempDir()
	_, err := ReadFrame(dir, "missing.yjson")
	assert.ErrorIs(t, err, ErrIncomplete)
}

func TestSloppyWriterPartialThenComplete(t *testing.T) {
	dir := t.TempDir()
	var sw SloppyWriter

	require.NoError(t, sw.WritePartial(dir, "5.yjson", []byte("half")))
	_, err := ReadFrame(dir, "5.yjson")
	assert.ErrorIs(t, err, ErrIncomplete)

	require.NoError(t, sw.CompleteWrite(dir, "5.yjson", []byte("full-payload")))
	got, err := ReadFrame(dir, "5.yjson")
	require.NoError(t, err)
	assert.Equal(t, []byte("full-payload"), got)
}

func TestQuarantineRenamesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteAtomicComplete(dir, "3.yjson", []byte("bad")))
	require.NoError(t, Quarantine(dir, "3.yjson"))

	_, err := os.Stat(filepath.Join(dir, "3.yjson.corrupt"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "3.yjson"))
	assert.True(t, os.IsNotExist(err))
}

func TestIsTempName(t *testing.T) {
	assert.True(t, IsTempName("12.yjson.abc123.tmp"))
	assert.True(t, IsTempName("state.migration"))
	assert.False(t, IsTempName("12.yjson"))
}
