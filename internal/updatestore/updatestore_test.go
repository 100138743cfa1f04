package updatestore

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/drewcsillag/notecove/internal/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWriteOwnAndList(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteOwn(dir, 0, []byte("a")))
	require.NoError(t, WriteOwn(dir, 1, []byte("b")))
	require.NoError(t, WriteOwn(dir, 2, []byte("c")))

	result, err := List(testLogger(), dir)
	require.NoError(t, err)
	require.Len(t, result.Updates, 3)
	assert.Equal(t, []byte("a"), result.Updates[0].Payload)
	assert.Equal(t, int64(2), result.Updates[2].Sequence)
	assert.Empty(t, result.Incomplete)
	assert.Empty(t, result.Quarantined)
}

func TestListSkipsNonConformingNames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteOwn(dir, 0, []byte("a")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "-1.yjson"), frame.Encode([]byte("bad")), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "01.yjson"), frame.Encode([]byte("bad")), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "abc.yjson"), frame.Encode([]byte("bad")), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "5.yjson.123.tmp"), frame.EncodePartial([]byte("staging")), 0o644))

	result, err := List(testLogger(), dir)
	require.NoError(t, err)
	require.Len(t, result.Updates, 1)
	assert.Equal(t, int64(0), result.Updates[0].Sequence)
}

func TestListClassifiesIncompleteAndCorrupt(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteOwn(dir, 0, []byte("a")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1.yjson"), frame.EncodePartial([]byte("half")), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "2.yjson"), []byte{0xFF, 'x'}, 0o644))

	result, err := List(testLogger(), dir)
	require.NoError(t, err)
	require.Len(t, result.Updates, 1)
	assert.Equal(t, []int64{1}, result.Incomplete)
	assert.Equal(t, []int64{2}, result.Quarantined)

	_, err = os.Stat(filepath.Join(dir, "2.yjson.corrupt"))
	assert.NoError(t, err)
}

func TestListMissingDirIsEmpty(t *testing.T) {
	result, err := List(testLogger(), filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	assert.Empty(t, result.Updates)
}

func TestValidateContiguous(t *testing.T) {
	assert.NoError(t, ValidateContiguous(nil, nil))
	assert.NoError(t, ValidateContiguous([]int64{0, 1, 2}, nil))
	assert.NoError(t, ValidateContiguous([]int64{0, 5}, []Range{{First: 1, Last: 4}}))

	err := ValidateContiguous([]int64{1, 2}, nil)
	assert.ErrorIs(t, err, ErrSequenceGap)

	err = ValidateContiguous([]int64{0, 1, 5}, nil)
	assert.ErrorIs(t, err, ErrSequenceGap)
}

func TestNextOwnSequence(t *testing.T) {
	assert.Equal(t, int64(0), NextOwnSequence(-1))
	assert.Equal(t, int64(6), NextOwnSequence(5))
}
