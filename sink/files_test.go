package sink

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shovelmq/shovel/transfer"
)

func TestFilesWritesPayloadByKey(t *testing.T) {
	dir := t.TempDir()
	dest, err := NewFiles(dir, false)
	require.NoError(t, err)
	defer dest.Close()

	require.NoError(t, dest.Deliver(context.Background(), &transfer.Record{
		Key:     "row-17",
		Payload: []byte("exported row content"),
		Index:   1,
	}))

	data, err := os.ReadFile(filepath.Join(dir, "row-17"))
	require.NoError(t, err)
	assert.Equal(t, []byte("exported row content"), data)
}

func TestFilesSanitizesKeys(t *testing.T) {
	dir := t.TempDir()
	dest, err := NewFiles(dir, false)
	require.NoError(t, err)
	defer dest.Close()

	require.NoError(t, dest.Deliver(context.Background(), &transfer.Record{
		Key:     "a/b:c",
		Payload: []byte("x"),
		Index:   1,
	}))

	_, err = os.Stat(filepath.Join(dir, "a_b_c"))
	assert.NoError(t, err)
}

func TestFilesCompressedRoundTrip(t *testing.T) {
	dir := t.TempDir()
	dest, err := NewFiles(dir, true)
	require.NoError(t, err)
	defer dest.Close()

	payload := []byte("compressible payload, compressible payload, compressible payload")
	require.NoError(t, dest.Deliver(context.Background(), &transfer.Record{
		Key:     "row-1",
		Payload: payload,
		Index:   1,
	}))

	data, err := os.ReadFile(filepath.Join(dir, "row-1.zst"))
	require.NoError(t, err)

	dec, err := zstd.NewReader(nil)
	require.NoError(t, err)
	defer dec.Close()

	decoded, err := dec.DecodeAll(data, nil)
	require.NoError(t, err)
	assert.Equal(t, payload, decoded)
}

func TestFilesEmptyKeyFallsBackToIndex(t *testing.T) {
	dir := t.TempDir()
	dest, err := NewFiles(dir, false)
	require.NoError(t, err)
	defer dest.Close()

	require.NoError(t, dest.Deliver(context.Background(), &transfer.Record{
		Payload: []byte("x"),
		Index:   4,
	}))

	_, err = os.Stat(filepath.Join(dir, "record_4"))
	assert.NoError(t, err)
}
