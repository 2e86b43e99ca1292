package source

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, content, 0644))
	return path
}

func drain(t *testing.T, f *Folder) []string {
	t.Helper()
	var keys []string
	for {
		rec, err := f.Next()
		if err == io.EOF {
			return keys
		}
		require.NoError(t, err)
		keys = append(keys, rec.Key)
	}
}

func TestFolderSortsByName(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.msg", []byte("two"))
	writeFile(t, dir, "a.msg", []byte("one"))
	writeFile(t, dir, "c.msg", []byte("three"))

	f, err := NewFolder(FolderConfig{Dir: dir})
	require.NoError(t, err)
	defer f.Close()

	require.Equal(t, 3, f.Count())
	require.Equal(t, []string{"a.msg", "b.msg", "c.msg"}, drain(t, f))
}

func TestFolderPatternFiltersBaseNames(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "order_1.xml", []byte("<a/>"))
	writeFile(t, dir, "order_2.xml", []byte("<b/>"))
	writeFile(t, dir, "notes.txt", []byte("skip"))

	f, err := NewFolder(FolderConfig{Dir: dir, Pattern: "*.xml"})
	require.NoError(t, err)
	defer f.Close()

	require.Equal(t, []string{"order_1.xml", "order_2.xml"}, drain(t, f))
}

func TestFolderRecursiveUsesRelativeKeys(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "top.msg", []byte("t"))
	writeFile(t, dir, filepath.Join("sub", "nested.msg"), []byte("n"))

	f, err := NewFolder(FolderConfig{Dir: dir, Recursive: true})
	require.NoError(t, err)
	defer f.Close()

	require.Equal(t, []string{"sub/nested.msg", "top.msg"}, drain(t, f))
}

func TestFolderNonRecursiveSkipsSubdirs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "top.msg", []byte("t"))
	writeFile(t, dir, filepath.Join("sub", "nested.msg"), []byte("n"))

	f, err := NewFolder(FolderConfig{Dir: dir})
	require.NoError(t, err)
	defer f.Close()

	require.Equal(t, []string{"top.msg"}, drain(t, f))
}

func TestFolderSortByMTime(t *testing.T) {
	dir := t.TempDir()
	older := writeFile(t, dir, "newer_name.msg", []byte("old"))
	writeFile(t, dir, "aaa.msg", []byte("new"))

	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(older, past, past))

	f, err := NewFolder(FolderConfig{Dir: dir, SortBy: SortByMTime})
	require.NoError(t, err)
	defer f.Close()

	require.Equal(t, []string{"newer_name.msg", "aaa.msg"}, drain(t, f))
}

func TestFolderSortBySize(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "big.msg", []byte("aaaaaaaaaa"))
	writeFile(t, dir, "small.msg", []byte("a"))

	f, err := NewFolder(FolderConfig{Dir: dir, SortBy: SortBySize})
	require.NoError(t, err)
	defer f.Close()

	require.Equal(t, []string{"small.msg", "big.msg"}, drain(t, f))
}

func TestFolderDecompressesZstd(t *testing.T) {
	dir := t.TempDir()
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	writeFile(t, dir, "payload.msg.zst", enc.EncodeAll([]byte("hello"), nil))
	require.NoError(t, enc.Close())

	f, err := NewFolder(FolderConfig{Dir: dir, Pattern: "*.msg", Decompress: true})
	require.NoError(t, err)
	defer f.Close()

	rec, err := f.Next()
	require.NoError(t, err)
	require.Equal(t, "payload.msg", rec.Key)
	require.Equal(t, []byte("hello"), rec.Payload)

	_, err = f.Next()
	require.Equal(t, io.EOF, err)
}

func TestFolderMissingDirIsFatal(t *testing.T) {
	_, err := NewFolder(FolderConfig{Dir: filepath.Join(t.TempDir(), "absent")})
	require.Error(t, err)
}

func TestFolderBadPattern(t *testing.T) {
	_, err := NewFolder(FolderConfig{Dir: t.TempDir(), Pattern: "[unclosed"})
	require.Error(t, err)
}

func TestFolderRecordAttrsCarryFilename(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "x.msg", []byte("p"))

	f, err := NewFolder(FolderConfig{Dir: dir})
	require.NoError(t, err)
	defer f.Close()

	rec, err := f.Next()
	require.NoError(t, err)
	require.Equal(t, "x.msg", rec.Attrs["filename"])
}
