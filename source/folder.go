// Package source provides the candidate enumerators for the transfer
// engine: directory contents, database query results, browsed or consumed
// queue messages, and persisted retry candidates.
package source

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"

	"github.com/shovelmq/shovel/transfer"
)

// Sort orders for folder enumeration
const (
	SortByName  = "name"
	SortByMTime = "mtime"
	SortBySize  = "size"
)

// FolderConfig selects and orders the files of a directory source
type FolderConfig struct {
	Dir       string
	Pattern   string // glob on the base filename, default "*"
	Recursive bool
	SortBy    string // name (default), mtime, or size
	// Decompress transparently decodes .zst files; the record key drops
	// the suffix so exclusion rules see the original name.
	Decompress bool
}

type folderEntry struct {
	path    string // absolute path on disk
	name    string // path relative to Dir, used as the record key
	size    int64
	modTime int64
}

// Folder enumerates matching files in a deterministic order. The file
// list is fixed at construction; contents are read lazily per record.
type Folder struct {
	entries    []folderEntry
	pos        int
	decompress bool
	decoder    *zstd.Decoder
}

// NewFolder scans the directory up front. An unreadable directory is a
// run-fatal resource error; individual unreadable files are skipped later
// with a warning.
func NewFolder(conf FolderConfig) (*Folder, error) {
	if conf.Dir == "" {
		return nil, fmt.Errorf("folder source requires a directory")
	}
	if conf.Pattern == "" {
		conf.Pattern = "*"
	}

	g, err := glob.Compile(conf.Pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid file pattern %q: %w", conf.Pattern, err)
	}

	entries, err := scanFolder(conf, g)
	if err != nil {
		return nil, err
	}
	sortEntries(entries, conf.SortBy)

	f := &Folder{entries: entries, decompress: conf.Decompress}
	if conf.Decompress {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
		f.decoder = dec
	}

	log.Debug().
		Str("dir", conf.Dir).
		Str("pattern", conf.Pattern).
		Int("files", len(entries)).
		Msg("Scanned source folder")
	return f, nil
}

func scanFolder(conf FolderConfig, g glob.Glob) ([]folderEntry, error) {
	var entries []folderEntry

	appendEntry := func(path, rel string, info fs.FileInfo) {
		entries = append(entries, folderEntry{
			path:    path,
			name:    filepath.ToSlash(rel),
			size:    info.Size(),
			modTime: info.ModTime().UnixNano(),
		})
	}

	if conf.Recursive {
		err := filepath.WalkDir(conf.Dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !matchName(g, d.Name(), conf.Decompress) {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(conf.Dir, path)
			if err != nil {
				return err
			}
			appendEntry(path, rel, info)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan folder %s: %w", conf.Dir, err)
		}
		return entries, nil
	}

	dirEntries, err := os.ReadDir(conf.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open source folder %s: %w", conf.Dir, err)
	}
	for _, d := range dirEntries {
		if d.IsDir() || !matchName(g, d.Name(), conf.Decompress) {
			continue
		}
		info, err := d.Info()
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", d.Name(), err)
		}
		appendEntry(filepath.Join(conf.Dir, d.Name()), d.Name(), info)
	}
	return entries, nil
}

// matchName applies the file pattern; with decompression on, the .zst
// suffix is invisible to the pattern.
func matchName(g glob.Glob, name string, decompress bool) bool {
	if decompress {
		name = strings.TrimSuffix(name, ".zst")
	}
	return g.Match(name)
}

func sortEntries(entries []folderEntry, by string) {
	switch by {
	case SortByMTime:
		sort.Slice(entries, func(i, j int) bool {
			if entries[i].modTime != entries[j].modTime {
				return entries[i].modTime < entries[j].modTime
			}
			return entries[i].name < entries[j].name
		})
	case SortBySize:
		sort.Slice(entries, func(i, j int) bool {
			if entries[i].size != entries[j].size {
				return entries[i].size < entries[j].size
			}
			return entries[i].name < entries[j].name
		})
	default:
		sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })
	}
}

// Next reads the next file. Files that disappear or turn unreadable
// between scan and read are skipped, not fatal.
func (f *Folder) Next() (*transfer.Record, error) {
	for f.pos < len(f.entries) {
		entry := f.entries[f.pos]
		f.pos++

		data, err := os.ReadFile(entry.path)
		if err != nil {
			log.Warn().Str("path", entry.path).Err(err).Msg("Skipping unreadable file")
			continue
		}

		key := entry.name
		if f.decompress && strings.HasSuffix(key, ".zst") {
			decoded, err := f.decoder.DecodeAll(data, nil)
			if err != nil {
				log.Warn().Str("path", entry.path).Err(err).Msg("Skipping file with corrupt zstd content")
				continue
			}
			data = decoded
			key = strings.TrimSuffix(key, ".zst")
		}

		return &transfer.Record{
			Key:     key,
			Payload: data,
			Attrs:   map[string]string{"filename": key},
		}, nil
	}
	return nil, io.EOF
}

// Count returns how many files matched the scan
func (f *Folder) Count() int {
	return len(f.entries)
}

func (f *Folder) Close() error {
	if f.decoder != nil {
		f.decoder.Close()
	}
	return nil
}
