package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/shovelmq/shovel/transfer"
)

// Files writes each record's payload to its own file in a directory,
// named by the record key. Used by database exports and by saving
// browsed or consumed messages to disk. With compression enabled each
// file is zstd-encoded and suffixed ".zst".
type Files struct {
	dir      string
	compress bool
	encoder  *zstd.Encoder
}

// NewFiles creates the target directory if needed and returns the
// destination.
func NewFiles(dir string, compress bool) (*Files, error) {
	if dir == "" {
		return nil, fmt.Errorf("file destination requires a directory")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	f := &Files{dir: dir, compress: compress}
	if compress {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		f.encoder = enc
	}
	return f, nil
}

func (f *Files) Name() string {
	return "dir:" + f.dir
}

func (f *Files) Deliver(_ context.Context, rec *transfer.Record) error {
	name := sanitizeFileName(rec.Key)
	if name == "" {
		name = fmt.Sprintf("record_%d", rec.Index)
	}

	data := rec.Payload
	if f.compress {
		data = f.encoder.EncodeAll(rec.Payload, nil)
		name += ".zst"
	}

	path := filepath.Join(f.dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func (f *Files) Close() error {
	if f.encoder != nil {
		f.encoder.Close()
	}
	return nil
}

// sanitizeFileName keeps record keys usable as flat filenames
func sanitizeFileName(key string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		default:
			return r
		}
	}, key)
}
