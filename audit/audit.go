// Package audit appends one structured completion record per command
// invocation to a newline-delimited JSON file. When no file is configured,
// emission is a no-op with no observable side effect.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// SecretMask replaces supplied secret parameter values
	SecretMask = "****"
	// NoSecretSentinel marks a secret parameter that was never supplied,
	// distinguishable from a masked one
	NoSecretSentinel = "<absent>"
)

// Record is one self-contained run report
type Record struct {
	Command    string            `json:"command"`
	Parameters map[string]string `json:"parameters"`
	Results    map[string]any    `json:"results"`
	StartTime  time.Time         `json:"startTime"`
	EndTime    time.Time         `json:"endTime"`
	DurationMS int64             `json:"durationMs"`
	ExitCode   int               `json:"exitCode"`
	Success    bool              `json:"success"`
	Error      string            `json:"error,omitempty"`
}

// MaskSecret renders a secret parameter for auditing: a fixed mask when a
// value was supplied, a distinct sentinel when it was not.
func MaskSecret(value string) string {
	if value == "" {
		return NoSecretSentinel
	}
	return SecretMask
}

// Writer appends records to a single audit file. A Writer with no path
// discards everything.
type Writer struct {
	path string
}

// NewWriter creates an audit writer for the given file path. An empty path
// yields a writer whose Append is a no-op.
func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

// Append writes one record as a single JSON line. The file is opened in
// append mode per call so separate process invocations can share it safely.
func (w *Writer) Append(rec Record) error {
	if w.path == "" {
		return nil
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode audit record: %w", err)
	}

	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open audit file %s: %w", w.path, err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}

	log.Debug().Str("path", w.path).Str("command", rec.Command).Msg("Appended audit record")
	return nil
}
