package failstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	contentExt = ".msg"
	metaExt    = ".meta"
)

// Meta is the JSON sidecar written next to every persisted payload
type Meta struct {
	Timestamp     string  `json:"timestamp"`
	Queue         *string `json:"queue"`
	CorrelationID *string `json:"correlationId"`
	Index         int     `json:"index"`
	Error         string  `json:"error"`
}

// RetryMessage is one reloadable failed-delivery attempt. ContentPath and
// MetaPath are exclusively owned by the record; MarkRetrySuccess consumes
// them.
type RetryMessage struct {
	Content       []byte
	CorrelationID *string
	Destination   *string
	Index         int
	ContentPath   string
	MetaPath      string
}

// Store persists failed delivery attempts as content+metadata file pairs
// and reloads them as retry candidates. Either directory may be empty, in
// which case the corresponding operations are no-ops.
type Store struct {
	failedDir string
	retryDir  string

	mu     sync.Mutex
	saved  int
	tokens []string
}

// New creates a store. failedDir receives newly failed messages; retryDir
// is where retry candidates are loaded from. Both are optional.
func New(failedDir, retryDir string) *Store {
	return &Store{failedDir: failedDir, retryDir: retryDir}
}

// InitFailedDir ensures the failed-message directory exists. Succeeds
// trivially when no directory is configured so call sites stay branch-free.
func (s *Store) InitFailedDir() error {
	if s.failedDir == "" {
		return nil
	}
	if err := os.MkdirAll(s.failedDir, 0755); err != nil {
		return fmt.Errorf("failed to create failed-message directory %s: %w", s.failedDir, err)
	}
	return nil
}

// ValidateRetryDir checks that the retry directory is readable. Succeeds
// trivially when no directory is configured.
func (s *Store) ValidateRetryDir() error {
	if s.retryDir == "" {
		return nil
	}
	info, err := os.Stat(s.retryDir)
	if err != nil {
		return fmt.Errorf("retry directory %s not accessible: %w", s.retryDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("retry path %s is not a directory", s.retryDir)
	}
	return nil
}

// SaveFailed persists one failed delivery attempt as a <base>.msg/<base>.meta
// pair. The payload is written byte-for-byte. A nil correlation id falls back
// to the decimal sequence index as the identifying token. No-op when the
// store has no failed-message directory.
func (s *Store) SaveFailed(content []byte, correlationID *string, destination string, errText string, index int) error {
	if s.failedDir == "" {
		return nil
	}
	if err := s.InitFailedDir(); err != nil {
		return err
	}

	token := Token(correlationID, index)
	base := fmt.Sprintf("%s_%s_%d", timestampPrefix(time.Now()), token, index)

	contentPath := filepath.Join(s.failedDir, base+contentExt)
	if err := os.WriteFile(contentPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write message content %s: %w", contentPath, err)
	}

	meta := Meta{
		Timestamp:     time.Now().Format(time.RFC3339),
		CorrelationID: correlationID,
		Index:         index,
		Error:         errText,
	}
	if destination != "" {
		meta.Queue = &destination
	}

	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to encode message metadata: %w", err)
	}
	metaPath := filepath.Join(s.failedDir, base+metaExt)
	if err := os.WriteFile(metaPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write message metadata %s: %w", metaPath, err)
	}

	s.mu.Lock()
	s.saved++
	s.tokens = append(s.tokens, token)
	s.mu.Unlock()

	log.Debug().
		Str("path", contentPath).
		Str("token", token).
		Int("index", index).
		Msg("Persisted failed message")
	return nil
}

// SavedCount returns how many failed messages have been persisted by this
// store instance.
func (s *Store) SavedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved
}

// FailedTokens returns the identifying tokens of all persisted messages, in
// save order, for completion reporting.
func (s *Store) FailedTokens() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.tokens))
	copy(out, s.tokens)
	return out
}

// LoadRetry enumerates persisted failed messages in the retry directory,
// sorted by filename for reproducible ordering. A content file with no
// readable metadata sidecar still yields a candidate with nil correlation
// id and nil destination.
func (s *Store) LoadRetry() ([]RetryMessage, error) {
	if s.retryDir == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(s.retryDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read retry directory %s: %w", s.retryDir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), contentExt) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	messages := make([]RetryMessage, 0, len(names))
	for _, name := range names {
		contentPath := filepath.Join(s.retryDir, name)
		content, err := os.ReadFile(contentPath)
		if err != nil {
			log.Warn().Str("path", contentPath).Err(err).Msg("Skipping unreadable retry message")
			continue
		}

		msg := RetryMessage{
			Content:     content,
			ContentPath: contentPath,
		}

		metaPath := strings.TrimSuffix(contentPath, contentExt) + metaExt
		if meta, ok := readMeta(metaPath); ok {
			msg.MetaPath = metaPath
			msg.CorrelationID = meta.CorrelationID
			msg.Destination = meta.Queue
			msg.Index = meta.Index
		} else if _, statErr := os.Stat(metaPath); statErr == nil {
			// Malformed but present: still owned by this record
			msg.MetaPath = metaPath
		}

		messages = append(messages, msg)
	}

	return messages, nil
}

// MarkRetrySuccess deletes the content and metadata files of a delivered
// retry candidate. Idempotent: files already removed (including by a
// concurrent retry process) are treated as handled.
func (s *Store) MarkRetrySuccess(msg RetryMessage) error {
	for _, path := range []string{msg.ContentPath, msg.MetaPath} {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
	}
	return nil
}

// readMeta parses a metadata sidecar, degrading gracefully on absence or
// malformed content.
func readMeta(path string) (Meta, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Meta{}, false
	}
	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		log.Warn().Str("path", path).Err(err).Msg("Malformed retry metadata, treating as orphan")
		return Meta{}, false
	}
	return meta, true
}

// Token picks the filename-safe identity for a record: the sanitized
// correlation id when present, else the decimal sequence index. The same
// token appears in persisted basenames and in completion reports.
func Token(correlationID *string, index int) string {
	if correlationID == nil || *correlationID == "" {
		return strconv.Itoa(index)
	}
	return sanitizeToken(*correlationID)
}

// sanitizeToken replaces filesystem-hostile characters with underscores
func sanitizeToken(v string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '\'', '<', '>', '|':
			return '_'
		default:
			return r
		}
	}, v)
}

// timestampPrefix formats the basename timestamp with millisecond precision
func timestampPrefix(t time.Time) string {
	return fmt.Sprintf("%s_%03d", t.Format("20060102_150405"), t.Nanosecond()/int(time.Millisecond))
}
