package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendWritesOneJSONLinePerRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	w := NewWriter(path)

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, w.Append(Record{
			Command:    "dir-publish",
			Parameters: map[string]string{"queue": "ORDERS.IN"},
			Results:    map[string]any{"published": i},
			StartTime:  start,
			EndTime:    start.Add(time.Second),
			DurationMS: 1000,
			ExitCode:   0,
			Success:    true,
		}))
	}

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var lines int
	for scanner.Scan() {
		var rec Record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec), "every line must be a complete record")
		assert.Equal(t, "dir-publish", rec.Command)
		lines++
	}
	assert.Equal(t, 3, lines)
}

func TestAppendNoPathIsNoOp(t *testing.T) {
	w := NewWriter("")
	require.NoError(t, w.Append(Record{Command: "publish"}))
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, SecretMask, MaskSecret("hunter2"))
	assert.Equal(t, NoSecretSentinel, MaskSecret(""))
	assert.NotEqual(t, MaskSecret(""), MaskSecret("x"), "absent and hidden secrets must be distinguishable")
}

func TestAppendRecordsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	w := NewWriter(path)

	require.NoError(t, w.Append(Record{
		Command:  "db-publish",
		ExitCode: 1,
		Success:  false,
		Error:    "connection refused",
	}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var rec Record
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, 1, rec.ExitCode)
	assert.False(t, rec.Success)
	assert.Equal(t, "connection refused", rec.Error)
}
