package archive

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shovelmq/shovel/transfer"
)

func TestArchiveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orders.arc")
	corr := "ORD-7"

	w, err := NewWriter(path, "orders.inbound")
	require.NoError(t, err)
	require.NoError(t, w.Deliver(context.Background(), &transfer.Record{
		Key:           "ORD-7",
		Payload:       []byte("first"),
		CorrelationID: &corr,
		Attrs:         map[string]string{"source": "test"},
	}))
	require.NoError(t, w.Deliver(context.Background(), &transfer.Record{
		Payload: []byte("second"),
	}))
	require.NoError(t, w.Close())

	r, err := NewReader(path)
	require.NoError(t, err)
	defer r.Close()

	rec, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, []byte("first"), rec.Payload)
	require.NotNil(t, rec.CorrelationID)
	require.Equal(t, "ORD-7", *rec.CorrelationID)
	require.Equal(t, "ORD-7", rec.Key)
	require.Equal(t, "test", rec.Attrs["source"])

	rec, err = r.Next()
	require.NoError(t, err)
	require.Equal(t, []byte("second"), rec.Payload)
	require.Nil(t, rec.CorrelationID)
	require.Equal(t, "archived_2", rec.Key)

	_, err = r.Next()
	require.Equal(t, io.EOF, err)
}

func TestArchiveAppendsAcrossWriters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orders.arc")

	for _, payload := range []string{"a", "b"} {
		w, err := NewWriter(path, "orders")
		require.NoError(t, err)
		require.NoError(t, w.Deliver(context.Background(), &transfer.Record{Payload: []byte(payload)}))
		require.NoError(t, w.Close())
	}

	r, err := NewReader(path)
	require.NoError(t, err)
	defer r.Close()

	var payloads []string
	for {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		payloads = append(payloads, string(rec.Payload))
	}
	require.Equal(t, []string{"a", "b"}, payloads)
}

func TestArchiveReaderMissingFile(t *testing.T) {
	_, err := NewReader(filepath.Join(t.TempDir(), "absent.arc"))
	require.Error(t, err)
}
