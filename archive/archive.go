// Package archive stores queue messages in a length-delimited msgpack
// stream. A consume or browse run appends envelopes to one archive file;
// publish can replay an archive back onto a queue.
package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/shovelmq/shovel/transfer"
)

// Envelope is one archived message
type Envelope struct {
	Subject       string            `msgpack:"subject"`
	CorrelationID *string           `msgpack:"correlation_id"`
	Headers       map[string]string `msgpack:"headers"`
	Data          []byte            `msgpack:"data"`
	ArchivedAt    int64             `msgpack:"archived_at"`
}

// Writer appends envelopes to an archive file. It is a transfer
// destination, so consumed messages flow through the same engine as any
// other sink.
type Writer struct {
	file    *os.File
	enc     *msgpack.Encoder
	subject string
}

// NewWriter opens the archive for appending, creating it if needed
func NewWriter(path, subject string) (*Writer, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive %s: %w", path, err)
	}
	return &Writer{
		file:    file,
		enc:     msgpack.NewEncoder(file),
		subject: subject,
	}, nil
}

func (w *Writer) Name() string {
	return "archive:" + w.file.Name()
}

func (w *Writer) Deliver(_ context.Context, rec *transfer.Record) error {
	env := Envelope{
		Subject:       w.subject,
		CorrelationID: rec.CorrelationID,
		Headers:       rec.Attrs,
		Data:          rec.Payload,
		ArchivedAt:    time.Now().UnixMilli(),
	}
	if err := w.enc.Encode(&env); err != nil {
		return fmt.Errorf("failed to append to archive: %w", err)
	}
	return nil
}

func (w *Writer) Close() error {
	return w.file.Close()
}

// Reader replays an archive file as a record source
type Reader struct {
	file *os.File
	dec  *msgpack.Decoder
	seq  int
}

func NewReader(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive %s: %w", path, err)
	}
	return &Reader{file: file, dec: msgpack.NewDecoder(file)}, nil
}

func (r *Reader) Next() (*transfer.Record, error) {
	var env Envelope
	if err := r.dec.Decode(&env); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("corrupt archive entry: %w", err)
	}

	r.seq++
	rec := &transfer.Record{
		Payload:       env.Data,
		CorrelationID: env.CorrelationID,
		Attrs:         env.Headers,
	}
	if env.CorrelationID != nil {
		rec.Key = *env.CorrelationID
	} else {
		rec.Key = fmt.Sprintf("archived_%d", r.seq)
	}
	return rec, nil
}

func (r *Reader) Close() error {
	return r.file.Close()
}
