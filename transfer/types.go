package transfer

import (
	"context"

	"github.com/shovelmq/shovel/failstore"
)

// Record is one candidate for transfer: a file, a database row, or a queue
// message. Index is the 1-based position assigned at enumeration time and
// is stable regardless of delivery concurrency.
type Record struct {
	// Key is the record's natural identity for exclusion checks: filename,
	// correlation id, or row key depending on the source.
	Key           string
	Payload       []byte
	CorrelationID *string
	Index         int
	Attrs         map[string]string

	// Retry links a record back to its persisted file pair when the run is
	// driven from the failure store.
	Retry *failstore.RetryMessage
}

// Source enumerates candidate records in a deterministic order. Next
// returns io.EOF after the last record.
type Source interface {
	Next() (*Record, error)
	Close() error
}

// Destination delivers records to a queue, table, or other endpoint. A
// Deliver error is a per-record failure; it never aborts the batch.
type Destination interface {
	Name() string
	Deliver(ctx context.Context, rec *Record) error
	Close() error
}
