package source

import (
	"io"

	"github.com/shovelmq/shovel/failstore"
	"github.com/shovelmq/shovel/transfer"
)

// Retry yields previously failed messages loaded from the retry directory.
// Each record keeps its failstore link so the engine can remove the file
// pair on success and route to the original destination.
type Retry struct {
	messages []failstore.RetryMessage
	pos      int
}

// NewRetry loads all retry candidates from the store's retry directory
func NewRetry(store *failstore.Store) (*Retry, error) {
	messages, err := store.LoadRetry()
	if err != nil {
		return nil, err
	}
	return &Retry{messages: messages}, nil
}

// Count returns how many retry candidates were loaded
func (r *Retry) Count() int {
	return len(r.messages)
}

func (r *Retry) Next() (*transfer.Record, error) {
	if r.pos >= len(r.messages) {
		return nil, io.EOF
	}
	msg := r.messages[r.pos]
	r.pos++

	rec := &transfer.Record{
		Payload:       msg.Content,
		CorrelationID: msg.CorrelationID,
		Index:         msg.Index,
		Retry:         &msg,
	}
	rec.Key = failstore.Token(msg.CorrelationID, msg.Index)
	return rec, nil
}

func (r *Retry) Close() error {
	return nil
}
