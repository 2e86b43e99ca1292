package source

import (
	"context"
	"io"
	"time"

	"github.com/shovelmq/shovel/broker"
	"github.com/shovelmq/shovel/transfer"
)

// Queue yields broker messages fetched up front, either destructively
// (consume) or as a non-destructive browse. A batch fetch rather than a
// live subscription keeps a run bounded.
type Queue struct {
	messages []broker.Message
	pos      int
}

// NewBrowse reads up to maxCount messages from a subject without consuming them
func NewBrowse(ctx context.Context, session *broker.Session, subject string, maxCount int, wait time.Duration) (*Queue, error) {
	messages, err := session.Browse(ctx, subject, maxCount, wait)
	if err != nil {
		return nil, err
	}
	return &Queue{messages: messages}, nil
}

// NewConsume destructively reads up to maxCount messages from a subject
func NewConsume(ctx context.Context, session *broker.Session, subject string, maxCount int, wait time.Duration) (*Queue, error) {
	messages, err := session.Consume(ctx, subject, maxCount, wait)
	if err != nil {
		return nil, err
	}
	return &Queue{messages: messages}, nil
}

// Count returns how many messages were fetched
func (q *Queue) Count() int {
	return len(q.messages)
}

func (q *Queue) Next() (*transfer.Record, error) {
	if q.pos >= len(q.messages) {
		return nil, io.EOF
	}
	msg := q.messages[q.pos]
	q.pos++

	rec := &transfer.Record{
		Payload:       msg.Data,
		CorrelationID: msg.CorrelationID,
		Attrs:         msg.Headers,
	}
	if msg.CorrelationID != nil {
		rec.Key = *msg.CorrelationID
	}
	return rec, nil
}

func (q *Queue) Close() error {
	return nil
}
