// Package sink provides the delivery destinations for the transfer
// engine: broker subjects, Kafka topics, database tables, and directory
// exports.
package sink

import (
	"context"
	"fmt"

	"github.com/shovelmq/shovel/broker"
	"github.com/shovelmq/shovel/transfer"
)

// Queue delivers records to one broker subject. The underlying session is
// owned by the caller and shared across the run.
type Queue struct {
	session *broker.Session
	subject string
}

// NewQueue ensures the subject's stream exists and returns a destination
// publishing to it.
func NewQueue(ctx context.Context, session *broker.Session, subject string) (*Queue, error) {
	if subject == "" {
		return nil, fmt.Errorf("queue destination requires a subject")
	}
	if err := session.EnsureStream(ctx, subject); err != nil {
		return nil, err
	}
	return &Queue{session: session, subject: subject}, nil
}

func (q *Queue) Name() string {
	return q.subject
}

func (q *Queue) Deliver(ctx context.Context, rec *transfer.Record) error {
	return q.session.Publish(ctx, q.subject, rec.Payload, rec.CorrelationID, rec.Attrs)
}

// Close is a no-op; the session outlives the destination
func (q *Queue) Close() error {
	return nil
}
