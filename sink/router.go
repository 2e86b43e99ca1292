package sink

import (
	"context"
	"fmt"
	"sync"

	"github.com/shovelmq/shovel/broker"
	"github.com/shovelmq/shovel/transfer"
)

// Router publishes each record to the destination recorded when it
// originally failed, falling back to a default subject when the record
// carries none. Streams are ensured lazily, once per subject.
type Router struct {
	session  *broker.Session
	fallback string

	mu      sync.Mutex
	ensured map[string]bool
}

// NewRouter builds a retry destination. fallback may be empty, in which
// case records without a recorded destination fail delivery.
func NewRouter(session *broker.Session, fallback string) *Router {
	return &Router{
		session:  session,
		fallback: fallback,
		ensured:  map[string]bool{},
	}
}

func (r *Router) Name() string {
	return "retry-router"
}

func (r *Router) Deliver(ctx context.Context, rec *transfer.Record) error {
	subject := r.fallback
	if rec.Retry != nil && rec.Retry.Destination != nil && *rec.Retry.Destination != "" {
		subject = *rec.Retry.Destination
	}
	if subject == "" {
		return fmt.Errorf("no recorded destination and no fallback queue")
	}

	if err := r.ensureStream(ctx, subject); err != nil {
		return err
	}
	return r.session.Publish(ctx, subject, rec.Payload, rec.CorrelationID, rec.Attrs)
}

func (r *Router) ensureStream(ctx context.Context, subject string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ensured[subject] {
		return nil
	}
	if err := r.session.EnsureStream(ctx, subject); err != nil {
		return err
	}
	r.ensured[subject] = true
	return nil
}

func (r *Router) Close() error {
	return nil
}
