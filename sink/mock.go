package sink

import (
	"context"
	"sync"

	"github.com/shovelmq/shovel/transfer"
)

// Mock is a destination for testing that records everything delivered
type Mock struct {
	DeliverErr error

	mu        sync.Mutex
	delivered []*transfer.Record
}

func (m *Mock) Name() string { return "mock" }

func (m *Mock) Deliver(_ context.Context, rec *transfer.Record) error {
	if m.DeliverErr != nil {
		return m.DeliverErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delivered = append(m.delivered, rec)
	return nil
}

func (m *Mock) Close() error { return nil }

// Delivered returns a copy of all recorded deliveries
func (m *Mock) Delivered() []*transfer.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*transfer.Record, len(m.delivered))
	copy(out, m.delivered)
	return out
}

// Reset clears recorded deliveries
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delivered = nil
}
