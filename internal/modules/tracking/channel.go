package tracking

import (
	"context"
	"sync"

	"trackmybus/internal/types"
)

// Channel is the pub/sub transport between one Publisher and many
// Subscribers, keyed by vehicle id. Each write replaces the full record and
// each delivery is a full snapshot.
type Channel interface {
	Write(ctx context.Context, vehicleID types.ID, rec Record) error
	// Read returns the current snapshot, or nil when the vehicle has none.
	Read(ctx context.Context, vehicleID types.ID) ([]byte, error)
	// Subscribe delivers the current snapshot, if any, followed by every later
	// write, in order. Delivery stops when the returned stop func is called or
	// ctx is cancelled. stop never blocks and may be called from within deliver.
	Subscribe(ctx context.Context, vehicleID types.ID, deliver func([]byte)) (func(), error)
}

// mailbox queues snapshots for one subscription and delivers them in order on
// its own goroutine.
type mailbox struct {
	deliver func([]byte)
	wake    chan struct{}
	done    chan struct{}

	mu     sync.Mutex
	queue  [][]byte
	closed bool
}

func newMailbox(deliver func([]byte)) *mailbox {
	return &mailbox{
		deliver: deliver,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

func (m *mailbox) push(b []byte) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.queue = append(m.queue, b)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *mailbox) next() ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || len(m.queue) == 0 {
		return nil, false
	}
	b := m.queue[0]
	m.queue[0] = nil
	m.queue = m.queue[1:]
	return b, true
}

func (m *mailbox) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			m.close()
			return
		case <-m.done:
			return
		case <-m.wake:
		}
		for {
			b, ok := m.next()
			if !ok {
				break
			}
			m.deliver(b)
		}
	}
}

func (m *mailbox) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		m.queue = nil
		close(m.done)
	}
}
