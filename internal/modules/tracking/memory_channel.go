package tracking

import (
	"context"
	"encoding/json"
	"sync"

	"trackmybus/internal/types"
)

// MemoryChannel is an in-process Channel used when a single process hosts both
// the publishing and the observing side, and in tests.
type MemoryChannel struct {
	mu      sync.Mutex
	records map[types.ID][]byte
	subs    map[types.ID]map[*mailbox]struct{}
}

var _ Channel = (*MemoryChannel)(nil)

func NewMemoryChannel() *MemoryChannel {
	return &MemoryChannel{
		records: make(map[types.ID][]byte),
		subs:    make(map[types.ID]map[*mailbox]struct{}),
	}
}

func (c *MemoryChannel) Write(ctx context.Context, vehicleID types.ID, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	c.WriteRaw(vehicleID, data)
	return nil
}

// WriteRaw stores and fans out an already encoded snapshot as is.
func (c *MemoryChannel) WriteRaw(vehicleID types.ID, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records[vehicleID] = data
	for mb := range c.subs[vehicleID] {
		mb.push(data)
	}
}

func (c *MemoryChannel) Read(ctx context.Context, vehicleID types.ID) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.records[vehicleID]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (c *MemoryChannel) Subscribe(ctx context.Context, vehicleID types.ID, deliver func([]byte)) (func(), error) {
	mb := newMailbox(deliver)

	c.mu.Lock()
	if c.subs[vehicleID] == nil {
		c.subs[vehicleID] = make(map[*mailbox]struct{})
	}
	c.subs[vehicleID][mb] = struct{}{}
	if cur, ok := c.records[vehicleID]; ok {
		mb.push(cur)
	}
	c.mu.Unlock()

	go mb.run(ctx)

	var once sync.Once
	return func() {
		once.Do(func() {
			mb.close()
			c.mu.Lock()
			delete(c.subs[vehicleID], mb)
			if len(c.subs[vehicleID]) == 0 {
				delete(c.subs, vehicleID)
			}
			c.mu.Unlock()
		})
	}, nil
}

// Subscribers reports how many subscriptions are open for a vehicle.
func (c *MemoryChannel) Subscribers(vehicleID types.ID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs[vehicleID])
}
