package tracking

import (
	"context"
	"sync"
	"testing"
	"time"

	"trackmybus/internal/modules/location"
	"trackmybus/internal/types"
)

// countingChannel wraps a MemoryChannel and remembers every written record.
type countingChannel struct {
	*MemoryChannel
	mu     sync.Mutex
	writes []Record
}

func newCountingChannel() *countingChannel {
	return &countingChannel{MemoryChannel: NewMemoryChannel()}
}

func (c *countingChannel) Write(ctx context.Context, id types.ID, rec Record) error {
	c.mu.Lock()
	c.writes = append(c.writes, rec)
	c.mu.Unlock()
	return c.MemoryChannel.Write(ctx, id, rec)
}

func (c *countingChannel) Writes() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Record(nil), c.writes...)
}

// fakeSource forwards whatever the test puts on ch.
type fakeSource struct {
	ch       chan location.Fix
	watchErr error
}

func newFakeSource() *fakeSource { return &fakeSource{ch: make(chan location.Fix)} }

func (f *fakeSource) Watch(ctx context.Context) (<-chan location.Fix, error) {
	if f.watchErr != nil {
		return nil, f.watchErr
	}
	out := make(chan location.Fix)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case fx := <-f.ch:
				select {
				case out <- fx:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func pt(lat, lng float64) types.GeoPoint { return types.GeoPoint{Lat: lat, Lng: lng} }
