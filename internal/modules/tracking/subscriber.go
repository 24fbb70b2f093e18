// README: Subscriber mirrors vehicle records from the Channel and fans them out to observers.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"trackmybus/internal/types"
)

type observer struct {
	fn     func(VehicleState)
	primed bool
}

// feed is the single channel subscription shared by all observers of one vehicle.
type feed struct {
	id types.ID

	// dispatch serializes deliveries, including the initial one to a new observer.
	dispatch sync.Mutex

	// ready is closed once the channel subscription is open or has failed.
	ready chan struct{}
	err   error

	mu        sync.Mutex
	observers map[string]*observer
	mirror    VehicleState
	hasMirror bool
	closed    bool
	stop      func()
}

func newFeed(id types.ID) *feed {
	return &feed{id: id, ready: make(chan struct{}), observers: make(map[string]*observer)}
}

// open records the outcome of the channel subscription. A feed whose observers
// all left while it was opening is stopped right away.
func (f *feed) open(stop func(), err error) {
	f.mu.Lock()
	f.stop, f.err = stop, err
	closed := f.closed
	f.mu.Unlock()
	close(f.ready)
	if closed && stop != nil {
		stop()
	}
}

// Subscriber keeps a read-only mirror of every observed vehicle. The first
// observer of a vehicle opens the channel subscription and the last one to
// leave closes it. Observers arriving while it opens wait for it.
type Subscriber struct {
	channel Channel
	ctx     context.Context

	mu    sync.Mutex
	feeds map[types.ID]*feed
}

// NewSubscriber binds channel subscriptions to ctx; cancelling it ends them all.
func NewSubscriber(ctx context.Context, ch Channel) *Subscriber {
	return &Subscriber{channel: ch, ctx: ctx, feeds: make(map[types.ID]*feed)}
}

// Subscribe registers onUpdate for a vehicle. The current mirrored state, if
// any, is delivered immediately, then every accepted snapshot in channel
// order. The returned function unsubscribes and is safe to call more than
// once, including from inside onUpdate. Cancelling ctx also unsubscribes.
func (s *Subscriber) Subscribe(ctx context.Context, vehicleID types.ID, onUpdate func(VehicleState)) (func(), error) {
	if vehicleID == "" {
		return nil, ErrInvalidVehicle
	}
	if onUpdate == nil {
		return nil, errors.New("subscribe: nil callback")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	subID := uuid.NewString()
	obs := &observer{fn: onUpdate}

	s.mu.Lock()
	f, ok := s.feeds[vehicleID]
	if !ok {
		f = newFeed(vehicleID)
		s.feeds[vehicleID] = f
	}
	f.mu.Lock()
	f.observers[subID] = obs
	f.mu.Unlock()
	s.mu.Unlock()

	// The channel subscription may be a network round trip; it runs without
	// s.mu so other vehicles are not held up.
	if !ok {
		stop, err := s.channel.Subscribe(s.ctx, vehicleID, f.receive)
		if err != nil {
			s.mu.Lock()
			if s.feeds[vehicleID] == f {
				delete(s.feeds, vehicleID)
			}
			s.mu.Unlock()
		}
		f.open(stop, err)
	}
	select {
	case <-f.ready:
	case <-ctx.Done():
		s.unsubscribe(f, subID)
		return nil, ctx.Err()
	}
	if f.err != nil {
		s.unsubscribe(f, subID)
		return nil, fmt.Errorf("subscribe %s: %w", vehicleID, f.err)
	}

	slog.Debug("observer subscribed", "vehicle", vehicleID, "subscription", subID)

	f.dispatch.Lock()
	f.mu.Lock()
	_, still := f.observers[subID]
	st, has := f.mirror, f.hasMirror
	obs.primed = true
	f.mu.Unlock()
	if still && has {
		onUpdate(st.Clone())
	}
	f.dispatch.Unlock()

	var once sync.Once
	released := make(chan struct{})
	unsubscribe := func() {
		once.Do(func() {
			close(released)
			s.unsubscribe(f, subID)
		})
	}
	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				unsubscribe()
			case <-released:
			}
		}()
	}
	return unsubscribe, nil
}

func (s *Subscriber) unsubscribe(f *feed, subID string) {
	s.mu.Lock()
	f.mu.Lock()
	delete(f.observers, subID)
	last := len(f.observers) == 0
	if last {
		f.closed = true
	}
	stop := f.stop
	f.mu.Unlock()
	if last && s.feeds[f.id] == f {
		delete(s.feeds, f.id)
	}
	s.mu.Unlock()

	slog.Debug("observer unsubscribed", "vehicle", f.id, "subscription", subID, "last", last)
	if last && stop != nil {
		stop()
	}
}

// Latest returns the mirrored state, or reads the channel once when no
// observer is active. It returns ErrNoData when the vehicle never published.
func (s *Subscriber) Latest(ctx context.Context, vehicleID types.ID) (VehicleState, error) {
	s.mu.Lock()
	f, ok := s.feeds[vehicleID]
	s.mu.Unlock()
	if ok {
		f.mu.Lock()
		st, has := f.mirror, f.hasMirror
		f.mu.Unlock()
		if has {
			return st.Clone(), nil
		}
	}

	raw, err := s.channel.Read(ctx, vehicleID)
	if err != nil {
		return VehicleState{}, err
	}
	if raw == nil {
		return VehicleState{}, ErrNoData
	}
	return DecodeRecord(vehicleID, raw)
}

// Observers reports how many observers are registered for a vehicle.
func (s *Subscriber) Observers(vehicleID types.ID) int {
	s.mu.Lock()
	f, ok := s.feeds[vehicleID]
	s.mu.Unlock()
	if !ok {
		return 0
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.observers)
}

// receive handles one snapshot from the channel. Malformed and stale
// snapshots are dropped; the last good state stays in place.
func (f *feed) receive(raw []byte) {
	st, err := DecodeRecord(f.id, raw)

	f.dispatch.Lock()
	defer f.dispatch.Unlock()

	if err != nil {
		slog.Warn("dropping vehicle record", "vehicle", f.id, "err", err)
		return
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	if f.hasMirror && st.Seq < f.mirror.Seq {
		f.mu.Unlock()
		slog.Debug("dropping stale vehicle record", "vehicle", f.id, "seq", st.Seq, "mirror_seq", f.mirror.Seq)
		return
	}
	f.mirror = st
	f.hasMirror = true
	targets := make([]func(VehicleState), 0, len(f.observers))
	for _, o := range f.observers {
		if o.primed {
			targets = append(targets, o.fn)
		}
	}
	f.mu.Unlock()

	for _, fn := range targets {
		fn(st.Clone())
	}
}
