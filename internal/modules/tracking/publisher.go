// README: Publisher owns vehicle state and is the only writer to the Channel.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"trackmybus/internal/modules/location"
	"trackmybus/internal/types"
)

// Recorder persists published points (path log). location.Service implements it.
type Recorder interface {
	Record(ctx context.Context, vehicleID types.ID, p types.TimedPoint) error
}

// History returns a vehicle's most recent persisted points, oldest first.
// location.Service implements it.
type History interface {
	Replay(ctx context.Context, vehicleID types.ID, limit int) ([]types.TimedPoint, error)
}

// Notifier is told when a vehicle starts or stops sharing its position.
type Notifier interface {
	ActivityChanged(ctx context.Context, vehicleID types.ID, active bool) error
}

var (
	_ Recorder = (*location.Service)(nil)
	_ History  = (*location.Service)(nil)
)

type PublisherOption func(*Publisher)

func WithRecorder(r Recorder) PublisherOption { return func(p *Publisher) { p.recorder = r } }
func WithNotifier(n Notifier) PublisherOption { return func(p *Publisher) { p.notifier = n } }

// WithHistory restores the path from h when the channel holds no record for a
// vehicle, e.g. after the channel was flushed or a memory channel restarted.
func WithHistory(h History) PublisherOption { return func(p *Publisher) { p.history = h } }

// WithClock replaces time.Now, used when a sample carries no timestamp.
func WithClock(now func() time.Time) PublisherOption { return func(p *Publisher) { p.now = now } }

// replayLimit bounds the points restored from History.
const replayLimit = 500

type vehicle struct {
	mu      sync.Mutex
	state   VehicleState
	touched bool
}

// Publisher accepts samples and activity changes and writes the full vehicle
// record to the Channel after every change. Writes for one vehicle are
// serialized; state mutation and the channel write happen as one step.
type Publisher struct {
	channel  Channel
	recorder Recorder
	notifier Notifier
	history  History
	now      func() time.Time

	mu       sync.Mutex
	vehicles map[types.ID]*vehicle
}

func NewPublisher(ch Channel, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		channel:  ch,
		now:      time.Now,
		vehicles: make(map[types.ID]*vehicle),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Publisher) vehicle(id types.ID) *vehicle {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.vehicles[id]
	if !ok {
		v = &vehicle{state: VehicleState{VehicleID: id, Path: []types.TimedPoint{}}}
		p.vehicles[id] = v
	}
	return v
}

// Publish records a new position sample. timestamp is epoch milliseconds; a
// non-positive value means now. The sample is inserted into the path by
// timestamp, after any points with an equal timestamp. IsActive is never
// changed. Channel failures are logged, not returned.
func (p *Publisher) Publish(ctx context.Context, vehicleID types.ID, sample types.GeoPoint, timestamp int64) error {
	if vehicleID == "" {
		return ErrInvalidVehicle
	}
	if !sample.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidPosition, sample)
	}
	if timestamp <= 0 {
		timestamp = p.now().UnixMilli()
	}
	tp := types.TimedPoint{GeoPoint: sample, Timestamp: timestamp}

	v := p.vehicle(vehicleID)
	v.mu.Lock()
	p.touch(ctx, v)
	pos := sample
	v.state.LastPosition = &pos
	v.state.LastUpdated = timestamp
	v.state.Path = insertByTime(v.state.Path, tp)
	v.state.Seq++
	p.emit(ctx, v)
	v.mu.Unlock()

	if p.recorder != nil {
		if err := p.recorder.Record(ctx, vehicleID, tp); err != nil {
			slog.Warn("path log write failed", "vehicle", vehicleID, "err", err)
		}
	}
	return nil
}

// SetActive toggles whether the vehicle is sharing its position. It emits only
// when the flag changes or on the first use of the vehicle.
func (p *Publisher) SetActive(ctx context.Context, vehicleID types.ID, active bool) error {
	if vehicleID == "" {
		return ErrInvalidVehicle
	}

	v := p.vehicle(vehicleID)
	v.mu.Lock()
	first := p.touch(ctx, v)
	changed := v.state.IsActive != active
	if !first && !changed {
		v.mu.Unlock()
		return nil
	}
	v.state.IsActive = active
	v.state.Seq++
	p.emit(ctx, v)
	v.mu.Unlock()

	if changed && p.notifier != nil {
		if err := p.notifier.ActivityChanged(ctx, vehicleID, active); err != nil {
			slog.Warn("activity notification failed", "vehicle", vehicleID, "active", active, "err", err)
		}
	}
	return nil
}

// State returns a copy of the publisher's own view of the vehicle.
func (p *Publisher) State(vehicleID types.ID) (VehicleState, error) {
	p.mu.Lock()
	v, ok := p.vehicles[vehicleID]
	p.mu.Unlock()
	if !ok {
		return VehicleState{}, ErrNoData
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.touched {
		return VehicleState{}, ErrNoData
	}
	return v.state.Clone(), nil
}

// touch prepares a vehicle on its first use. A record left on the channel by
// an earlier process is carried over whole, so subscribers keep accepting our
// writes and keep the last known position and path. Without one, the path is
// restored from History. It reports whether this was the first use. Must be
// called with v.mu held.
func (p *Publisher) touch(ctx context.Context, v *vehicle) bool {
	if v.touched {
		return false
	}
	v.touched = true

	raw, err := p.channel.Read(ctx, v.state.VehicleID)
	if err != nil {
		slog.Warn("reading previous record failed", "vehicle", v.state.VehicleID, "err", err)
		return true
	}
	prev, err := DecodeRecord(v.state.VehicleID, raw)
	switch {
	case err == nil:
		v.state = prev
		return true
	case !errors.Is(err, ErrNoData):
		slog.Warn("ignoring previous record", "vehicle", v.state.VehicleID, "err", err)
	}
	p.replay(ctx, v)
	return true
}

// replay seeds the path and last position from History. Must be called with
// v.mu held.
func (p *Publisher) replay(ctx context.Context, v *vehicle) {
	if p.history == nil {
		return
	}
	points, err := p.history.Replay(ctx, v.state.VehicleID, replayLimit)
	if err != nil {
		slog.Warn("replaying path log failed", "vehicle", v.state.VehicleID, "err", err)
		return
	}
	if len(points) == 0 {
		return
	}
	v.state.Path = append([]types.TimedPoint{}, points...)
	last := points[len(points)-1]
	pos := last.GeoPoint
	v.state.LastPosition = &pos
	v.state.LastUpdated = last.Timestamp
}

// emit must be called with v.mu held.
func (p *Publisher) emit(ctx context.Context, v *vehicle) {
	if err := p.channel.Write(ctx, v.state.VehicleID, EncodeRecord(v.state)); err != nil {
		slog.Warn("channel write failed", "vehicle", v.state.VehicleID, "seq", v.state.Seq, "err", err)
	}
}

// insertByTime keeps path ordered by timestamp with ties in arrival order, so
// an in-order stream is a plain append.
func insertByTime(path []types.TimedPoint, tp types.TimedPoint) []types.TimedPoint {
	i := sort.Search(len(path), func(i int) bool { return path[i].Timestamp > tp.Timestamp })
	path = append(path, types.TimedPoint{})
	copy(path[i+1:], path[i:])
	path[i] = tp
	return path
}
