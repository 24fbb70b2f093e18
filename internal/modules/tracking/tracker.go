// README: Tracker runs the driver-side pipeline: source -> publisher, with a first-fix timeout.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"trackmybus/internal/modules/location"
	"trackmybus/internal/modules/motion"
	"trackmybus/internal/types"
)

const DefaultFirstFixTimeout = 10 * time.Second

type TrackerOption func(*Tracker)

// WithFirstFixTimeout bounds the wait for the first sample after Start.
func WithFirstFixTimeout(d time.Duration) TrackerOption {
	return func(t *Tracker) { t.firstFixTimeout = d }
}

// WithAnimator runs a display animation alongside the tracking session.
func WithAnimator(a *motion.Animator) TrackerOption {
	return func(t *Tracker) { t.animator = a }
}

// OnUnavailable is called once when the source fails or times out. The error
// wraps location.ErrUnavailable.
func OnUnavailable(fn func(error)) TrackerOption {
	return func(t *Tracker) { t.onUnavailable = fn }
}

type session struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Tracker is the single publishing pipeline of one vehicle.
type Tracker struct {
	publisher       *Publisher
	vehicleID       types.ID
	source          location.Source
	animator        *motion.Animator
	firstFixTimeout time.Duration
	onUnavailable   func(error)

	mu  sync.Mutex
	cur *session
}

func NewTracker(pub *Publisher, vehicleID types.ID, src location.Source, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		publisher:       pub,
		vehicleID:       vehicleID,
		source:          src,
		firstFixTimeout: DefaultFirstFixTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cur != nil
}

// Start marks the vehicle active and begins publishing samples from the
// source. A source that cannot be opened leaves the vehicle inactive and
// returns an error wrapping location.ErrUnavailable.
func (t *Tracker) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cur != nil {
		return ErrAlreadyTracking
	}

	if err := t.publisher.SetActive(ctx, t.vehicleID, true); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	fixes, err := t.source.Watch(runCtx)
	if err != nil {
		cancel()
		if perr := t.publisher.SetActive(context.WithoutCancel(ctx), t.vehicleID, false); perr != nil {
			slog.Warn("marking vehicle inactive failed", "vehicle", t.vehicleID, "err", perr)
		}
		return unavailable(err)
	}

	if t.animator != nil {
		t.animator.Start(runCtx)
	}

	s := &session{cancel: cancel, done: make(chan struct{})}
	t.cur = s
	go t.run(runCtx, s, fixes)

	slog.Info("tracking started", "vehicle", t.vehicleID)
	return nil
}

// Stop cancels the source, stops the animation and publishes the vehicle as
// inactive. All three happen even when the tracker is idle.
func (t *Tracker) Stop(ctx context.Context) error {
	t.mu.Lock()
	s := t.cur
	t.cur = nil
	t.mu.Unlock()

	if s != nil {
		s.cancel()
		<-s.done
	}
	if t.animator != nil {
		t.animator.Stop()
	}
	if err := t.publisher.SetActive(ctx, t.vehicleID, false); err != nil {
		return err
	}
	slog.Info("tracking stopped", "vehicle", t.vehicleID)
	return nil
}

func (t *Tracker) run(ctx context.Context, s *session, fixes <-chan location.Fix) {
	err := t.loop(ctx, fixes)
	if err == nil {
		close(s.done)
		return
	}

	t.mu.Lock()
	if t.cur == s {
		t.cur = nil
	}
	t.mu.Unlock()

	s.cancel()
	if t.animator != nil {
		t.animator.Stop()
	}
	if perr := t.publisher.SetActive(context.WithoutCancel(ctx), t.vehicleID, false); perr != nil {
		slog.Warn("marking vehicle inactive failed", "vehicle", t.vehicleID, "err", perr)
	}
	close(s.done)

	slog.Warn("location unavailable", "vehicle", t.vehicleID, "err", err)
	if t.onUnavailable != nil {
		t.onUnavailable(err)
	}
}

// loop publishes fixes until ctx ends (nil) or the source fails (non-nil).
func (t *Tracker) loop(ctx context.Context, fixes <-chan location.Fix) error {
	timer := time.NewTimer(t.firstFixTimeout)
	defer timer.Stop()
	timeout := timer.C

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timeout:
			return fmt.Errorf("%w: no position within %s", location.ErrUnavailable, t.firstFixTimeout)
		case fix, ok := <-fixes:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("%w: source closed", location.ErrUnavailable)
			}
			if fix.Err != nil {
				return unavailable(fix.Err)
			}
			timeout = nil

			tp := fix.Sample.TimedPoint()
			if err := t.publisher.Publish(ctx, t.vehicleID, tp.GeoPoint, tp.Timestamp); err != nil {
				slog.Warn("dropping sample", "vehicle", t.vehicleID, "err", err)
			}
		}
	}
}

func unavailable(err error) error {
	if errors.Is(err, location.ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", location.ErrUnavailable, err)
}
