package motion

import (
	"context"
	"sync"
	"time"

	"trackmybus/internal/modules/route"
	"trackmybus/internal/types"
)

// Frame is one animation step.
type Frame struct {
	State    State
	Position types.GeoPoint
	At       time.Time
}

// Animator ticks an Interpolator along a route on its own goroutine and hands
// every interpolated position to onFrame. onFrame runs on the animation
// goroutine and must not call Stop.
type Animator struct {
	interp  Interpolator
	period  time.Duration
	route   route.Route
	onFrame func(Frame)

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
}

func NewAnimator(r route.Route, interp Interpolator, period time.Duration, onFrame func(Frame)) *Animator {
	if interp.Step <= 0 {
		interp.Step = DefaultStep
	}
	if period <= 0 {
		period = DefaultTickPeriod
	}
	return &Animator{interp: interp, period: period, route: r, onFrame: onFrame}
}

// Start re-arms the animation at the first stop and begins ticking. A running
// animation is stopped first. The animation also ends when ctx is cancelled.
func (a *Animator) Start(ctx context.Context) {
	a.Stop()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	a.mu.Lock()
	a.state = State{}
	a.cancel = cancel
	a.done = done
	a.mu.Unlock()

	go a.run(runCtx, done)
}

// Stop cancels the ticker and waits for the animation goroutine to exit. No
// frame is delivered after Stop returns. Calling Stop again is a no-op.
func (a *Animator) Stop() {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.cancel, a.done = nil, nil
	a.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (a *Animator) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cancel != nil
}

func (a *Animator) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Animator) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(a.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			a.mu.Lock()
			if ctx.Err() != nil {
				a.mu.Unlock()
				return
			}
			a.state = a.interp.Tick(a.state, a.route)
			st := a.state
			a.mu.Unlock()

			pos, ok := Position(st, a.route)
			if ok && a.onFrame != nil {
				a.onFrame(Frame{State: st, Position: pos, At: now})
			}
		}
	}
}
