package motion

import (
	"context"
	"fmt"
	"time"

	"trackmybus/internal/modules/location"
	"trackmybus/internal/modules/route"
)

// SimulatedSource is a location.Source that drives along a route with an
// Animator, emitting every frame as a position sample. It stands in for a
// device GPS in the simulator and in demo mode.
type SimulatedSource struct {
	route  route.Route
	interp Interpolator
	period time.Duration
}

var _ location.Source = (*SimulatedSource)(nil)

func NewSimulatedSource(r route.Route, interp Interpolator, period time.Duration) *SimulatedSource {
	return &SimulatedSource{route: r, interp: interp, period: period}
}

// Watch starts a fresh drive from the first stop. The returned channel is
// closed once ctx is cancelled.
func (s *SimulatedSource) Watch(ctx context.Context) (<-chan location.Fix, error) {
	if !s.route.Navigable() {
		return nil, fmt.Errorf("%w: route %s has fewer than two stops", location.ErrUnavailable, s.route.ID)
	}

	out := make(chan location.Fix, 1)
	anim := NewAnimator(s.route, s.interp, s.period, func(f Frame) {
		select {
		case out <- location.Fix{Sample: location.Sample{Point: f.Position, Timestamp: f.At}}:
		case <-ctx.Done():
		}
	})
	anim.Start(ctx)

	go func() {
		<-ctx.Done()
		anim.Stop()
		close(out)
	}()
	return out, nil
}
