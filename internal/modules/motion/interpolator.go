// Package motion synthesizes smooth display motion along a route between
// sparse position updates.
package motion

import (
	"time"

	"trackmybus/internal/modules/route"
	"trackmybus/internal/types"
)

const (
	DefaultStep       = 0.01
	DefaultTickPeriod = 200 * time.Millisecond

	// boundaryTolerance lets decimal steps such as 0.1 reach exactly 1.
	boundaryTolerance = 1e-9
)

// State is the animation cursor: the stop being left and the fraction of the
// way to the next one.
type State struct {
	FromStopIndex int     `json:"from_stop_index"`
	Progress      float64 `json:"progress"`
}

// Interpolator advances a State by a fixed Step per tick.
type Interpolator struct {
	Step float64
}

// Tick returns the state one step later. Reaching the next stop resets the
// progress to 0; at the last stop the state clamps at progress 1 and never
// wraps. Routes without stops leave the state unchanged.
func (in Interpolator) Tick(s State, r route.Route) State {
	if len(r.Stops) == 0 {
		return s
	}
	last := r.LastIndex()
	from := clampIndex(s.FromStopIndex, last)

	p := s.Progress + in.Step
	if p < 1-boundaryTolerance {
		return State{FromStopIndex: from, Progress: p}
	}
	if from < last {
		return State{FromStopIndex: from + 1, Progress: 0}
	}
	return State{FromStopIndex: last, Progress: 1}
}

// Position linearly interpolates between stop FromStopIndex and the next one.
// At the last stop it is the stop itself. ok is false for an empty route.
func Position(s State, r route.Route) (types.GeoPoint, bool) {
	if len(r.Stops) == 0 {
		return types.GeoPoint{}, false
	}
	last := r.LastIndex()
	from := clampIndex(s.FromStopIndex, last)
	if from == last {
		return r.Stops[last].Position, true
	}

	t := s.Progress
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	a, b := r.Stops[from].Position, r.Stops[from+1].Position
	return types.GeoPoint{
		Lat: a.Lat + (b.Lat-a.Lat)*t,
		Lng: a.Lng + (b.Lng-a.Lng)*t,
	}, true
}

func clampIndex(i, last int) int {
	if i < 0 {
		return 0
	}
	if i > last {
		return last
	}
	return i
}
