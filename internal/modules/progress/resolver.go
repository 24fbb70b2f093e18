// Package progress derives where a vehicle is along its route.
//
// Distances are planar: latitude and longitude are treated as a flat 2D plane.
// Mobile clients compute the same planar figure, so nearest-stop answers must
// not change to a great-circle formula.
package progress

import (
	"math"

	"trackmybus/internal/modules/route"
	"trackmybus/internal/types"
)

// Result is the progress of a vehicle along a route. Traveled and Remaining
// share the nearest stop so the two polylines meet without a gap.
type Result struct {
	NearestStopIndex int              `json:"nearest_stop_index"`
	PercentComplete  int              `json:"percent_complete"`
	Traveled         []types.GeoPoint `json:"traveled"`
	Remaining        []types.GeoPoint `json:"remaining"`
}

// Resolve computes the progress of position along r. It is pure and is meant
// to be recomputed from scratch on every position update.
func Resolve(position types.GeoPoint, r route.Route) Result {
	if len(r.Stops) == 0 {
		return Result{Traveled: []types.GeoPoint{}, Remaining: []types.GeoPoint{}}
	}

	idx := NearestStop(position, r.Stops)
	pts := r.Points()

	traveled := make([]types.GeoPoint, idx+1)
	copy(traveled, pts[:idx+1])
	remaining := make([]types.GeoPoint, len(pts)-idx)
	copy(remaining, pts[idx:])

	return Result{
		NearestStopIndex: idx,
		PercentComplete:  percent(idx, len(pts)),
		Traveled:         traveled,
		Remaining:        remaining,
	}
}

// NearestStop returns the index of the stop closest to p. Exact ties keep the
// lowest index. It returns 0 for an empty slice.
func NearestStop(p types.GeoPoint, stops []route.Stop) int {
	best := 0
	minDist := math.Inf(1)
	for i, s := range stops {
		if d := planarDistance(p, s.Position); d < minDist {
			minDist = d
			best = i
		}
	}
	return best
}

func planarDistance(a, b types.GeoPoint) float64 {
	return math.Hypot(a.Lat-b.Lat, a.Lng-b.Lng)
}

func percent(idx, n int) int {
	last := n - 1
	if last < 1 {
		last = 1
	}
	return int(math.Round(float64(idx) / float64(last) * 100))
}
