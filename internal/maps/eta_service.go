// README: Travel estimate from a vehicle to the next stop on its route.
package maps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"trackmybus/internal/modules/location"
	"trackmybus/internal/modules/progress"
	"trackmybus/internal/modules/route"
	"trackmybus/internal/types"
)

const defaultAverageSpeedKmh = 25.0

var ErrNoNextStop = errors.New("route has no stops")

// TravelEstimator returns a duration and readable distance between two points.
// DirectionsService implements it.
type TravelEstimator interface {
	TravelEstimate(ctx context.Context, origin, destination types.GeoPoint) (time.Duration, string, error)
}

// Estimate is the expected travel to the next stop.
type Estimate struct {
	StopIndex  int           `json:"stop_index"`
	StopID     string        `json:"stop_id"`
	StopName   string        `json:"stop_name"`
	Duration   time.Duration `json:"-"`
	Seconds    int64         `json:"duration_seconds"`
	Distance   string        `json:"distance"`
	DistanceKm float64       `json:"distance_km"`
	Source     string        `json:"source"`
}

// ETAService estimates arrival at the next stop. Without a TravelEstimator, or
// when it fails, it falls back to straight-line distance at an average speed.
type ETAService struct {
	directions TravelEstimator
	speedKmh   float64
}

func NewETAService(directions TravelEstimator) *ETAService {
	return &ETAService{directions: directions, speedKmh: defaultAverageSpeedKmh}
}

// NextStop estimates travel from position to the stop after the nearest one.
// A vehicle at the last stop gets an estimate to that stop.
func (s *ETAService) NextStop(ctx context.Context, position types.GeoPoint, r route.Route) (Estimate, error) {
	if len(r.Stops) == 0 {
		return Estimate{}, ErrNoNextStop
	}
	res := progress.Resolve(position, r)
	idx := res.NearestStopIndex + 1
	if idx > r.LastIndex() {
		idx = r.LastIndex()
	}
	stop := r.Stops[idx]

	est := Estimate{
		StopIndex:  idx,
		StopID:     stop.ID,
		StopName:   stop.Name,
		DistanceKm: location.DistanceKm(position, stop.Position),
	}

	if s.directions != nil {
		d, human, err := s.directions.TravelEstimate(ctx, position, stop.Position)
		if err == nil {
			est.Duration, est.Distance, est.Source = d, human, "google_maps"
			est.Seconds = int64(d / time.Second)
			return est, nil
		}
		slog.Warn("directions lookup failed, using straight-line estimate", "route", r.ID, "stop", stop.ID, "err", err)
	}

	hours := est.DistanceKm / s.speedKmh
	est.Duration = time.Duration(hours * float64(time.Hour)).Round(time.Second)
	est.Seconds = int64(est.Duration / time.Second)
	est.Distance = humanDistance(est.DistanceKm)
	est.Source = "straight_line"
	return est, nil
}

func humanDistance(km float64) string {
	if km < 1 {
		return fmt.Sprintf("%d m", int(math.Round(km*1000)))
	}
	return fmt.Sprintf("%.1f km", km)
}
