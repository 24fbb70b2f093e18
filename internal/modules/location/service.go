// README: Location service records every published sample into the path log.
package location

import (
	"context"
	"errors"
	"fmt"

	"trackmybus/internal/types"
)

type Service struct {
	store *Store
}

func NewService(store *Store) *Service {
	return &Service{store: store}
}

// Record indexes the vehicle's last position and appends the point to the
// path log. Both writes are attempted; their errors are joined.
func (s *Service) Record(ctx context.Context, vehicleID types.ID, p types.TimedPoint) error {
	if !p.Valid() {
		return fmt.Errorf("record %s: invalid point %s", vehicleID, p.GeoPoint)
	}
	geoErr := s.store.SetGeo(ctx, vehicleID, p.GeoPoint)
	if geoErr != nil {
		geoErr = fmt.Errorf("set geo: %w", geoErr)
	}
	logErr := s.store.AppendPoint(ctx, PathPoint{VehicleID: vehicleID, Point: p})
	if logErr != nil {
		logErr = fmt.Errorf("append path point: %w", logErr)
	}
	return errors.Join(geoErr, logErr)
}

// Replay returns the persisted path of a vehicle, oldest first.
func (s *Service) Replay(ctx context.Context, vehicleID types.ID, limit int) ([]types.TimedPoint, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.store.Path(ctx, vehicleID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]types.TimedPoint, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Point)
	}
	return out, nil
}

// NearbyVehicles lists vehicles near center, closest first.
func (s *Service) NearbyVehicles(ctx context.Context, center types.GeoPoint, radiusKm float64) ([]NearbyVehicle, error) {
	res, err := s.store.Nearby(ctx, center, radiusKm)
	if err != nil {
		return nil, err
	}
	for i := range res {
		if res[i].DistanceKm == 0 {
			res[i].DistanceKm = DistanceKm(center, res[i].Position)
		}
	}
	sortByDistance(res, func(v NearbyVehicle) float64 { return v.DistanceKm })
	return res, nil
}

