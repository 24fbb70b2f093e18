// README: Location store backed by Redis GEO (last position) and Postgres (path log).
package location

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"trackmybus/internal/types"
)

const geoKey = "geo:vehicles"

type Store struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

// NewStore accepts nil for either backend; operations on a missing backend are no-ops.
func NewStore(db *pgxpool.Pool, redis *redis.Client) *Store {
	return &Store{db: db, redis: redis}
}

func (s *Store) SetGeo(ctx context.Context, id types.ID, pos types.GeoPoint) error {
	if s.redis == nil {
		return nil
	}
	return s.redis.GeoAdd(ctx, geoKey, &redis.GeoLocation{
		Name:      string(id),
		Latitude:  pos.Lat,
		Longitude: pos.Lng,
	}).Err()
}

// Nearby lists vehicles whose last position is within radiusKm of center.
func (s *Store) Nearby(ctx context.Context, center types.GeoPoint, radiusKm float64) ([]NearbyVehicle, error) {
	if s.redis == nil {
		return nil, nil
	}
	locs, err := s.redis.GeoSearchLocation(ctx, geoKey, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  center.Lng,
			Latitude:   center.Lat,
			Radius:     radiusKm,
			RadiusUnit: "km",
			Sort:       "ASC",
		},
		WithCoord: true,
		WithDist:  true,
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]NearbyVehicle, 0, len(locs))
	for _, l := range locs {
		out = append(out, NearbyVehicle{
			VehicleID:  types.ID(l.Name),
			Position:   types.GeoPoint{Lat: l.Latitude, Lng: l.Longitude},
			DistanceKm: l.Dist,
		})
	}
	return out, nil
}

func (s *Store) AppendPoint(ctx context.Context, p PathPoint) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO vehicle_path_points (vehicle_id, lat, lng, sampled_at)
		VALUES ($1, $2, $3, $4)
	`, string(p.VehicleID), p.Point.Lat, p.Point.Lng, p.Point.Timestamp)
	return err
}

// Path returns up to limit of the most recent points in sample order.
func (s *Store) Path(ctx context.Context, id types.ID, limit int) ([]PathPoint, error) {
	if s.db == nil {
		return nil, errors.New("path log requires a database")
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, vehicle_id, lat, lng, sampled_at, recorded_at FROM (
			SELECT id, vehicle_id, lat, lng, sampled_at, recorded_at
			FROM vehicle_path_points
			WHERE vehicle_id = $1
			ORDER BY sampled_at DESC, id DESC
			LIMIT $2
		) recent
		ORDER BY sampled_at, id
	`, string(id), limit)
	if err != nil {
		return nil, fmt.Errorf("query path: %w", err)
	}
	defer rows.Close()

	var out []PathPoint
	for rows.Next() {
		var p PathPoint
		var vehicleID string
		if err := rows.Scan(&p.ID, &vehicleID, &p.Point.Lat, &p.Point.Lng, &p.Point.Timestamp, &p.RecordedAt); err != nil {
			return nil, err
		}
		p.VehicleID = types.ID(vehicleID)
		out = append(out, p)
	}
	return out, rows.Err()
}
