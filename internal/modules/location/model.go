// README: Path log rows and last-known positions as persisted by the Store.
package location

import (
	"time"

	"trackmybus/internal/types"
)

// PathPoint is one persisted sample of a vehicle's path.
type PathPoint struct {
	ID         int64
	VehicleID  types.ID
	Point      types.TimedPoint
	RecordedAt time.Time
}

// NearbyVehicle is a vehicle whose last known position lies within a search radius.
type NearbyVehicle struct {
	VehicleID  types.ID       `json:"vehicle_id"`
	Position   types.GeoPoint `json:"position"`
	DistanceKm float64        `json:"distance_km"`
}
