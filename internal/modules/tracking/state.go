// README: Vehicle state as owned by the Publisher and mirrored by Subscribers.
package tracking

import "trackmybus/internal/types"

// VehicleState is the live state of one vehicle. LastPosition is nil until the
// first sample; Path is append-only and ordered by timestamp. Seq increases
// with every emitted change.
type VehicleState struct {
	VehicleID    types.ID           `json:"vehicle_id"`
	LastPosition *types.GeoPoint    `json:"last_position,omitempty"`
	LastUpdated  int64              `json:"last_updated,omitempty"`
	IsActive     bool               `json:"is_active"`
	Path         []types.TimedPoint `json:"path"`
	Seq          uint64             `json:"seq"`
}

// Clone returns a deep copy that shares nothing with s.
func (s VehicleState) Clone() VehicleState {
	out := s
	if s.LastPosition != nil {
		p := *s.LastPosition
		out.LastPosition = &p
	}
	out.Path = make([]types.TimedPoint, len(s.Path))
	copy(out.Path, s.Path)
	return out
}

// Position returns the last known position; ok is false before the first sample.
func (s VehicleState) Position() (types.GeoPoint, bool) {
	if s.LastPosition == nil {
		return types.GeoPoint{}, false
	}
	return *s.LastPosition, true
}
