// README: Route and stop definitions; stop order is the direction of travel.
package route

import (
	"errors"
	"fmt"

	"trackmybus/internal/types"
)

var (
	ErrNotFound     = errors.New("route not found")
	ErrInvalidRoute = errors.New("invalid route")
)

// Stop is a named waypoint owned by a Route.
type Stop struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Position types.GeoPoint `json:"position"`
}

type Route struct {
	ID    types.ID `json:"id"`
	Name  string   `json:"name,omitempty"`
	Stops []Stop   `json:"stops"`
}

// Navigable reports whether the route has enough stops to draw a line.
func (r Route) Navigable() bool {
	return len(r.Stops) >= 2
}

// LastIndex is the index of the final stop, or -1 for an empty route.
func (r Route) LastIndex() int {
	return len(r.Stops) - 1
}

// Points returns the stop coordinates in route order.
func (r Route) Points() []types.GeoPoint {
	pts := make([]types.GeoPoint, len(r.Stops))
	for i, s := range r.Stops {
		pts[i] = s.Position
	}
	return pts
}

// Validate checks stop ids are unique and coordinates are in range. It does
// not require the route to be navigable.
func (r Route) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidRoute)
	}
	seen := make(map[string]struct{}, len(r.Stops))
	for i, s := range r.Stops {
		if s.ID == "" {
			return fmt.Errorf("%w: route %s stop %d has no id", ErrInvalidRoute, r.ID, i)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("%w: route %s has duplicate stop id %q", ErrInvalidRoute, r.ID, s.ID)
		}
		seen[s.ID] = struct{}{}
		if !s.Position.Valid() {
			return fmt.Errorf("%w: route %s stop %q at %s out of range", ErrInvalidRoute, r.ID, s.ID, s.Position)
		}
	}
	return nil
}
