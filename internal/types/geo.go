// README: Common geographic value objects used across modules.
package types

import "fmt"

// ID identifies a vehicle, route or user.
type ID string

// GeoPoint is an immutable latitude/longitude pair in decimal degrees.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the point lies within the WGS84 coordinate ranges.
func (p GeoPoint) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

func (p GeoPoint) String() string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lng)
}

// TimedPoint is a GeoPoint stamped with the epoch-millisecond time it was sampled.
type TimedPoint struct {
	GeoPoint
	Timestamp int64 `json:"timestamp"`
}
