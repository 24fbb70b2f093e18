package tracking

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"trackmybus/internal/types"
)

// Record is the wire shape written to a Channel under the vehicle's key. Every
// write carries the full state.
type Record struct {
	Location *RecordLocation   `json:"location,omitempty"`
	IsActive bool              `json:"isActive"`
	Path     []RecordPathPoint `json:"path"`
	Seq      uint64            `json:"seq"`
}

type RecordLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timestamp int64   `json:"timestamp"`
}

type RecordPathPoint struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Timestamp int64   `json:"timestamp"`
}

// EncodeRecord converts a state into its wire form.
func EncodeRecord(s VehicleState) Record {
	rec := Record{
		IsActive: s.IsActive,
		Path:     make([]RecordPathPoint, len(s.Path)),
		Seq:      s.Seq,
	}
	if s.LastPosition != nil {
		rec.Location = &RecordLocation{
			Latitude:  s.LastPosition.Lat,
			Longitude: s.LastPosition.Lng,
			Timestamp: s.LastUpdated,
		}
	}
	for i, p := range s.Path {
		rec.Path[i] = RecordPathPoint{Lat: p.Lat, Lng: p.Lng, Timestamp: p.Timestamp}
	}
	return rec
}

// Decoding goes through pointer fields so that missing coordinates can be told
// apart from a legitimate 0.
type wireRecord struct {
	Location *wireLocation   `json:"location"`
	IsActive bool            `json:"isActive"`
	Path     []wirePathPoint `json:"path"`
	Seq      uint64          `json:"seq"`
}

type wireLocation struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Timestamp float64  `json:"timestamp"`
}

type wirePathPoint struct {
	Lat       *float64 `json:"lat"`
	Lng       *float64 `json:"lng"`
	Timestamp float64  `json:"timestamp"`
}

// DecodeRecord parses a channel snapshot. Errors wrap ErrMalformedRecord, or
// are ErrNoData for an empty or null snapshot.
func DecodeRecord(vehicleID types.ID, raw []byte) (VehicleState, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return VehicleState{}, ErrNoData
	}

	var w wireRecord
	if err := json.Unmarshal(raw, &w); err != nil {
		return VehicleState{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}

	st := VehicleState{
		VehicleID: vehicleID,
		IsActive:  w.IsActive,
		Path:      make([]types.TimedPoint, 0, len(w.Path)),
		Seq:       w.Seq,
	}
	if w.Location != nil {
		p, err := toPoint(w.Location.Latitude, w.Location.Longitude)
		if err != nil {
			return VehicleState{}, fmt.Errorf("%w: location: %v", ErrMalformedRecord, err)
		}
		st.LastPosition = &p
		st.LastUpdated = int64(w.Location.Timestamp)
	}
	for i, wp := range w.Path {
		p, err := toPoint(wp.Lat, wp.Lng)
		if err != nil {
			return VehicleState{}, fmt.Errorf("%w: path[%d]: %v", ErrMalformedRecord, i, err)
		}
		st.Path = append(st.Path, types.TimedPoint{GeoPoint: p, Timestamp: int64(wp.Timestamp)})
	}
	return st, nil
}

func toPoint(lat, lng *float64) (types.GeoPoint, error) {
	if lat == nil || lng == nil {
		return types.GeoPoint{}, fmt.Errorf("missing coordinate")
	}
	if math.IsNaN(*lat) || math.IsNaN(*lng) {
		return types.GeoPoint{}, fmt.Errorf("coordinate is not a number")
	}
	p := types.GeoPoint{Lat: *lat, Lng: *lng}
	if !p.Valid() {
		return types.GeoPoint{}, fmt.Errorf("coordinate %s out of range", p)
	}
	return p, nil
}
