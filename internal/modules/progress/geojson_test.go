package progress

import (
	"encoding/json"
	"testing"

	"trackmybus/internal/modules/route"
	"trackmybus/internal/types"
)

func threeStops() route.Route {
	return route.Route{ID: "r", Stops: []route.Stop{
		{ID: "a", Position: types.GeoPoint{Lat: 0, Lng: 0}},
		{ID: "b", Position: types.GeoPoint{Lat: 1, Lng: 0}},
		{ID: "c", Position: types.GeoPoint{Lat: 2, Lng: 0}},
	}}
}

func TestFeatureCollection_SplitLines(t *testing.T) {
	res := Resolve(types.GeoPoint{Lat: 1.1, Lng: 0}, threeStops())
	pos := types.GeoPoint{Lat: 1.1, Lng: 0}
	fc := FeatureCollection(res, &pos)

	if len(fc.Features) != 3 {
		t.Fatalf("expected traveled, remaining and vehicle features, got %d", len(fc.Features))
	}
	if fc.Features[0].Properties["segment"] != "traveled" || fc.Features[1].Properties["segment"] != "remaining" {
		t.Errorf("unexpected segment order: %v / %v", fc.Features[0].Properties, fc.Features[1].Properties)
	}

	raw, err := json.Marshal(fc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded struct {
		Features []struct {
			Geometry struct {
				Type        string          `json:"type"`
				Coordinates json.RawMessage `json:"coordinates"`
			} `json:"geometry"`
		} `json:"features"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Features[0].Geometry.Type != "LineString" || decoded.Features[2].Geometry.Type != "Point" {
		t.Errorf("unexpected geometry types in %s", raw)
	}
	// [lng, lat] ordering
	if string(decoded.Features[2].Geometry.Coordinates) != "[0,1.1]" {
		t.Errorf("vehicle coordinates = %s, want [0,1.1]", decoded.Features[2].Geometry.Coordinates)
	}
}

func TestFeatureCollection_DropsDegenerateSegments(t *testing.T) {
	// Nearest is the first stop: traveled has one point and cannot be a line.
	res := Resolve(types.GeoPoint{Lat: 0, Lng: 0}, threeStops())
	fc := FeatureCollection(res, nil)
	if len(fc.Features) != 1 || fc.Features[0].Properties["segment"] != "remaining" {
		t.Errorf("expected only the remaining line, got %+v", fc.Features)
	}
}
