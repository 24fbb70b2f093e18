package progress

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"trackmybus/internal/types"
)

// FeatureCollection renders the traveled and remaining segments as GeoJSON
// LineStrings tagged with a "segment" property. Segments with fewer than two
// points cannot form a line and are left out. The vehicle position, when
// given, is added as a Point feature.
func FeatureCollection(res Result, vehicle *types.GeoPoint) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	if f := lineFeature(res.Traveled, "traveled"); f != nil {
		fc.Append(f)
	}
	if f := lineFeature(res.Remaining, "remaining"); f != nil {
		fc.Append(f)
	}
	if vehicle != nil {
		f := geojson.NewFeature(toOrb(*vehicle))
		f.Properties["kind"] = "vehicle"
		f.Properties["nearest_stop_index"] = res.NearestStopIndex
		fc.Append(f)
	}
	return fc
}

func lineFeature(pts []types.GeoPoint, segment string) *geojson.Feature {
	if len(pts) < 2 {
		return nil
	}
	ls := make(orb.LineString, len(pts))
	for i, p := range pts {
		ls[i] = toOrb(p)
	}
	f := geojson.NewFeature(ls)
	f.Properties["segment"] = segment
	return f
}

// GeoJSON orders coordinates as [lng, lat].
func toOrb(p types.GeoPoint) orb.Point {
	return orb.Point{p.Lng, p.Lat}
}
