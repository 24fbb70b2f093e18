package types

import "testing"

func TestGeoPoint_Valid(t *testing.T) {
	tests := []struct {
		name string
		p    GeoPoint
		want bool
	}{
		{"origin", GeoPoint{0, 0}, true},
		{"corners", GeoPoint{Lat: -90, Lng: 180}, true},
		{"lat too high", GeoPoint{Lat: 90.0001, Lng: 0}, false},
		{"lng too low", GeoPoint{Lat: 0, Lng: -180.5}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGeoPoint_String(t *testing.T) {
	p := GeoPoint{Lat: 10.158316, Lng: 76.178494}
	if got := p.String(); got != "10.158316,76.178494" {
		t.Errorf("String() = %q", got)
	}
}
