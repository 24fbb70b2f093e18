package route

import (
	"context"
	"errors"
	"testing"

	"trackmybus/internal/testutil"
	"trackmybus/internal/types"
)

func TestStore_PutAndGet(t *testing.T) {
	db := testutil.Postgres(t, "route_stops", "routes")
	store := NewStore(db)
	ctx := context.Background()

	r := Route{ID: "bus_1", Name: "Morning", Stops: []Stop{
		{ID: "s1", Name: "Depot", Position: types.GeoPoint{Lat: 10.1583, Lng: 76.1784}},
		{ID: "s2", Name: "Market", Position: types.GeoPoint{Lat: 10.1601, Lng: 76.1802}},
		{ID: "s3", Name: "School", Position: types.GeoPoint{Lat: 10.1625, Lng: 76.1839}},
	}}
	if err := store.Put(ctx, r); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := store.Get(ctx, "bus_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Stops) != 3 || got.Stops[0].ID != "s1" || got.Stops[2].ID != "s3" {
		t.Fatalf("stops out of order: %+v", got.Stops)
	}

	// Re-publishing replaces the stop list.
	r.Stops = r.Stops[:2]
	if err := store.Put(ctx, r); err != nil {
		t.Fatalf("second put: %v", err)
	}
	got, _ = store.Get(ctx, "bus_1")
	if len(got.Stops) != 2 {
		t.Errorf("expected 2 stops after replace, got %d", len(got.Stops))
	}

	if _, err := store.Get(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
