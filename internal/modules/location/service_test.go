package location

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"trackmybus/internal/testutil"
	"trackmybus/internal/types"
)

func TestRecord_IndexesLastPosition(t *testing.T) {
	redisAddr := os.Getenv("TMB_REDIS_ADDR")
	if redisAddr == "" {
		t.Skip("TMB_REDIS_ADDR not set; skipping integration test")
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer rdb.Close()

	svc := NewService(NewStore(nil, rdb)) // path log not exercised here
	ctx := context.Background()

	id := types.ID(fmt.Sprintf("bus_test_%d", time.Now().UnixNano()))
	defer rdb.ZRem(ctx, geoKey, string(id))

	p := types.TimedPoint{GeoPoint: types.GeoPoint{Lat: 10.1583, Lng: 76.1784}, Timestamp: time.Now().UnixMilli()}
	if err := svc.Record(ctx, id, p); err != nil {
		t.Fatalf("record: %v", err)
	}

	near, err := svc.NearbyVehicles(ctx, p.GeoPoint, 1)
	if err != nil {
		t.Fatalf("nearby: %v", err)
	}
	found := false
	for _, v := range near {
		if v.VehicleID != id {
			continue
		}
		found = true
		// GEO positions are stored as 52-bit geohashes.
		if DistanceKm(v.Position, p.GeoPoint) > 0.001 {
			t.Errorf("indexed position = %v, want ~%v", v.Position, p.GeoPoint)
		}
	}
	if !found {
		t.Errorf("vehicle %s not found nearby: %v", id, near)
	}
}

func TestRecord_PathLogReplay(t *testing.T) {
	db := testutil.Postgres(t, "vehicle_path_points")
	svc := NewService(NewStore(db, nil))
	ctx := context.Background()

	for i, ts := range []int64{1000, 3000, 2000} {
		p := types.TimedPoint{GeoPoint: types.GeoPoint{Lat: float64(i), Lng: 1}, Timestamp: ts}
		if err := svc.Record(ctx, "bus_1", p); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}

	got, err := svc.Replay(ctx, "bus_1", 2)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(got) != 2 || got[0].Timestamp != 2000 || got[1].Timestamp != 3000 {
		t.Errorf("replay = %+v, want the two most recent points in order", got)
	}
}

func TestRecord_RejectsInvalidPoint(t *testing.T) {
	svc := NewService(NewStore(nil, nil))
	bad := types.TimedPoint{GeoPoint: types.GeoPoint{Lat: 91, Lng: 0}}
	if err := svc.Record(context.Background(), "bus_1", bad); err == nil {
		t.Fatal("expected error for out-of-range latitude")
	}
}

func TestRecord_NoBackendsIsNoop(t *testing.T) {
	svc := NewService(NewStore(nil, nil))
	p := types.TimedPoint{GeoPoint: types.GeoPoint{Lat: 1, Lng: 1}, Timestamp: 1}
	if err := svc.Record(context.Background(), "bus_1", p); err != nil {
		t.Fatalf("record: %v", err)
	}
}
