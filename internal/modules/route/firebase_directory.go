package route

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/db"

	"trackmybus/internal/types"
)

// rtdbStop mirrors one stop under /routes/{id}/stops in Firebase RTDB.
type rtdbStop struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}

type rtdbRoute struct {
	Name  string     `json:"name"`
	Stops []rtdbStop `json:"stops"`
}

// FirebaseDirectory reads routes written by the admin console to the
// /routes node.
type FirebaseDirectory struct {
	client *db.Client
	root   string
}

func NewFirebaseDirectory(client *db.Client) *FirebaseDirectory {
	return &FirebaseDirectory{client: client, root: "routes"}
}

func (d *FirebaseDirectory) Get(ctx context.Context, id types.ID) (Route, error) {
	var rec *rtdbRoute
	if err := d.client.NewRef(d.root).Child(string(id)).Get(ctx, &rec); err != nil {
		return Route{}, fmt.Errorf("querying route %s: %w", id, err)
	}
	if rec == nil {
		return Route{}, ErrNotFound
	}
	return rec.toRoute(id), nil
}

func (rec *rtdbRoute) toRoute(id types.ID) Route {
	r := Route{ID: id, Name: rec.Name, Stops: make([]Stop, 0, len(rec.Stops))}
	for _, s := range rec.Stops {
		r.Stops = append(r.Stops, Stop{
			ID:       s.ID,
			Name:     s.Name,
			Position: types.GeoPoint{Lat: s.Lat, Lng: s.Lng},
		})
	}
	return r
}
