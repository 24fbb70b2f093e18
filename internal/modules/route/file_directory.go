package route

import (
	"context"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"trackmybus/internal/types"
)

type fileStop struct {
	ID   string  `yaml:"id" validate:"required"`
	Name string  `yaml:"name"`
	Lat  float64 `yaml:"lat" validate:"gte=-90,lte=90"`
	Lng  float64 `yaml:"lng" validate:"gte=-180,lte=180"`
}

type fileRoute struct {
	ID    string     `yaml:"id" validate:"required"`
	Name  string     `yaml:"name"`
	Stops []fileStop `yaml:"stops" validate:"dive"`
}

type routeFile struct {
	Routes []fileRoute `yaml:"routes" validate:"dive"`
}

// FileDirectory serves routes loaded from a YAML seed file.
type FileDirectory struct {
	routes map[types.ID]Route
	order  []types.ID
}

// LoadFile parses and validates a YAML route file.
func LoadFile(path string) (*FileDirectory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*FileDirectory, error) {
	var f routeFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRoute, err)
	}
	if err := validator.New().Struct(f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRoute, err)
	}

	d := &FileDirectory{routes: make(map[types.ID]Route, len(f.Routes))}
	for _, fr := range f.Routes {
		r := Route{ID: types.ID(fr.ID), Name: fr.Name, Stops: make([]Stop, 0, len(fr.Stops))}
		for _, fs := range fr.Stops {
			r.Stops = append(r.Stops, Stop{
				ID:       fs.ID,
				Name:     fs.Name,
				Position: types.GeoPoint{Lat: fs.Lat, Lng: fs.Lng},
			})
		}
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if _, dup := d.routes[r.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate route id %q", ErrInvalidRoute, r.ID)
		}
		d.routes[r.ID] = r
		d.order = append(d.order, r.ID)
	}
	return d, nil
}

func (d *FileDirectory) Get(_ context.Context, id types.ID) (Route, error) {
	r, ok := d.routes[id]
	if !ok {
		return Route{}, ErrNotFound
	}
	return r, nil
}

// Routes returns every route in file order.
func (d *FileDirectory) Routes() []Route {
	out := make([]Route, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.routes[id])
	}
	return out
}
