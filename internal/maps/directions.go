package maps

import (
	"context"
	"fmt"
	"time"

	"googlemaps.github.io/maps"

	"trackmybus/internal/types"
)

// DirectionsService handles interactions with the Google Maps Directions API.
type DirectionsService struct {
	client *maps.Client
	region string
}

// NewDirectionsService creates a new DirectionsService with the given API Key.
// region biases results (ccTLD such as "in"); empty means no bias.
func NewDirectionsService(apiKey, region string) (*DirectionsService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &DirectionsService{client: client, region: region}, nil
}

// TravelEstimate returns the driving duration and a human readable distance
// between two points.
func (s *DirectionsService) TravelEstimate(ctx context.Context, origin, destination types.GeoPoint) (time.Duration, string, error) {
	r := &maps.DirectionsRequest{
		Origin:      origin.String(),
		Destination: destination.String(),
		Mode:        maps.TravelModeDriving,
		Region:      s.region,
	}

	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return 0, "", fmt.Errorf("maps api error: %w", err)
	}

	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return 0, "", fmt.Errorf("no route found")
	}

	leg := routes[0].Legs[0]
	return leg.Duration, leg.Distance.HumanReadable, nil
}
