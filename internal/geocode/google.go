package geocode

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"

	"github.com/aanand-mishra/attendance-api/internal/geo"
	"github.com/aanand-mishra/attendance-api/internal/platform/obs"
)

// googleClient is the part of *maps.Client Google uses.
type googleClient interface {
	ReverseGeocode(ctx context.Context, r *maps.GeocodingRequest) ([]maps.GeocodingResult, error)
}

// Google reverse-geocodes through the Google Maps Geocoding API.
type Google struct {
	client googleClient
}

// NewGoogle creates a Google reverser authenticated with apiKey.
func NewGoogle(apiKey string) (*Google, error) {
	c, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("geocode.NewGoogle: %w", err)
	}

	return &Google{client: c}, nil
}

// Reverse implements Reverser. The first result's formatted address is the
// most specific one Google returns.
func (g *Google) Reverse(ctx context.Context, c geo.Coordinate) (_ string, err error) {
	defer obs.Time(ctx, "geocode.google.Reverse")(&err)

	resp, err := g.client.ReverseGeocode(ctx, &maps.GeocodingRequest{
		LatLng: &maps.LatLng{Lat: c.Lat, Lng: c.Lng},
	})
	if err != nil {
		return "", fmt.Errorf("google reverse: %w", err)
	}
	if len(resp) == 0 || resp[0].FormattedAddress == "" {
		return "", ErrNoResult
	}

	return resp[0].FormattedAddress, nil
}
