// Package geocode turns venue coordinates into human-readable place names.
//
// Names are for display only: admission is decided on coordinates, and a
// failed lookup never blocks scheduling or attendance.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aanand-mishra/attendance-api/internal/geo"
)

// UnknownLocation is shown when no name can be found for a coordinate.
const UnknownLocation = "Unknown location"

// ErrNoResult is returned by a Reverser that reached its backend but got
// no place back.
var ErrNoResult = errors.New("geocode: no result")

// Reverser looks up the place name of a coordinate.
type Reverser interface {
	Reverse(ctx context.Context, c geo.Coordinate) (string, error)
}

// DisplayName returns the place name for c, or UnknownLocation when r is
// nil or the lookup fails. Failures are logged at warn level.
func DisplayName(ctx context.Context, r Reverser, c geo.Coordinate) string {
	if r == nil {
		return UnknownLocation
	}

	name, err := r.Reverse(ctx, c)
	if err != nil {
		slog.Warn("reverse geocode failed",
			slog.String("coordinate", c.String()),
			slog.String("error", err.Error()))
		return UnknownLocation
	}
	if name == "" {
		return UnknownLocation
	}
	return name
}

// CoordinateLabel is the venue name used when a lecturer asked for a
// looked-up name and the lookup failed: "Lat 6.5244, Lng 3.3792".
func CoordinateLabel(c geo.Coordinate) string {
	return fmt.Sprintf("Lat %.4f, Lng %.4f", c.Lat, c.Lng)
}
