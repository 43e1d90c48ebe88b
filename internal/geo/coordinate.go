// Package geo holds the geographic bookkeeping behind attendance gating:
// coordinates, great-circle distance, the geofence decision and the
// parsing of venue locations stored on class records.
package geo

import (
	"fmt"
	"math"
	"strconv"
)

// Coordinate is a WGS 84 position in decimal degrees.
//
// A Coordinate is a plain value: copy it freely, compare it with ==.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// IsFinite reports whether both components are real numbers (no NaN/Inf).
func (c Coordinate) IsFinite() bool {
	return isFinite(c.Lat) && isFinite(c.Lng)
}

// IsValid reports whether the coordinate is finite and inside the
// latitude [-90, 90] and longitude [-180, 180] ranges.
func (c Coordinate) IsValid() bool {
	return c.IsFinite() &&
		c.Lat >= -90 && c.Lat <= 90 &&
		c.Lng >= -180 && c.Lng <= 180
}

// Swapped returns the coordinate with latitude and longitude exchanged.
func (c Coordinate) Swapped() Coordinate {
	return Coordinate{Lat: c.Lng, Lng: c.Lat}
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%s, %s", formatDegrees(c.Lat), formatDegrees(c.Lng))
}

// SanitizeOrder fixes the most common data-entry mistake before a venue is
// stored: a latitude outside [-90, 90] next to a longitude that is a legal
// longitude means the two were typed the wrong way round.
func SanitizeOrder(c Coordinate) (Coordinate, bool) {
	latOK := isFinite(c.Lat) && c.Lat >= -90 && c.Lat <= 90
	lngOK := isFinite(c.Lng) && c.Lng >= -180 && c.Lng <= 180
	if !latOK && lngOK {
		return c.Swapped(), true
	}
	return c, false
}

// FormatPoint renders c as EWKT, the encoding the class store keeps:
// SRID=4326;POINT(lng lat). Note the longitude comes first.
func FormatPoint(c Coordinate) string {
	return fmt.Sprintf("SRID=4326;POINT(%s %s)", formatDegrees(c.Lng), formatDegrees(c.Lat))
}

func formatDegrees(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
