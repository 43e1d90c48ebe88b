// Package link builds and reads the attendance links handed to students,
// usually through a QR code:
//
//	<base>/attendance?courseId=<id>&time=<HH:MM>&courseCode=<code>&lat=<lat>&lng=<lng>
//
// lat/lng carry the venue so a student's page can evaluate the geofence
// without a second lookup; when they are missing or unparsable the stored
// class location is used instead.
package link

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/aanand-mishra/attendance-api/internal/geo"
)

// Params are the values carried by an attendance link.
type Params struct {
	CourseID   string
	Time       string
	CourseCode string
	Lat        *float64
	Lng        *float64
}

// Venue returns the coordinate carried by the link, if both parts are set.
func (p Params) Venue() (geo.Coordinate, bool) {
	if p.Lat == nil || p.Lng == nil {
		return geo.Coordinate{}, false
	}
	return geo.Coordinate{Lat: *p.Lat, Lng: *p.Lng}, true
}

// WithVenue returns p carrying c.
func (p Params) WithVenue(c geo.Coordinate) Params {
	lat, lng := c.Lat, c.Lng
	p.Lat, p.Lng = &lat, &lng
	return p
}

// Build renders the attendance link for p under baseURL. Parameters are
// written in a fixed order; lat/lng are omitted when unset.
func Build(baseURL string, p Params) string {
	// url.Values.Encode sorts keys; keep the documented order instead.
	parts := []string{
		"courseId=" + url.QueryEscape(p.CourseID),
		"time=" + url.QueryEscape(p.Time),
		"courseCode=" + url.QueryEscape(p.CourseCode),
	}
	if c, ok := p.Venue(); ok {
		parts = append(parts,
			"lat="+strconv.FormatFloat(c.Lat, 'f', -1, 64),
			"lng="+strconv.FormatFloat(c.Lng, 'f', -1, 64),
		)
	}

	return strings.TrimRight(baseURL, "/") + "/attendance?" + strings.Join(parts, "&")
}

// Parse reads Params from a query string. Coordinates that are absent,
// empty, "undefined", "null" or not finite numbers are left nil.
func Parse(q url.Values) Params {
	return Params{
		CourseID:   strings.TrimSpace(q.Get("courseId")),
		Time:       strings.TrimSpace(q.Get("time")),
		CourseCode: strings.TrimSpace(q.Get("courseCode")),
		Lat:        ParseFloat(q.Get("lat")),
		Lng:        ParseFloat(q.Get("lng")),
	}
}

// ParseURL is Parse for a full link.
func ParseURL(raw string) (Params, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Params{}, fmt.Errorf("link.ParseURL: %w", err)
	}
	return Parse(u.Query()), nil
}

// ParseFloat parses a coordinate query value strictly. It returns nil for
// anything that is not a finite number.
func ParseFloat(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
