// Package venue exposes the reverse geocoder the scheduling page uses to
// label a venue picked on the map.
package venue

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/aanand-mishra/attendance-api/internal/geo"
	"github.com/aanand-mishra/attendance-api/internal/geocode"
	"github.com/aanand-mishra/attendance-api/internal/link"
	"github.com/aanand-mishra/attendance-api/internal/utils/response"
)

type place struct {
	Name  string         `json:"name"`
	Label string         `json:"label"`
	Venue geo.Coordinate `json:"venue"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Reverse handles GET /api/geocode/reverse?lat=&lng=
//
// Success response (200 OK):
//
//	{ "name": "University of Lagos, Akoka", "label": "Lat 6.5244, Lng 3.3792",
//	  "venue": { "lat": 6.5244, "lng": 3.3792 } }
//
// A failed lookup is not an error: name is "Unknown location".
//
//	400 Bad Request    lat/lng missing or out of range
//
// ─────────────────────────────────────────────────────────────────────────────
func Reverse(reverser geocode.Reverser) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		lat, lng := link.ParseFloat(q.Get("lat")), link.ParseFloat(q.Get("lng"))
		if lat == nil || lng == nil {
			response.WriteJSON(w, http.StatusBadRequest,
				response.GeneralError(errors.New("lat and lng are required")))
			return
		}

		c := geo.Coordinate{Lat: *lat, Lng: *lng}
		if !c.IsValid() {
			response.WriteJSON(w, http.StatusBadRequest,
				response.GeneralError(errors.New("lat must be within [-90, 90] and lng within [-180, 180]")))
			return
		}

		slog.Info("reverse geocoding venue", slog.String("venue", c.String()))

		response.WriteJSON(w, http.StatusOK, place{
			Name:  geocode.DisplayName(r.Context(), reverser, c),
			Label: geocode.CoordinateLabel(c),
			Venue: c,
		})
	}
}
