// Package class contains the HTTP handlers lecturers use to schedule
// classes and read them back: records, attendance links as QR codes, and
// attendee lists as JSON or CSV.
//
// Handlers follow the factory pattern: each exported function receives its
// dependencies once at startup and returns the http.HandlerFunc the router
// calls on every request.
//
//	router.HandleFunc("POST /api/classes", class.New(storage, reverser, baseURL))
package class

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"

	"github.com/aanand-mishra/attendance-api/internal/export"
	"github.com/aanand-mishra/attendance-api/internal/geo"
	"github.com/aanand-mishra/attendance-api/internal/geocode"
	"github.com/aanand-mishra/attendance-api/internal/link"
	"github.com/aanand-mishra/attendance-api/internal/storage"
	"github.com/aanand-mishra/attendance-api/internal/types"
	"github.com/aanand-mishra/attendance-api/internal/utils/response"
)

var validate = validator.New()

// created is the body returned by New.
type created struct {
	types.ClassRecord
	AttendanceURL string         `json:"attendance_url"`
	Venue         geo.Coordinate `json:"venue"`
	Swapped       bool           `json:"swapped"`
}

// ─────────────────────────────────────────────────────────────────────────────
// New handles POST /api/classes
// Schedules a class and hands back its attendance link.
//
// Request body (JSON):
//
//	{ "courseTitle": "Distributed Systems", "courseCode": "CSC401",
//	  "date": "2024-03-01", "time": "09:00", "lecturerId": "lect-1",
//	  "lat": 6.5244, "lng": 3.3792, "useReverseGeocode": true }
//
// Success response (201 Created): the stored record plus attendance_url.
//
// Error responses:
//
//	400 Bad Request    empty body, malformed JSON, failed validation,
//	                   or coordinates outside the valid ranges
//	500 Internal       database error
//
// Coordinates typed the wrong way round (latitude out of range, longitude
// a legal latitude) are swapped before storing.
// ─────────────────────────────────────────────────────────────────────────────
func New(store storage.Storage, reverser geocode.Reverser, baseURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slog.Info("scheduling a class")

		var req types.CreateClassRequest
		err := json.NewDecoder(r.Body).Decode(&req)
		if errors.Is(err, io.EOF) {
			response.WriteJSON(w, http.StatusBadRequest,
				response.GeneralError(errors.New("request body is empty")))
			return
		}
		if err != nil {
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
			return
		}

		if err := validate.Struct(req); err != nil {
			var verrs validator.ValidationErrors
			if errors.As(err, &verrs) {
				response.WriteJSON(w, http.StatusBadRequest, response.ValidationError(verrs))
				return
			}
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
			return
		}

		venue, swapped := geo.SanitizeOrder(geo.Coordinate{Lat: *req.Lat, Lng: *req.Lng})
		if !venue.IsValid() {
			response.WriteJSON(w, http.StatusBadRequest,
				response.GeneralError(fmt.Errorf("invalid venue coordinates: %s", venue)))
			return
		}
		if swapped {
			slog.Warn("venue latitude and longitude were swapped before storing",
				slog.String("course_code", req.CourseCode),
				slog.String("venue", venue.String()))
		}

		id := uuid.NewString()
		rec := types.ClassRecord{
			ID:           id,
			CourseID:     id,
			CourseTitle:  strings.TrimSpace(req.CourseTitle),
			CourseCode:   strings.TrimSpace(req.CourseCode),
			Date:         req.Date,
			Time:         req.Time,
			Location:     geo.FormatPoint(venue),
			LocationName: venueName(r, reverser, req, venue),
			Note:         req.Note,
			LecturerID:   req.LecturerID,
			CreatedAt:    time.Now(),
		}
		rec.QRCode = link.Build(baseURL, link.Params{
			CourseID:   rec.CourseID,
			Time:       rec.Time,
			CourseCode: rec.CourseCode,
		}.WithVenue(venue))

		rec, err = store.CreateClass(r.Context(), rec)
		if err != nil {
			slog.Error("error scheduling class", slog.String("error", err.Error()))
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}

		slog.Info("class scheduled",
			slog.String("id", rec.ID),
			slog.String("course_code", rec.CourseCode))

		response.WriteJSON(w, http.StatusCreated, created{
			ClassRecord:   rec,
			AttendanceURL: rec.QRCode,
			Venue:         venue,
			Swapped:       swapped,
		})
	}
}

// venueName picks the display name stored with the class: the looked-up
// place when asked for, else the typed name, else a coordinate label.
func venueName(r *http.Request, reverser geocode.Reverser, req types.CreateClassRequest, venue geo.Coordinate) string {
	typed := strings.TrimSpace(req.LocationName)

	if req.UseReverseGeocode && reverser != nil {
		name, err := reverser.Reverse(r.Context(), venue)
		if err == nil && name != "" {
			return name
		}
		if err != nil {
			slog.Warn("reverse geocode failed while scheduling",
				slog.String("venue", venue.String()),
				slog.String("error", err.Error()))
		}
	}

	if typed != "" {
		return typed
	}
	return geocode.CoordinateLabel(venue)
}

// ─────────────────────────────────────────────────────────────────────────────
// GetByID handles GET /api/classes/{id}
// {id} may be a class id or a course id.
//
//	404 Not Found      no such class
//	500 Internal       database error
//
// ─────────────────────────────────────────────────────────────────────────────
func GetByID(store storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, ok := load(w, r, store)
		if !ok {
			return
		}
		response.WriteJSON(w, http.StatusOK, rec)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// GetList handles GET /api/classes?lecturerId=
// Newest first. Without lecturerId every class is listed. Returns [] (not
// null) when nothing matches.
// ─────────────────────────────────────────────────────────────────────────────
func GetList(store storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lecturerID := strings.TrimSpace(r.URL.Query().Get("lecturerId"))
		slog.Info("listing classes", slog.String("lecturer_id", lecturerID))

		classes, err := store.ListClasses(r.Context(), lecturerID)
		if err != nil {
			slog.Error("error listing classes", slog.String("error", err.Error()))
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}
		if classes == nil {
			classes = []types.ClassRecord{}
		}

		response.WriteJSON(w, http.StatusOK, classes)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// QRCode handles GET /api/classes/{id}/qr.png
// Renders the class attendance link as a PNG QR code of the given edge
// size in pixels.
// ─────────────────────────────────────────────────────────────────────────────
func QRCode(store storage.Storage, size int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, ok := load(w, r, store)
		if !ok {
			return
		}
		if rec.QRCode == "" {
			response.WriteJSON(w, http.StatusNotFound,
				response.GeneralError(errors.New("class has no attendance link")))
			return
		}

		png, err := qrcode.Encode(rec.QRCode, qrcode.Medium, size)
		if err != nil {
			slog.Error("error rendering qr code",
				slog.String("id", rec.ID),
				slog.String("error", err.Error()))
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(png)
	}
}

// Attendees handles GET /api/classes/{id}/attendees
func Attendees(store storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, ok := load(w, r, store)
		if !ok {
			return
		}

		attendees, err := store.GetAttendees(r.Context(), rec.ID)
		if err != nil {
			slog.Error("error getting attendees",
				slog.String("id", rec.ID),
				slog.String("error", err.Error()))
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}
		if attendees == nil {
			attendees = []types.AttendeeEntry{}
		}

		response.WriteJSON(w, http.StatusOK, attendees)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// AttendeesCSV handles GET /api/classes/{id}/attendees.csv
// Streams the attendee list as a CSV download named
// attendance_<course-code>_<date>.csv.
// ─────────────────────────────────────────────────────────────────────────────
func AttendeesCSV(store storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, ok := load(w, r, store)
		if !ok {
			return
		}

		attendees, err := store.GetAttendees(r.Context(), rec.ID)
		if err != nil {
			slog.Error("error getting attendees",
				slog.String("id", rec.ID),
				slog.String("error", err.Error()))
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}

		var buf bytes.Buffer
		if err := export.WriteCSV(&buf, attendees); err != nil {
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}

		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%q", export.FileName(rec)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())
	}
}

// load resolves the {id} path value to a class, writing the error response
// itself when it can't.
func load(w http.ResponseWriter, r *http.Request, store storage.Storage) (types.ClassRecord, bool) {
	id := strings.TrimSpace(r.PathValue("id"))
	slog.Info("getting a class", slog.String("id", id))

	rec, err := store.GetClass(r.Context(), id, "")
	switch {
	case errors.Is(err, storage.ErrNotFound):
		response.WriteJSON(w, http.StatusNotFound, response.GeneralError(err))
		return types.ClassRecord{}, false
	case err != nil:
		slog.Error("error getting class",
			slog.String("id", id),
			slog.String("error", err.Error()))
		response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
		return types.ClassRecord{}, false
	}
	return rec, true
}
