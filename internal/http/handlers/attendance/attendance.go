// Package attendance contains the HTTP handlers students hit from the
// attendance link: a status check that reports how far they are from the
// venue, and the registration that records them against the class.
//
// Each request runs its own admission.Controller: open the class, apply the
// location the browser reported, then (for registration) submit.
package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/aanand-mishra/attendance-api/internal/admission"
	"github.com/aanand-mishra/attendance-api/internal/config"
	"github.com/aanand-mishra/attendance-api/internal/export"
	"github.com/aanand-mishra/attendance-api/internal/geo"
	"github.com/aanand-mishra/attendance-api/internal/link"
	"github.com/aanand-mishra/attendance-api/internal/location"
	"github.com/aanand-mishra/attendance-api/internal/storage"
	"github.com/aanand-mishra/attendance-api/internal/types"
	"github.com/aanand-mishra/attendance-api/internal/utils/response"
)

var validate = validator.New()

// errThresholdTooLarge is returned when a client asks for a radius above
// geofence.max_threshold_meters.
var errThresholdTooLarge = errors.New("threshold exceeds the allowed maximum")

// ─────────────────────────────────────────────────────────────────────────────
// Status handles GET /api/attendance/status
//
// Query parameters (all optional):
//
//	courseId, courseCode   which class; courseId wins
//	lat, lng               venue from the attendance link
//	userLat, userLng       the browser's GPS fix
//	locationError          permission_denied | unavailable | timeout
//	threshold              admission radius in meters
//	autoSwap               true | false
//
// Success response (200 OK): the session view.
//
//	{ "status": "ok", "state": "location_known", "distance": "42.10 meters",
//	  "distanceMeters": 42.1, "withinRange": true, ... }
//
// Error responses:
//
//	400 Bad Request    malformed threshold or autoSwap
//	404 Not Found      no such class
//	500 Internal       database error
//
// ─────────────────────────────────────────────────────────────────────────────
func Status(store storage.Storage, gf config.Geofence) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		params := link.Parse(q)
		slog.Info("checking attendance status",
			slog.String("course_id", params.CourseID),
			slog.String("course_code", params.CourseCode))

		req := types.AttendanceRequest{
			CourseID:      params.CourseID,
			CourseCode:    params.CourseCode,
			Lat:           params.Lat,
			Lng:           params.Lng,
			UserLat:       link.ParseFloat(q.Get("userLat")),
			UserLng:       link.ParseFloat(q.Get("userLng")),
			LocationError: strings.TrimSpace(q.Get("locationError")),
		}

		if raw := strings.TrimSpace(q.Get("threshold")); raw != "" {
			req.Threshold = link.ParseFloat(raw)
			if req.Threshold == nil {
				response.WriteJSON(w, http.StatusBadRequest,
					response.GeneralError(fmt.Errorf("invalid threshold %q", raw)))
				return
			}
		}
		if raw := strings.TrimSpace(q.Get("autoSwap")); raw != "" {
			v, err := strconv.ParseBool(raw)
			if err != nil {
				response.WriteJSON(w, http.StatusBadRequest,
					response.GeneralError(fmt.Errorf("invalid autoSwap %q", raw)))
				return
			}
			req.AutoSwap = &v
		}

		if !validRequest(w, req) {
			return
		}

		ctrl, err := open(r.Context(), store, gf, req)
		if err != nil {
			writeOpenError(w, err)
			return
		}

		response.WriteJSON(w, http.StatusOK, newView(ctrl, nil))
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Register handles POST /api/attendance
// Records a student against a class when their reported position is
// within the admission radius of the venue.
//
// Request body (JSON):
//
//	{ "courseId": "…", "lat": 6.5244, "lng": 3.3792,
//	  "userLat": 6.5245, "userLng": 3.3791, "matricNo": "CSC/2019/001",
//	  "name": "Ada Obi" }
//
// Success response (201 Created): the session view with the stored entry.
//
// Error responses (body is the session view with status "error"):
//
//	400 Bad Request            empty body, malformed JSON, no class named,
//	                           or matric number missing
//	403 Forbidden              out of range
//	404 Not Found              no such class
//	409 Conflict               matric number already registered
//	422 Unprocessable Entity   location or venue unknown
//	500 Internal               database error
//
// When report export is configured, the class report is refreshed after a
// successful registration.
// ─────────────────────────────────────────────────────────────────────────────
func Register(store storage.Storage, gf config.Geofence, publisher export.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slog.Info("registering attendance")

		var req types.AttendanceRequest
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

		if !validRequest(w, req) {
			return
		}
		if strings.TrimSpace(req.CourseID) == "" && strings.TrimSpace(req.CourseCode) == "" {
			response.WriteJSON(w, http.StatusBadRequest,
				response.GeneralError(errors.New("courseId or courseCode is required")))
			return
		}
		if types.NormalizeMatric(req.MatricNo) == "" {
			response.WriteJSON(w, http.StatusBadRequest,
				response.GeneralError(admission.ErrMissingIdentifier))
			return
		}

		ctrl, err := open(r.Context(), store, gf, req)
		if err != nil {
			writeOpenError(w, err)
			return
		}

		state, err := ctrl.Submit(r.Context(), req.MatricNo, req.Name)
		if err != nil {
			status := submitStatus(err)
			if status >= http.StatusInternalServerError {
				slog.Error("error registering attendance", slog.String("error", err.Error()))
			}
			response.WriteJSON(w, status, newView(ctrl, err))
			return
		}

		if publisher != nil {
			if rec, ok := ctrl.Class(); ok {
				publishReport(r.Context(), store, publisher, rec)
			}
		}

		slog.Info("attendance registered",
			slog.String("matric_no", state.Attendee.MatricNo),
			slog.String("distance", state.DistanceLabel()))
		response.WriteJSON(w, http.StatusCreated, newView(ctrl, nil))
	}
}

// open builds a session for req and runs it up to the point a submission
// could be made.
func open(ctx context.Context, store storage.Storage, gf config.Geofence, req types.AttendanceRequest) (*admission.Controller, error) {
	autoSwap := gf.AutoSwapEnabled()
	if req.AutoSwap != nil {
		autoSwap = *req.AutoSwap
	}

	var user *geo.Coordinate
	if req.UserLat != nil && req.UserLng != nil {
		user = &geo.Coordinate{Lat: *req.UserLat, Lng: *req.UserLng}
	}

	ctrl := admission.NewController(store, location.Reported{Coordinate: user, Reason: req.LocationError}, admission.Options{
		Threshold:     gf.DefaultThresholdMeters,
		AutoSwap:      autoSwap,
		SwapCutoff:    gf.SwapCutoffMeters,
		LocateTimeout: gf.LocationTimeout,
	})

	if req.Threshold != nil {
		if gf.MaxThresholdMeters > 0 && *req.Threshold > gf.MaxThresholdMeters {
			return nil, fmt.Errorf("%w (%g meters)", errThresholdTooLarge, gf.MaxThresholdMeters)
		}
		if _, err := ctrl.SetThreshold(*req.Threshold); err != nil {
			return nil, err
		}
	}

	err := ctrl.Open(ctx, admission.Target{
		CourseID:   strings.TrimSpace(req.CourseID),
		CourseCode: strings.TrimSpace(req.CourseCode),
		Lat:        req.Lat,
		Lng:        req.Lng,
	})
	if err != nil {
		return nil, err
	}

	ctrl.Locate(ctx)
	return ctrl, nil
}

func validRequest(w http.ResponseWriter, req types.AttendanceRequest) bool {
	err := validate.Struct(req)
	if err == nil {
		return true
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		response.WriteJSON(w, http.StatusBadRequest, response.ValidationError(verrs))
		return false
	}
	response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
	return false
}

func writeOpenError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		response.WriteJSON(w, http.StatusNotFound, response.GeneralError(storage.ErrNotFound))
	case errors.Is(err, errThresholdTooLarge), errors.Is(err, admission.ErrInvalidThreshold):
		response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
	default:
		slog.Error("error opening attendance session", slog.String("error", err.Error()))
		response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
	}
}

func submitStatus(err error) int {
	switch {
	case errors.Is(err, admission.ErrMissingIdentifier), errors.Is(err, admission.ErrNoClass):
		return http.StatusBadRequest
	case errors.Is(err, admission.ErrOutOfRange):
		return http.StatusForbidden
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrDuplicate),
		errors.Is(err, admission.ErrSessionClosed),
		errors.Is(err, admission.ErrSubmitInProgress):
		return http.StatusConflict
	case errors.Is(err, admission.ErrIndeterminateLocation):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func publishReport(ctx context.Context, store storage.Storage, publisher export.Publisher, rec types.ClassRecord) {
	attendees, err := store.GetAttendees(ctx, rec.ID)
	if err != nil {
		slog.Error("error loading attendees for report",
			slog.String("class_id", rec.ID),
			slog.String("error", err.Error()))
		return
	}
	publisher.Publish(ctx, rec, attendees)
}
