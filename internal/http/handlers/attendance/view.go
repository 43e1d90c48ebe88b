package attendance

import (
	"errors"

	"github.com/aanand-mishra/attendance-api/internal/admission"
	"github.com/aanand-mishra/attendance-api/internal/geo"
	"github.com/aanand-mishra/attendance-api/internal/location"
	"github.com/aanand-mishra/attendance-api/internal/storage"
	"github.com/aanand-mishra/attendance-api/internal/types"
	"github.com/aanand-mishra/attendance-api/internal/utils/response"
)

// view is the JSON rendering of a session.
//
// DistanceMeters is null when the distance is indeterminate; NaN has no
// JSON encoding.
type view struct {
	Status          string               `json:"status"`
	Error           string               `json:"error,omitempty"`
	Message         string               `json:"message,omitempty"`
	State           string               `json:"state"`
	Distance        string               `json:"distance"`
	DistanceMeters  *float64             `json:"distanceMeters"`
	WithinRange     bool                 `json:"withinRange"`
	ThresholdMeters float64              `json:"thresholdMeters"`
	Swapped         bool                 `json:"swapped"`
	Venue           *geo.Coordinate      `json:"venue,omitempty"`
	CorrectedVenue  *geo.Coordinate      `json:"correctedVenue,omitempty"`
	UserLocation    *geo.Coordinate      `json:"userLocation,omitempty"`
	FailureReason   string               `json:"failureReason,omitempty"`
	Class           *classView           `json:"class,omitempty"`
	Attendee        *types.AttendeeEntry `json:"attendee,omitempty"`
}

type classView struct {
	ID           string `json:"id"`
	CourseTitle  string `json:"course_title"`
	CourseCode   string `json:"course_code"`
	Date         string `json:"date"`
	Time         string `json:"time"`
	LocationName string `json:"location_name"`
}

func newView(ctrl *admission.Controller, err error) view {
	s := ctrl.State()

	v := view{
		Status:          response.StatusOK,
		State:           s.Phase.String(),
		Distance:        s.DistanceLabel(),
		WithinRange:     s.WithinRange(),
		ThresholdMeters: s.Threshold,
		Venue:           s.Target,
		UserLocation:    s.User,
		FailureReason:   s.FailureReason,
		Attendee:        s.Attendee,
		Message:         message(s, err),
	}
	if s.Determinate() {
		d := s.Result.DistanceMeters
		v.DistanceMeters = &d
		v.Swapped = s.Result.Swapped
		if s.Result.Swapped {
			c := s.Result.CorrectedTarget
			v.CorrectedVenue = &c
		}
	}
	if err != nil {
		v.Status = response.StatusError
		v.Error = err.Error()
	}

	if rec, ok := ctrl.Class(); ok {
		v.Class = &classView{
			ID:           rec.ID,
			CourseTitle:  rec.CourseTitle,
			CourseCode:   rec.CourseCode,
			Date:         rec.Date,
			Time:         rec.Time,
			LocationName: rec.LocationName,
		}
	}

	return v
}

// message is the sentence a student sees for the session outcome.
func message(s admission.State, err error) string {
	switch {
	case s.Phase == admission.Success:
		return "Attendance marked successfully."
	case errors.Is(err, storage.ErrDuplicate):
		return "This matriculation number has already been registered."
	case s.Determinate() && !s.WithinRange():
		return "You are not within range of the class venue."
	case s.FailureReason != "":
		return location.Message(location.FailureFor(s.FailureReason))
	case s.User != nil && s.Target == nil:
		return "The class venue could not be determined."
	case s.User == nil:
		return location.Message(location.ErrUnavailable)
	}
	return ""
}
