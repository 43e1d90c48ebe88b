// Package types holds all shared data structures (models) used across
// the application. Keeping them in one place prevents import cycles:
// handlers, storage, admission and export can all import types without
// depending on each other.
package types

import (
	"strings"
	"time"
)

// TimestampLayout is the ISO-8601 layout attendee timestamps are written
// in (millisecond precision, UTC, "Z" suffix).
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// ClassRecord is one scheduled class and its attendance list.
//
// Location holds the raw venue encoding exactly as stored; it is turned
// into a coordinate by geo.ParseStoredLocation. Classes written by this
// service store EWKT text: SRID=4326;POINT(lng lat).
type ClassRecord struct {
	ID           string          `json:"id"`
	CourseID     string          `json:"course_id"`
	CourseTitle  string          `json:"course_title"`
	CourseCode   string          `json:"course_code"`
	Date         string          `json:"date"`
	Time         string          `json:"time"`
	Location     string          `json:"location"`
	LocationName string          `json:"location_name"`
	Note         string          `json:"note"`
	LecturerID   string          `json:"lecturer_id"`
	QRCode       string          `json:"qr_code"`
	Attendees    []AttendeeEntry `json:"attendees"`
	CreatedAt    time.Time       `json:"created_at"`
}

// AttendeeEntry is one admitted student.
type AttendeeEntry struct {
	MatricNo  string `json:"matric_no"`
	Name      string `json:"name"`
	Timestamp string `json:"timestamp"`
}

// NormalizeMatric is the identity used for duplicate detection: trimmed
// and upper-cased.
func NormalizeMatric(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// NewAttendeeEntry builds the entry appended on a successful admission.
// The name is stored upper-cased; an empty name is allowed.
func NewAttendeeEntry(matricNo, name string, at time.Time) AttendeeEntry {
	return AttendeeEntry{
		MatricNo:  NormalizeMatric(matricNo),
		Name:      strings.ToUpper(strings.TrimSpace(name)),
		Timestamp: at.UTC().Format(TimestampLayout),
	}
}

// ContainsMatric reports whether entries already hold matricNo, compared
// by normalised form on both sides.
func ContainsMatric(entries []AttendeeEntry, matricNo string) bool {
	want := NormalizeMatric(matricNo)
	for _, e := range entries {
		if NormalizeMatric(e.MatricNo) == want {
			return true
		}
	}
	return false
}

// CreateClassRequest is the body of POST /api/classes.
//
// Struct tags serve two purposes:
//
//  1. json:"..."     controls the wire name of each field.
//  2. validate:"..." rules checked by go-playground/validator.
//
// Lat/Lng are pointers so "missing" and "0" can be told apart; the
// latitude/longitude range checks are applied after the order sanity swap,
// not by the validator.
type CreateClassRequest struct {
	CourseTitle       string   `json:"courseTitle"       validate:"required,max=200"`
	CourseCode        string   `json:"courseCode"        validate:"required,max=32"`
	Date              string   `json:"date"              validate:"required,datetime=2006-01-02"`
	Time              string   `json:"time"              validate:"required,datetime=15:04"`
	LocationName      string   `json:"locationName"      validate:"max=300"`
	Note              string   `json:"note"              validate:"max=1000"`
	LecturerID        string   `json:"lecturerId"        validate:"required"`
	Lat               *float64 `json:"lat"               validate:"required"`
	Lng               *float64 `json:"lng"               validate:"required"`
	UseReverseGeocode bool     `json:"useReverseGeocode"`
}

// AttendanceRequest is the body of POST /api/attendance. Venue and user
// coordinates are optional: the venue falls back to the stored class
// location and a missing user fix is reported through LocationError.
type AttendanceRequest struct {
	CourseID      string   `json:"courseId"`
	CourseCode    string   `json:"courseCode"`
	Lat           *float64 `json:"lat"`
	Lng           *float64 `json:"lng"`
	UserLat       *float64 `json:"userLat"`
	UserLng       *float64 `json:"userLng"`
	LocationError string   `json:"locationError" validate:"omitempty,oneof=permission_denied unavailable timeout"`
	Threshold     *float64 `json:"threshold"     validate:"omitempty,gt=0"`
	AutoSwap      *bool    `json:"autoSwap"`
	MatricNo      string   `json:"matricNo"`
	Name          string   `json:"name"          validate:"max=200"`
}
