// Package storage defines the contracts any database backend must satisfy
// to work with this application.
//
// Handlers and the admission controller depend only on these interfaces,
// so switching databases means implementing them for the new backend and
// changing one line in main.go. Tests pass a mock instead.
package storage

import (
	"context"
	"errors"

	"github.com/aanand-mishra/attendance-api/internal/types"
)

var (
	// ErrNotFound is returned when no class matches a lookup.
	ErrNotFound = errors.New("class not found")

	// ErrDuplicate is returned by AppendAttendee when the class already
	// lists the normalised matric number. Nothing is written.
	ErrDuplicate = errors.New("attendance already recorded for this matric number")
)

// Storage is the class record contract.
type Storage interface {
	// CreateClass inserts rec and returns it as stored. An empty ID is
	// filled by the caller, not the backend.
	CreateClass(ctx context.Context, rec types.ClassRecord) (types.ClassRecord, error)

	// GetClass finds a class by course_id, then by id, then the newest
	// record with the given course code. Each step runs only if the
	// previous one found nothing. Returns ErrNotFound if all miss.
	GetClass(ctx context.Context, courseID, courseCode string) (types.ClassRecord, error)

	// ListClasses returns every class, or those of one lecturer when
	// lecturerID is non-empty, newest first. Never returns nil.
	ListClasses(ctx context.Context, lecturerID string) ([]types.ClassRecord, error)

	// GetAttendees returns the attendee list of the class with primary key
	// classID.
	GetAttendees(ctx context.Context, classID string) ([]types.AttendeeEntry, error)

	// AppendAttendee atomically appends entry unless the list already holds
	// its matric number, in which case it returns ErrDuplicate. The
	// duplicate check and the write cannot interleave with another append
	// to the same class. Returns the list after the append.
	AppendAttendee(ctx context.Context, classID string, entry types.AttendeeEntry) ([]types.AttendeeEntry, error)

	// Close releases the underlying connection pool.
	Close() error
}

// PlaceCache stores reverse geocoding results keyed by rounded coordinate.
type PlaceCache interface {
	// GetPlace returns the cached display name and whether it was present.
	GetPlace(ctx context.Context, key string) (string, bool, error)
	PutPlace(ctx context.Context, key, name string) error
}
