// Package admission decides whether a student may be recorded as present.
//
// A session is an immutable State advanced by the pure function Reduce:
//
//	AwaitingLocation ──► LocationKnown ──► Submitting ──► Success
//	        ▲                  │  ▲              ├──────► DuplicateRejected
//	        └── location lost ─┘  │              ├──────► OutOfRange ─┐
//	                              │              └──────► WriteError ─┤
//	                              └───── new location / target / threshold
//
// Success and DuplicateRejected are terminal. OutOfRange and WriteError are
// re-enterable: any change that re-evaluates the geofence moves the session
// back to LocationKnown. Controller wires Reduce to a location provider and
// a class store.
package admission

import (
	"fmt"
	"math"

	"github.com/aanand-mishra/attendance-api/internal/geo"
	"github.com/aanand-mishra/attendance-api/internal/types"
)

type Phase int

const (
	AwaitingLocation Phase = iota
	LocationKnown
	Submitting
	Success
	DuplicateRejected
	OutOfRange
	WriteError
)

var phaseNames = [...]string{
	AwaitingLocation:  "awaiting_location",
	LocationKnown:     "location_known",
	Submitting:        "submitting",
	Success:           "success",
	DuplicateRejected: "duplicate_rejected",
	OutOfRange:        "out_of_range",
	WriteError:        "write_error",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

// Terminal reports whether no further event can change a session in p.
func (p Phase) Terminal() bool {
	return p == Success || p == DuplicateRejected
}

// State is one snapshot of an attendance session. It is a value: Reduce
// returns a new State and never mutates its input.
type State struct {
	Phase Phase

	Evaluator geo.Evaluator
	Threshold float64
	AutoSwap  bool

	// User is nil until a fix has been acquired, and again after a
	// location failure.
	User *geo.Coordinate

	// Target is nil while the venue is unknown.
	Target *geo.Coordinate

	// Result is meaningful only when Evaluated is set, which requires both
	// User and Target.
	Result    geo.Result
	Evaluated bool

	// FailureReason is the last location failure (location.Reason*).
	FailureReason string

	// Err is the message of the last failed write.
	Err string

	// Attendee is the entry recorded on Success.
	Attendee *types.AttendeeEntry
}

// NewState starts a session awaiting the user's location.
func NewState(threshold float64, autoSwap bool, e geo.Evaluator) State {
	return State{
		Phase:     AwaitingLocation,
		Evaluator: e,
		Threshold: threshold,
		AutoSwap:  autoSwap,
	}
}

// WithinRange reports whether the current evaluation admits the user.
func (s State) WithinRange() bool {
	return s.Evaluated && !s.Result.Indeterminate && s.Result.WithinRange
}

// Determinate reports whether a distance is known.
func (s State) Determinate() bool {
	return s.Evaluated && !s.Result.Indeterminate
}

// DistanceLabel renders the distance for display: "123.45 meters", or
// "unknown" when there is nothing to measure.
func (s State) DistanceLabel() string {
	if !s.Determinate() {
		return "unknown"
	}
	return fmt.Sprintf("%.2f meters", s.Result.DistanceMeters)
}

// CanSubmit reports whether a submission would be attempted right now.
func (s State) CanSubmit() bool {
	switch s.Phase {
	case LocationKnown, OutOfRange, WriteError:
		return s.WithinRange()
	default:
		return false
	}
}

// Event is something that happened to a session.
type Event interface {
	isEvent()
}

type (
	LocationAcquired  struct{ Coordinate geo.Coordinate }
	LocationFailed    struct{ Reason string }
	TargetResolved    struct{ Coordinate geo.Coordinate }
	TargetUnavailable struct{}
	ThresholdChanged  struct{ Meters float64 }
	SubmitRequested   struct{}
	SubmitSucceeded   struct{ Entry types.AttendeeEntry }
	SubmitDuplicate   struct{}
	SubmitOutOfRange  struct{}
	SubmitFailed      struct{ Err string }
)

func (LocationAcquired) isEvent()  {}
func (LocationFailed) isEvent()    {}
func (TargetResolved) isEvent()    {}
func (TargetUnavailable) isEvent() {}
func (ThresholdChanged) isEvent()  {}
func (SubmitRequested) isEvent()   {}
func (SubmitSucceeded) isEvent()   {}
func (SubmitDuplicate) isEvent()   {}
func (SubmitOutOfRange) isEvent()  {}
func (SubmitFailed) isEvent()      {}

// Reduce applies ev to s. Events that make no sense in the current phase
// return s unchanged.
func Reduce(s State, ev Event) State {
	if s.Phase.Terminal() {
		return s
	}

	switch e := ev.(type) {
	case LocationAcquired:
		c := e.Coordinate
		s.User = &c
		s.FailureReason = ""
		return s.reevaluate()

	case LocationFailed:
		s.User = nil
		s.FailureReason = e.Reason
		return s.reevaluate()

	case TargetResolved:
		c := e.Coordinate
		s.Target = &c
		return s.reevaluate()

	case TargetUnavailable:
		s.Target = nil
		return s.reevaluate()

	case ThresholdChanged:
		if math.IsNaN(e.Meters) || math.IsInf(e.Meters, 0) || e.Meters <= 0 {
			return s
		}
		s.Threshold = e.Meters
		return s.reevaluate()

	case SubmitRequested:
		if !s.CanSubmit() {
			return s
		}
		s.Phase = Submitting
		s.Err = ""
		return s

	case SubmitSucceeded:
		if s.Phase != Submitting {
			return s
		}
		entry := e.Entry
		s.Attendee = &entry
		s.Phase = Success
		return s

	case SubmitDuplicate:
		if s.Phase != Submitting {
			return s
		}
		s.Phase = DuplicateRejected
		return s

	case SubmitOutOfRange:
		switch s.Phase {
		case LocationKnown, Submitting, WriteError:
			s.Phase = OutOfRange
		}
		return s

	case SubmitFailed:
		if s.Phase != Submitting {
			return s
		}
		s.Phase = WriteError
		s.Err = e.Err
		return s
	}

	return s
}

// reevaluate recomputes the geofence result and settles the phase. A
// session that is mid-submission keeps its phase; the write decides it.
func (s State) reevaluate() State {
	if s.User != nil && s.Target != nil {
		s.Result = s.Evaluator.Evaluate(*s.User, *s.Target, s.Threshold, s.AutoSwap)
		s.Evaluated = true
	} else {
		s.Result = geo.Result{}
		s.Evaluated = false
	}

	if s.Phase == Submitting {
		return s
	}
	if s.User != nil {
		s.Phase = LocationKnown
	} else {
		s.Phase = AwaitingLocation
	}
	return s
}
