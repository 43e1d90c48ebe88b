package admission

import "errors"

var (
	// ErrMissingIdentifier: the matric number was empty after trimming.
	ErrMissingIdentifier = errors.New("matric number is required")

	// ErrIndeterminateLocation: the user's position or the venue is not
	// known, so the distance cannot be checked.
	ErrIndeterminateLocation = errors.New("cannot verify your location against the class venue")

	// ErrOutOfRange: the user is farther from the venue than the threshold.
	ErrOutOfRange = errors.New("you are not within range of the class venue")

	// ErrSessionClosed: the session already ended in success or duplicate.
	ErrSessionClosed = errors.New("attendance session is already finished")

	// ErrSubmitInProgress: another submission on this session has not
	// returned yet.
	ErrSubmitInProgress = errors.New("a submission is already in progress")

	// ErrInvalidThreshold: thresholds must be positive finite meters.
	ErrInvalidThreshold = errors.New("threshold must be a positive number of meters")

	// ErrNoClass: the session was opened without a class to write to.
	ErrNoClass = errors.New("no class selected for this session")
)
