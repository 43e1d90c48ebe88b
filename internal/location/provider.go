// Package location supplies the user's current position to an attendance
// session.
//
// The position is obtained from a Provider. In the HTTP service the only
// real source is the fix the browser reported alongside the request, so
// Reported is the production implementation; WithTimeout bounds any
// provider so that a slow source cannot stall a session.
package location

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aanand-mishra/attendance-api/internal/geo"
)

// Failure reasons. These are the values a client may send as
// locationError and the values stored on a session that failed to locate.
const (
	ReasonPermissionDenied = "permission_denied"
	ReasonUnavailable      = "unavailable"
	ReasonTimeout          = "timeout"
)

// Failure is the error returned by a provider that could not produce a fix.
type Failure struct {
	Reason string
}

func (f *Failure) Error() string {
	return "location: " + f.Reason
}

// Is lets errors.Is match failures by reason.
func (f *Failure) Is(target error) bool {
	var other *Failure
	if !errors.As(target, &other) {
		return false
	}
	return other.Reason == f.Reason
}

var (
	ErrPermissionDenied = &Failure{Reason: ReasonPermissionDenied}
	ErrUnavailable      = &Failure{Reason: ReasonUnavailable}
	ErrTimeout          = &Failure{Reason: ReasonTimeout}
)

// Provider yields the user's current coordinate.
type Provider interface {
	Current(ctx context.Context) (geo.Coordinate, error)
}

// ProviderFunc adapts a plain function to Provider.
type ProviderFunc func(ctx context.Context) (geo.Coordinate, error)

func (f ProviderFunc) Current(ctx context.Context) (geo.Coordinate, error) {
	return f(ctx)
}

// Reported is the position a client sent with its request: either a fix or
// the reason its own lookup failed.
type Reported struct {
	Coordinate *geo.Coordinate
	Reason     string
}

// Current returns the reported fix. A reported failure reason takes
// precedence; an empty report, or one with NaN/Inf components, is
// ErrUnavailable.
func (r Reported) Current(ctx context.Context) (geo.Coordinate, error) {
	if err := ctx.Err(); err != nil {
		return geo.Coordinate{}, err
	}
	if r.Reason != "" {
		return geo.Coordinate{}, FailureFor(r.Reason)
	}
	if r.Coordinate == nil || !r.Coordinate.IsValid() {
		return geo.Coordinate{}, ErrUnavailable
	}
	return *r.Coordinate, nil
}

// FailureFor maps a client-supplied reason onto one of the known failures.
// Unrecognised reasons are treated as unavailable.
func FailureFor(reason string) *Failure {
	switch reason {
	case ReasonPermissionDenied:
		return ErrPermissionDenied
	case ReasonTimeout:
		return ErrTimeout
	default:
		return ErrUnavailable
	}
}

type result struct {
	c   geo.Coordinate
	err error
}

// WithTimeout bounds p: if no answer arrives within d, Current returns
// ErrTimeout. The inner call still receives a context that is cancelled at
// the deadline.
func WithTimeout(p Provider, d time.Duration) Provider {
	if d <= 0 {
		return p
	}
	return ProviderFunc(func(ctx context.Context) (geo.Coordinate, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		// Buffered so the goroutine never blocks after we stop listening.
		ch := make(chan result, 1)
		go func() {
			c, err := p.Current(ctx)
			ch <- result{c: c, err: err}
		}()

		select {
		case res := <-ch:
			if errors.Is(res.err, context.DeadlineExceeded) {
				return geo.Coordinate{}, ErrTimeout
			}
			return res.c, res.err
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return geo.Coordinate{}, ErrTimeout
			}
			return geo.Coordinate{}, fmt.Errorf("location.WithTimeout: %w", ctx.Err())
		}
	})
}

// Message renders err as the sentence shown to the user.
func Message(err error) string {
	var f *Failure
	if !errors.As(err, &f) {
		return "Unable to retrieve your location."
	}
	switch f.Reason {
	case ReasonPermissionDenied:
		return "Location permission denied. Allow location access to mark attendance."
	case ReasonTimeout:
		return "Timed out while retrieving your location. Try again."
	default:
		return "Your location is currently unavailable."
	}
}

// Reason extracts the failure reason from err, or ReasonUnavailable if err
// is not a Failure.
func Reason(err error) string {
	var f *Failure
	if errors.As(err, &f) {
		return f.Reason
	}
	return ReasonUnavailable
}
