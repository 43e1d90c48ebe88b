package admission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aanand-mishra/attendance-api/internal/geo"
	"github.com/aanand-mishra/attendance-api/internal/location"
	"github.com/aanand-mishra/attendance-api/internal/storage"
	"github.com/aanand-mishra/attendance-api/internal/types"
)

var parseStored = geo.ParseStoredLocation

// ClassStore is the part of storage.Storage a session needs.
type ClassStore interface {
	GetClass(ctx context.Context, courseID, courseCode string) (types.ClassRecord, error)
	AppendAttendee(ctx context.Context, classID string, entry types.AttendeeEntry) ([]types.AttendeeEntry, error)
}

// Options configures a Controller. Zero values pick defaults.
type Options struct {
	Threshold     float64
	AutoSwap      bool
	SwapCutoff    float64
	LocateTimeout time.Duration
	Clock         func() time.Time
	Logger        *slog.Logger
}

// Target names the class a session is for, and optionally the venue
// coordinates carried by the attendance link.
type Target struct {
	CourseID   string
	CourseCode string
	Lat        *float64
	Lng        *float64
}

// Controller runs one attendance session: it resolves the class venue,
// feeds location fixes through Reduce and performs the conditional append.
// It is safe for concurrent use.
type Controller struct {
	store    ClassStore
	provider location.Provider
	clock    func() time.Time
	logger   *slog.Logger

	// seq numbers location requests; only the latest may update state.
	seq atomic.Uint64

	mu          sync.Mutex
	state       State
	class       types.ClassRecord
	classLoaded bool
}

// NewController creates a session awaiting location.
func NewController(store ClassStore, provider location.Provider, opts Options) *Controller {
	if opts.Threshold <= 0 || math.IsNaN(opts.Threshold) || math.IsInf(opts.Threshold, 0) {
		opts.Threshold = geo.DefaultThresholdMeters
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.LocateTimeout > 0 {
		provider = location.WithTimeout(provider, opts.LocateTimeout)
	}

	return &Controller{
		store:    store,
		provider: provider,
		clock:    opts.Clock,
		logger:   opts.Logger,
		state:    NewState(opts.Threshold, opts.AutoSwap, geo.Evaluator{SwapCutoffMeters: opts.SwapCutoff}),
	}
}

// State returns the current snapshot.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Class returns the class record loaded by Open, if any.
func (c *Controller) Class() (types.ClassRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.class, c.classLoaded
}

// Open loads the class named by t and resolves its venue. Link coordinates
// win over the stored location. A class that cannot be found is an error
// wrapping storage.ErrNotFound; a class without a usable venue is not an
// error, the session just stays indeterminate.
func (c *Controller) Open(ctx context.Context, t Target) error {
	var rec types.ClassRecord

	if t.CourseID != "" || t.CourseCode != "" {
		var err error
		rec, err = c.store.GetClass(ctx, t.CourseID, t.CourseCode)
		if err != nil {
			return fmt.Errorf("admission.Open: %w", err)
		}

		c.mu.Lock()
		c.class = rec
		c.classLoaded = true
		c.mu.Unlock()
	}

	if venue, ok := geo.QueryTarget(t.Lat, t.Lng); ok {
		c.apply(TargetResolved{Coordinate: venue})
		return nil
	}

	// The stored location is only read when the link carries no venue.
	stored := parseStored(rec.Location)
	if venue, ok := stored.Coordinate(); ok {
		c.apply(TargetResolved{Coordinate: venue})
	} else {
		c.logger.Info("class venue not available",
			slog.String("course_id", t.CourseID),
			slog.String("course_code", t.CourseCode),
			slog.String("stored_kind", stored.Kind.String()))
		c.apply(TargetUnavailable{})
	}

	return nil
}

// Locate asks the provider for the user's position and applies the result.
// If another Locate started after this one, this result is dropped and the
// current state is returned unchanged.
func (c *Controller) Locate(ctx context.Context) State {
	seq := c.seq.Add(1)

	fix, err := c.provider.Current(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	if seq != c.seq.Load() {
		c.logger.Debug("dropping stale location response", slog.Uint64("seq", seq))
		return c.state
	}

	if err != nil {
		c.applyLocked(LocationFailed{Reason: location.Reason(err)})
	} else {
		c.applyLocked(LocationAcquired{Coordinate: fix})
	}
	return c.state
}

// SetThreshold changes the admission radius and re-evaluates.
func (c *Controller) SetThreshold(meters float64) (State, error) {
	if meters <= 0 || math.IsNaN(meters) || math.IsInf(meters, 0) {
		return c.State(), ErrInvalidThreshold
	}
	return c.apply(ThresholdChanged{Meters: meters}), nil
}

// Submit records matricNo (and the optional name) against the class if
// the user is currently within range.
//
// The range check uses the evaluation current at the moment of the call.
// The duplicate check and the write are one atomic store operation.
func (c *Controller) Submit(ctx context.Context, matricNo, name string) (State, error) {
	matric := types.NormalizeMatric(matricNo)
	if matric == "" {
		return c.State(), ErrMissingIdentifier
	}

	c.mu.Lock()
	s := c.state
	switch {
	case s.Phase.Terminal():
		c.mu.Unlock()
		return s, ErrSessionClosed
	case s.Phase == Submitting:
		c.mu.Unlock()
		return s, ErrSubmitInProgress
	case !c.classLoaded:
		c.mu.Unlock()
		return s, ErrNoClass
	case !s.Determinate():
		c.mu.Unlock()
		return s, ErrIndeterminateLocation
	case !s.WithinRange():
		c.applyLocked(SubmitOutOfRange{})
		s = c.state
		c.mu.Unlock()
		return s, ErrOutOfRange
	}

	c.applyLocked(SubmitRequested{})
	classID := c.class.ID
	c.mu.Unlock()

	entry := types.NewAttendeeEntry(matric, name, c.clock())
	_, err := c.store.AppendAttendee(ctx, classID, entry)

	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case err == nil:
		c.applyLocked(SubmitSucceeded{Entry: entry})
		c.logger.Info("attendance recorded",
			slog.String("class_id", classID),
			slog.String("matric_no", entry.MatricNo),
			slog.String("distance", c.state.DistanceLabel()))
		return c.state, nil

	case errors.Is(err, storage.ErrDuplicate):
		c.applyLocked(SubmitDuplicate{})
		return c.state, fmt.Errorf("admission.Submit: %w", err)

	default:
		c.applyLocked(SubmitFailed{Err: err.Error()})
		c.logger.Error("attendance write failed",
			slog.String("class_id", classID),
			slog.String("error", err.Error()))
		return c.state, fmt.Errorf("admission.Submit: %w", err)
	}
}

func (c *Controller) apply(ev Event) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applyLocked(ev)
	return c.state
}

// applyLocked runs Reduce and logs when the swap heuristic starts being
// used. c.mu must be held.
func (c *Controller) applyLocked(ev Event) {
	prev := c.state
	c.state = Reduce(prev, ev)

	next := c.state
	if next.Evaluated && next.Result.Swapped && !(prev.Evaluated && prev.Result.Swapped) {
		c.logger.Warn("venue coordinates look swapped, using corrected target",
			slog.String("class_id", c.class.ID),
			slog.String("stored_target", next.Target.String()),
			slog.String("corrected_target", next.Result.CorrectedTarget.String()),
			slog.Float64("distance_m", next.Result.DistanceMeters))
	}
}
