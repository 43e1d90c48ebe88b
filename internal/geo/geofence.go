package geo

import "math"

const (
	// DefaultThresholdMeters is the admission radius around a venue.
	DefaultThresholdMeters = 200.0

	// DefaultSwapCutoffMeters is the raw distance above which the evaluator
	// suspects the venue was stored with latitude and longitude reversed.
	DefaultSwapCutoffMeters = 5000.0
)

// Result is the outcome of one geofence evaluation. It is derived from its
// inputs on every location update and never persisted.
type Result struct {
	// DistanceMeters is NaN when Indeterminate is set.
	DistanceMeters  float64
	CorrectedTarget Coordinate
	WithinRange     bool

	// Swapped is set when the target was adopted with lat/lng exchanged.
	Swapped bool

	// Indeterminate is set when any input was NaN or infinite; such a
	// result never admits.
	Indeterminate bool
}

// Evaluator carries the tunables of the swap-correction heuristic.
// The zero value uses DefaultSwapCutoffMeters.
type Evaluator struct {
	SwapCutoffMeters float64
}

// Evaluate runs the geofence check with the default swap cutoff.
func Evaluate(user, target Coordinate, thresholdMeters float64, autoSwap bool) Result {
	return Evaluator{}.Evaluate(user, target, thresholdMeters, autoSwap)
}

// Evaluate computes the user's distance to target and decides admission.
//
// When autoSwap is set and the raw distance exceeds the swap cutoff, the
// distance to the target with latitude and longitude exchanged is also
// computed; if it is strictly smaller the swapped target is adopted. The
// admission test is inclusive: a distance equal to the threshold is in range.
func (e Evaluator) Evaluate(user, target Coordinate, thresholdMeters float64, autoSwap bool) Result {
	if !user.IsFinite() || !target.IsFinite() || !isFinite(thresholdMeters) {
		return indeterminate(target)
	}

	cutoff := e.SwapCutoffMeters
	if cutoff <= 0 {
		cutoff = DefaultSwapCutoffMeters
	}

	res := Result{
		DistanceMeters:  Distance(user, target),
		CorrectedTarget: target,
	}

	if autoSwap && res.DistanceMeters > cutoff {
		swapped := target.Swapped()
		if d := Distance(user, swapped); d < res.DistanceMeters {
			res.DistanceMeters = d
			res.CorrectedTarget = swapped
			res.Swapped = true
		}
	}

	// Finite but huge inputs can still overflow the haversine.
	if !isFinite(res.DistanceMeters) {
		return indeterminate(target)
	}

	res.WithinRange = res.DistanceMeters <= thresholdMeters
	return res
}

func indeterminate(target Coordinate) Result {
	return Result{
		DistanceMeters:  math.NaN(),
		CorrectedTarget: target,
		Indeterminate:   true,
	}
}
