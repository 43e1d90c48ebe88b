package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistance_Symmetric(t *testing.T) {
	a := Coordinate{Lat: 13.0305, Lng: 77.5649}
	b := Coordinate{Lat: 6.5244, Lng: 3.3792}

	assert.InDelta(t, Distance(a, b), Distance(b, a), 1e-6)
}

func TestDistance_SamePointIsZero(t *testing.T) {
	a := Coordinate{Lat: 6.5244, Lng: 3.3792}
	assert.Equal(t, 0.0, Distance(a, a))
}

func TestDistance_CampusFixture(t *testing.T) {
	a := Coordinate{Lat: 13.0305, Lng: 77.5649}
	b := Coordinate{Lat: 13.03395, Lng: 77.56532}

	d := Distance(a, b)
	assert.Greater(t, d, 300.0)
	assert.Less(t, d, 400.0)
}

func TestDistance_OneDegreeOfLatitude(t *testing.T) {
	d := Distance(Coordinate{Lat: 0, Lng: 0}, Coordinate{Lat: 1, Lng: 0})
	// 2*pi*R/360
	assert.InDelta(t, 111194.93, d, 0.5)
}

func TestEvaluate_SwapCorrection(t *testing.T) {
	user := Coordinate{Lat: 13.03, Lng: 77.56}
	target := Coordinate{Lat: 77.56, Lng: 13.03}

	res := Evaluate(user, target, DefaultThresholdMeters, true)

	assert.True(t, res.Swapped)
	assert.Equal(t, Coordinate{Lat: 13.03, Lng: 77.56}, res.CorrectedTarget)
	assert.InDelta(t, 0, res.DistanceMeters, 1e-6)
	assert.True(t, res.WithinRange)
	assert.False(t, res.Indeterminate)
}

func TestEvaluate_SwapDisabled(t *testing.T) {
	user := Coordinate{Lat: 13.03, Lng: 77.56}
	target := Coordinate{Lat: 77.56, Lng: 13.03}

	res := Evaluate(user, target, DefaultThresholdMeters, false)

	assert.False(t, res.Swapped)
	assert.Equal(t, target, res.CorrectedTarget)
	assert.False(t, res.WithinRange)
	assert.Greater(t, res.DistanceMeters, 5000.0)
}

func TestEvaluate_NoSwapBelowCutoff(t *testing.T) {
	user := Coordinate{Lat: 13.0305, Lng: 77.5649}
	target := Coordinate{Lat: 13.03395, Lng: 77.56532}

	res := Evaluate(user, target, DefaultThresholdMeters, true)

	assert.False(t, res.Swapped)
	assert.Equal(t, target, res.CorrectedTarget)
	assert.False(t, res.WithinRange)
}

func TestEvaluate_SwapOnlyWhenStrictlySmaller(t *testing.T) {
	// Far apart, and the swapped target is even further.
	user := Coordinate{Lat: 10, Lng: 10}
	target := Coordinate{Lat: 20, Lng: 60}

	res := Evaluate(user, target, DefaultThresholdMeters, true)

	assert.False(t, res.Swapped)
	assert.Equal(t, target, res.CorrectedTarget)
	assert.InDelta(t, Distance(user, target), res.DistanceMeters, 1e-6)
}

func TestEvaluator_CustomCutoff(t *testing.T) {
	user := Coordinate{Lat: 13.03, Lng: 77.56}
	target := Coordinate{Lat: 77.56, Lng: 13.03}

	// A cutoff above any earthly distance disables the heuristic.
	e := Evaluator{SwapCutoffMeters: 50_000_000}
	res := e.Evaluate(user, target, DefaultThresholdMeters, true)

	assert.False(t, res.Swapped)
	assert.False(t, res.WithinRange)
}

func TestEvaluate_ThresholdIsInclusive(t *testing.T) {
	user := Coordinate{Lat: 6.5244, Lng: 3.3792}
	target := Coordinate{Lat: 6.5254, Lng: 3.3792}
	d := Distance(user, target)

	assert.True(t, Evaluate(user, target, d, false).WithinRange)
	assert.False(t, Evaluate(user, target, math.Nextafter(d, 0), false).WithinRange)
}

func TestEvaluate_Indeterminate(t *testing.T) {
	good := Coordinate{Lat: 6.5, Lng: 3.3}

	tests := []struct {
		name      string
		user      Coordinate
		target    Coordinate
		threshold float64
	}{
		{"nan user", Coordinate{Lat: math.NaN(), Lng: 3.3}, good, 200},
		{"inf target", good, Coordinate{Lat: 6.5, Lng: math.Inf(1)}, 200},
		{"nan threshold", good, good, math.NaN()},
		{"overflowing user", Coordinate{Lat: 1e308, Lng: 0}, good, 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Evaluate(tt.user, tt.target, tt.threshold, true)

			assert.True(t, res.Indeterminate)
			assert.False(t, res.WithinRange)
			assert.True(t, math.IsNaN(res.DistanceMeters))
		})
	}
}

func TestSanitizeOrder(t *testing.T) {
	fixed, swapped := SanitizeOrder(Coordinate{Lat: 77.56, Lng: 13.03})
	assert.False(t, swapped, "77.56 is a legal latitude")
	assert.Equal(t, Coordinate{Lat: 77.56, Lng: 13.03}, fixed)

	fixed, swapped = SanitizeOrder(Coordinate{Lat: 103.5, Lng: 1.3})
	assert.True(t, swapped)
	assert.Equal(t, Coordinate{Lat: 1.3, Lng: 103.5}, fixed)
}

func TestFormatPoint(t *testing.T) {
	got := FormatPoint(Coordinate{Lat: 13.0305, Lng: 77.5649})
	assert.Equal(t, "SRID=4326;POINT(77.5649 13.0305)", got)

	back, ok := ParseStoredLocation(got).Coordinate()
	require.True(t, ok)
	assert.Equal(t, Coordinate{Lat: 13.0305, Lng: 77.5649}, back)
}

func TestParseStoredLocation(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		kind StoredKind
		want Coordinate
		ok   bool
	}{
		{"ewkt", "SRID=4326;POINT(77.5649 13.0305)", KindPointText, Coordinate{Lat: 13.0305, Lng: 77.5649}, true},
		{"bare point", "POINT(3.3792 6.5244)", KindPointText, Coordinate{Lat: 6.5244, Lng: 3.3792}, true},
		{"lower case", "srid=4326; point( -0.1276  51.5072 )", KindPointText, Coordinate{Lat: 51.5072, Lng: -0.1276}, true},
		{"geojson text", `{"type":"Point","coordinates":[3.3792,6.5244]}`, KindGeoJSON, Coordinate{Lat: 6.5244, Lng: 3.3792}, true},
		{"geojson bytes", []byte(`{"coordinates":[1.5,2.5]}`), KindGeoJSON, Coordinate{Lat: 2.5, Lng: 1.5}, true},
		{"geojson map", map[string]any{"type": "Point", "coordinates": []any{3.0, 4.0}}, KindGeoJSON, Coordinate{Lat: 4, Lng: 3}, true},
		{"quoted point", `"POINT(1 2)"`, KindPointText, Coordinate{Lat: 2, Lng: 1}, true},
		{"trailing dots", "POINT(77. 13.)", KindPointText, Coordinate{Lat: 13, Lng: 77}, true},
		{"leading dots", "POINT(.5 -.25)", KindPointText, Coordinate{Lat: -0.25, Lng: 0.5}, true},
		{"embedded point", "location: POINT(3.3792 6.5244) (legacy)", KindPointText, Coordinate{Lat: 6.5244, Lng: 3.3792}, true},
		{"point without numbers", "POINT(. .)", KindAbsent, Coordinate{}, false},
		{"short coordinates", `{"coordinates":[1]}`, KindAbsent, Coordinate{}, false},
		{"wkb hex", "0101000020E6100000", KindAbsent, Coordinate{}, false},
		{"empty", "", KindAbsent, Coordinate{}, false},
		{"nil", nil, KindAbsent, Coordinate{}, false},
		{"number", 42, KindAbsent, Coordinate{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc := ParseStoredLocation(tt.raw)
			assert.Equal(t, tt.kind, loc.Kind)

			got, ok := loc.Coordinate()
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestResolveTarget(t *testing.T) {
	stored := PointText("SRID=4326;POINT(77.5649 13.0305)")
	lat, lng := 6.5, 3.3
	nan := math.NaN()

	t.Run("query wins", func(t *testing.T) {
		got, ok := ResolveTarget(&lat, &lng, stored)
		require.True(t, ok)
		assert.Equal(t, Coordinate{Lat: 6.5, Lng: 3.3}, got)
	})

	t.Run("half query falls back", func(t *testing.T) {
		got, ok := ResolveTarget(&lat, nil, stored)
		require.True(t, ok)
		assert.Equal(t, Coordinate{Lat: 13.0305, Lng: 77.5649}, got)
	})

	t.Run("non-finite query falls back", func(t *testing.T) {
		got, ok := ResolveTarget(&nan, &lng, stored)
		require.True(t, ok)
		assert.Equal(t, Coordinate{Lat: 13.0305, Lng: 77.5649}, got)
	})

	t.Run("out of range query falls back", func(t *testing.T) {
		huge, zero := 1e308, 0.0
		got, ok := ResolveTarget(&huge, &zero, stored)
		require.True(t, ok)
		assert.Equal(t, Coordinate{Lat: 13.0305, Lng: 77.5649}, got)
	})

	t.Run("exchanged query is kept for the swap check", func(t *testing.T) {
		la, ln := 150.0, 30.0
		got, ok := ResolveTarget(&la, &ln, stored)
		require.True(t, ok)
		assert.Equal(t, Coordinate{Lat: 150, Lng: 30}, got)
	})

	t.Run("nothing available", func(t *testing.T) {
		_, ok := ResolveTarget(nil, nil, Absent())
		assert.False(t, ok)
	})
}
