package geo

import "math"

// EarthRadiusMeters is the mean earth radius used by Distance. Admission
// thresholds are compared directly against Distance, so this value is part
// of the gating contract.
const EarthRadiusMeters = 6371000.0

// Distance returns the great-circle surface distance in meters between a
// and b using the haversine formula on a spherical earth.
func Distance(a, b Coordinate) float64 {
	phi1 := a.Lat * math.Pi / 180
	phi2 := b.Lat * math.Pi / 180
	dPhi := (b.Lat - a.Lat) * math.Pi / 180
	dLambda := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusMeters * c
}
