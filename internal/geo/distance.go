package geo

import "math"

// EarthRadiusMeters is the mean Earth radius used by Distance.
const EarthRadiusMeters = 6_371_000.0

// Coordinate tolerances (degrees) used to treat two parsed coordinates as the
// same point. They absorb float re-parsing and rounding noise; they are not a
// proximity radius.
const (
	// IdentityTolerance matches coordinates that were parsed from the same text.
	IdentityTolerance = 1e-6

	// LookupTolerance is the window used when a client echoes coordinates back
	// to fetch a spot, which may have passed through a lossy float formatter.
	LookupTolerance = 1e-5
)

// Point is a latitude/longitude pair in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Distance returns the great-circle distance in meters between two points
// using the haversine formula on a spherical Earth.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	φ1 := toRadians(lat1)
	φ2 := toRadians(lat2)
	Δφ := toRadians(lat2 - lat1)
	Δλ := toRadians(lon2 - lon1)

	a := math.Sin(Δφ/2)*math.Sin(Δφ/2) +
		math.Cos(φ1)*math.Cos(φ2)*math.Sin(Δλ/2)*math.Sin(Δλ/2)
	// Clamp to guard against a > 1 from float error for antipodal points.
	if a > 1 {
		a = 1
	}
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusMeters * c
}

// SamePoint reports whether both coordinate deltas are within tolerance.
func SamePoint(lat1, lon1, lat2, lon2, tolerance float64) bool {
	return math.Abs(lat1-lat2) <= tolerance && math.Abs(lon1-lon2) <= tolerance
}

// ValidLatitude reports whether lat is a finite value in [-90, 90].
func ValidLatitude(lat float64) bool {
	return !math.IsNaN(lat) && lat >= -90 && lat <= 90
}

// ValidLongitude reports whether lng is a finite value in [-180, 180].
func ValidLongitude(lng float64) bool {
	return !math.IsNaN(lng) && lng >= -180 && lng <= 180
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
