package localize

import "math"

// HaversineDistance returns the great-circle distance in meters between
// two geodetic points, grounded on the standard double-precision Haversine
// formula (no dedicated geodesy library is carried anywhere in the
// example pack, so this one helper is a deliberate standard-library
// exception).
func HaversineDistance(a, b GeodeticPoint) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	sinDLat := math.Sin(dLat / 2)
	sinDLon := math.Sin(dLon / 2)
	h := sinDLat*sinDLat + math.Cos(lat1)*math.Cos(lat2)*sinDLon*sinDLon
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}

// InitialBearing returns the initial bearing in radians (0 = north,
// increasing clockwise) from a to b.
func InitialBearing(a, b GeodeticPoint) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	return math.Atan2(y, x)
}

// AnchorFrame projects geodetic points to/from a local planar (x, y)
// Cartesian frame anchored at a fixed geodetic origin, using the
// equirectangular approximation (valid over the scale of a mowed yard,
// not over long distances).
type AnchorFrame struct {
	origin      GeodeticPoint
	cosLat0     float64
}

// NewAnchorFrame creates a frame anchored at origin.
func NewAnchorFrame(origin GeodeticPoint) AnchorFrame {
	return AnchorFrame{
		origin:  origin,
		cosLat0: math.Cos(origin.Latitude * math.Pi / 180),
	}
}

// ToLocal converts a geodetic point to local (x, y) meters, x = east,
// y = north.
func (f AnchorFrame) ToLocal(p GeodeticPoint) (x, y float64) {
	dLat := (p.Latitude - f.origin.Latitude) * math.Pi / 180
	dLon := (p.Longitude - f.origin.Longitude) * math.Pi / 180
	x = dLon * f.cosLat0 * earthRadiusMeters
	y = dLat * earthRadiusMeters
	return x, y
}

// ToGeodetic converts local (x, y) meters back to a geodetic point.
func (f AnchorFrame) ToGeodetic(x, y float64) GeodeticPoint {
	dLat := y / earthRadiusMeters
	dLon := x / (f.cosLat0 * earthRadiusMeters)
	return GeodeticPoint{
		Latitude:  f.origin.Latitude + dLat*180/math.Pi,
		Longitude: f.origin.Longitude + dLon*180/math.Pi,
	}
}
