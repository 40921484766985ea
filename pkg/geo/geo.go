// Package geo holds the stateless geographic math used by the navigation engine.
package geo

import (
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
)

// EarthRadius is the sphere radius in meters shared by every function in this package.
const EarthRadius = orb.EarthRadius

// DefaultTileSize is the Web-Mercator tile edge in pixels.
const DefaultTileSize = 256

// mercatorSinLimit keeps the projection away from the poles.
const mercatorSinLimit = 0.9999

// Point represents a geographic coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether both coordinates are finite and inside the WGS84 ranges.
func (p Point) Valid() bool {
	return finite(p.Lat) && finite(p.Lon) &&
		p.Lat >= -90 && p.Lat <= 90 &&
		p.Lon >= -180 && p.Lon <= 180
}

func (p Point) orb() orb.Point {
	return orb.Point{p.Lon, p.Lat}
}

// Distance calculates the Haversine distance between two points in meters.
// Non-finite input yields 0.
func Distance(p1, p2 Point) float64 {
	if !finite(p1.Lat, p1.Lon, p2.Lat, p2.Lon) {
		return 0
	}
	if p1 == p2 {
		return 0
	}
	return orbgeo.DistanceHaversine(p1.orb(), p2.orb())
}

// PathDistance sums the Haversine distances between consecutive points.
func PathDistance(points []Point) float64 {
	if len(points) < 2 {
		return 0
	}
	ls := make(orb.LineString, 0, len(points))
	for _, p := range points {
		if !finite(p.Lat, p.Lon) {
			continue
		}
		ls = append(ls, p.orb())
	}
	if len(ls) < 2 {
		return 0
	}
	return orbgeo.LengthHaversine(ls)
}

// LocalOffsetMeters returns the flat-earth offset of p from anchor, east and north positive.
// It is an equirectangular approximation, accurate at radar scale.
func LocalOffsetMeters(p, anchor Point) (east, north float64) {
	if !finite(p.Lat, p.Lon, anchor.Lat, anchor.Lon) {
		return 0, 0
	}
	dLat := (p.Lat - anchor.Lat) * (math.Pi / 180.0)
	dLon := NormalizeAngle(p.Lon-anchor.Lon) * (math.Pi / 180.0)
	north = dLat * EarthRadius
	east = dLon * EarthRadius * math.Cos(anchor.Lat*(math.Pi/180.0))
	return east, north
}

// ProjectToPixels returns the Web-Mercator pixel delta of p relative to anchor at the given zoom.
// Screen convention: x grows east, y grows south. The longitude delta takes the short way
// across the antimeridian.
func ProjectToPixels(p, anchor Point, zoom, tileSize float64) (dx, dy float64) {
	if tileSize <= 0 {
		tileSize = DefaultTileSize
	}
	if !finite(p.Lat, p.Lon, anchor.Lat, anchor.Lon, zoom) {
		return 0, 0
	}
	scale := tileSize * math.Exp2(zoom)
	dx = NormalizeAngle(p.Lon-anchor.Lon) / 360.0 * scale
	dy = mercatorY(p.Lat, scale) - mercatorY(anchor.Lat, scale)
	return dx, dy
}

func mercatorY(lat, scale float64) float64 {
	siny := math.Sin(lat * (math.Pi / 180.0))
	siny = math.Min(math.Max(siny, -mercatorSinLimit), mercatorSinLimit)
	return scale * (0.5 - math.Log((1+siny)/(1-siny))/(4*math.Pi))
}

// DestinationPoint calculates the destination point from a start point, given distance (in meters) and bearing (in degrees).
func DestinationPoint(start Point, distMeters, bearing float64) Point {
	const R = EarthRadius
	lat1 := start.Lat * (math.Pi / 180.0)
	lon1 := start.Lon * (math.Pi / 180.0)
	brng := bearing * (math.Pi / 180.0)

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(distMeters/R) +
		math.Cos(lat1)*math.Sin(distMeters/R)*math.Cos(brng))
	lon2 := lon1 + math.Atan2(math.Sin(brng)*math.Sin(distMeters/R)*math.Cos(lat1),
		math.Cos(distMeters/R)-math.Sin(lat1)*math.Sin(lat2))

	return Point{
		Lat: lat2 * (180.0 / math.Pi),
		Lon: NormalizeAngle(lon2 * (180.0 / math.Pi)),
	}
}

// Bearing calculates the initial bearing (forward azimuth) from p1 to p2 in degrees.
func Bearing(p1, p2 Point) float64 {
	lat1 := p1.Lat * (math.Pi / 180.0)
	lat2 := p2.Lat * (math.Pi / 180.0)
	dLon := (p2.Lon - p1.Lon) * (math.Pi / 180.0)

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) -
		math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	brng := math.Atan2(y, x)

	return Wrap360(brng * (180.0 / math.Pi))
}

// NormalizeAngle normalizes an angle difference to the range [-180, 180].
func NormalizeAngle(angleDeg float64) float64 {
	if !finite(angleDeg) {
		return 0
	}
	angleDeg = math.Mod(angleDeg, 360)
	if angleDeg > 180 {
		angleDeg -= 360
	}
	if angleDeg < -180 {
		angleDeg += 360
	}
	return angleDeg
}

// Wrap360 maps any angle onto [0, 360).
func Wrap360(angleDeg float64) float64 {
	if !finite(angleDeg) {
		return 0
	}
	a := math.Mod(angleDeg, 360)
	if a < 0 {
		a += 360
	}
	if a >= 360 {
		a -= 360
	}
	return a
}

func finite(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
