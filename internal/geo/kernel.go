// Package geo provides the planar-approximated geometry used for boundary
// matching and route intersection: ring area, bbox centroid, haversine
// distance, and point-in-polygon tests.
package geo

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// EarthRadiusMeters is the sphere radius used by DistanceMeters.
const EarthRadiusMeters = 6371000.0

// Projection scales for the local planar approximation used by Area.
const (
	metersPerDegreeLon = 111320.0 // at the equator; scaled by cos(lat)
	metersPerDegreeLat = 110540.0
)

// LatLon is a position in degrees, latitude first, as produced by track decoding.
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Point returns p as an orb point (lon, lat).
func (p LatLon) Point() orb.Point {
	return orb.Point{p.Lon, p.Lat}
}

// FromPoint converts an orb point (lon, lat) into a LatLon.
func FromPoint(pt orb.Point) LatLon {
	return LatLon{Lat: pt.Lat(), Lon: pt.Lon()}
}

// Area returns the absolute area of ring in square meters. Coordinates are
// projected onto a plane scaled at the ring's bbox mid-latitude, then
// measured with the shoelace formula. The result does not depend on winding
// direction or the starting vertex.
func Area(ring orb.Ring) float64 {
	if len(ring) < 3 {
		return 0
	}

	midLat := ring.Bound().Center().Lat()
	kx := metersPerDegreeLon * math.Cos(midLat*math.Pi/180)

	projected := make(orb.Ring, len(ring))
	for i, pt := range ring {
		projected[i] = orb.Point{pt.Lon() * kx, pt.Lat() * metersPerDegreeLat}
	}

	return math.Abs(planar.Area(projected))
}

// Centroid returns the midpoint of the ring's bounding box.
//
// This is an approximation, not the area-weighted centroid: for concave or
// elongated rings (linear parks, river walks) the result can lie outside the
// polygon. Candidate distances and the duplicate heuristic are calibrated
// against this behavior.
func Centroid(ring orb.Ring) orb.Point {
	if len(ring) == 0 {
		return orb.Point{}
	}
	return ring.Bound().Center()
}

// DistanceMeters returns the haversine great-circle distance in meters.
func DistanceMeters(latA, lonA, latB, lonB float64) float64 {
	const rad = math.Pi / 180
	dLat := (latB - latA) * rad
	dLon := (lonB - lonA) * rad

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(latA*rad)*math.Cos(latB*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)

	return 2 * EarthRadiusMeters * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// PointInPolygon reports whether pt (lon, lat) lies inside ring using the
// even-odd ray casting rule. The ring may be open or closed.
//
// Points exactly on an edge or vertex are reported as inside. Rings with
// fewer than 3 points contain nothing.
func PointInPolygon(pt orb.Point, ring orb.Ring) bool {
	if len(ring) < 3 {
		return false
	}
	return planar.RingContains(ring, pt)
}

// PathCrossesPolygon reports whether any vertex of path lies inside ring.
//
// Only the sampled vertices are tested: a path that clips the polygon
// between two consecutive vertices without either landing inside is missed.
// Use Densify to add interpolated samples when tracks are sparse.
func PathCrossesPolygon(path []LatLon, ring orb.Ring) bool {
	if len(ring) < 3 || len(path) == 0 {
		return false
	}

	bound := ring.Bound()
	for _, p := range path {
		pt := p.Point()
		if !bound.Contains(pt) {
			continue
		}
		if planar.RingContains(ring, pt) {
			return true
		}
	}
	return false
}

// PathNear reports whether any vertex of path lies within radius meters of target.
func PathNear(path []LatLon, target LatLon, radius float64) bool {
	for _, p := range path {
		if DistanceMeters(p.Lat, p.Lon, target.Lat, target.Lon) <= radius {
			return true
		}
	}
	return false
}

// PathBound returns the bounding box of path expanded by padM meters on every
// side. An empty path yields an empty bound.
func PathBound(path []LatLon, padM float64) orb.Bound {
	if len(path) == 0 {
		return orb.Bound{}
	}
	b := orb.Bound{Min: path[0].Point(), Max: path[0].Point()}
	for _, p := range path[1:] {
		b = b.Extend(p.Point())
	}
	if padM <= 0 {
		return b
	}

	maxLat := math.Max(math.Abs(b.Min.Lat()), math.Abs(b.Max.Lat()))
	dLat := padM / metersPerDegreeLat
	dLon := 180.0
	if c := math.Cos(maxLat * math.Pi / 180); c > 1e-6 {
		dLon = math.Min(padM/(metersPerDegreeLon*c), 180)
	}
	return orb.Bound{
		Min: orb.Point{math.Max(b.Min.Lon()-dLon, -180), math.Max(b.Min.Lat()-dLat, -90)},
		Max: orb.Point{math.Min(b.Max.Lon()+dLon, 180), math.Min(b.Max.Lat()+dLat, 90)},
	}
}

// Densify returns a copy of path with linearly interpolated points inserted so
// that no two consecutive samples are more than step meters apart. A step of
// zero or less returns path unchanged.
func Densify(path []LatLon, step float64) []LatLon {
	if step <= 0 || len(path) < 2 {
		return path
	}

	out := make([]LatLon, 0, len(path))
	out = append(out, path[0])
	for i := 1; i < len(path); i++ {
		a, b := path[i-1], path[i]
		d := DistanceMeters(a.Lat, a.Lon, b.Lat, b.Lon)
		if n := int(math.Ceil(d / step)); n > 1 {
			for k := 1; k < n; k++ {
				f := float64(k) / float64(n)
				out = append(out, LatLon{
					Lat: a.Lat + (b.Lat-a.Lat)*f,
					Lon: a.Lon + (b.Lon-a.Lon)*f,
				})
			}
		}
		out = append(out, b)
	}
	return out
}

// OverlapScore estimates whether two rings describe the same feature from the
// distance between their bbox centroids: within 10 m scores 1.0, 50 m 0.8,
// 100 m 0.5, otherwise 0.
func OverlapScore(a, b orb.Ring) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	ca, cb := Centroid(a), Centroid(b)
	d := DistanceMeters(ca.Lat(), ca.Lon(), cb.Lat(), cb.Lon())
	switch {
	case d <= 10:
		return 1.0
	case d <= 50:
		return 0.8
	case d <= 100:
		return 0.5
	default:
		return 0
	}
}
