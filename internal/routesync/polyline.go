// Package routesync marks Sites completed when a recorded route passes
// through them.
package routesync

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-polyline"

	"github.com/sells-group/parktrail/internal/geo"
)

// Decode parses an encoded polyline (precision 1e5) into a route.
func Decode(encoded string) ([]geo.LatLon, error) {
	coords, rest, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, eris.Wrap(err, "routesync: decode polyline")
	}
	if len(rest) != 0 {
		return nil, eris.Errorf("routesync: %d trailing bytes after polyline", len(rest))
	}
	path := make([]geo.LatLon, len(coords))
	for i, c := range coords {
		path[i] = geo.LatLon{Lat: c[0], Lon: c[1]}
	}
	return path, nil
}

// Encode is the inverse of Decode.
func Encode(path []geo.LatLon) string {
	coords := make([][]float64, len(path))
	for i, p := range path {
		coords[i] = []float64{p.Lat, p.Lon}
	}
	return string(polyline.EncodeCoords(coords))
}
