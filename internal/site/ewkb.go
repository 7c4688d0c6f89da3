package site

import (
	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

// encodePolygon converts a closed ring to EWKB with SRID 4326 for the
// PostGIS geom column. A nil ring encodes to nil.
func encodePolygon(ring orb.Ring) ([]byte, error) {
	if len(ring) == 0 {
		return nil, nil
	}

	flat := make([]float64, 0, len(ring)*2)
	for _, pt := range ring {
		flat = append(flat, pt.Lon(), pt.Lat())
	}

	poly := geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)}).SetSRID(4326)
	data, err := ewkb.Marshal(poly, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "site: encode polygon")
	}
	return data, nil
}

// decodePolygon is the inverse of encodePolygon.
func decodePolygon(data []byte) (orb.Ring, error) {
	if len(data) == 0 {
		return nil, nil
	}

	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return nil, eris.Wrap(err, "site: decode polygon")
	}
	poly, ok := g.(*geom.Polygon)
	if !ok {
		return nil, eris.Errorf("site: expected polygon, got %T", g)
	}
	if poly.NumLinearRings() == 0 {
		return nil, nil
	}

	coords := poly.LinearRing(0).Coords()
	ring := make(orb.Ring, len(coords))
	for i, c := range coords {
		ring[i] = orb.Point{c.X(), c.Y()}
	}
	return ring, nil
}
