package boundary

import (
	"context"
	"fmt"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/parktrail/internal/geo"
)

// ShapefileSource serves candidates from a local polygon shapefile in
// EPSG:4326, such as an open-data parks layer published by a council.
// The file is read once when opened.
type ShapefileSource struct {
	path       string
	candidates []Candidate
}

// OpenShapefile loads every polygon record in path. nameField is the
// attribute holding the feature name. Only the outer ring (first part) of
// each polygon is used.
func OpenShapefile(path, nameField string) (*ShapefileSource, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "boundary: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = strings.ToLower(strings.TrimRight(f.String(), "\x00"))
	}
	nameIdx := -1
	for i, n := range names {
		if n == strings.ToLower(nameField) {
			nameIdx = i
			break
		}
	}
	if nameIdx < 0 {
		return nil, eris.Errorf("boundary: shapefile %s has no %s field", path, nameField)
	}

	src := &ShapefileSource{path: path}
	skipped := 0
	for reader.Next() {
		n, shape := reader.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok || poly == nil || poly.NumParts == 0 {
			skipped++
			continue
		}

		tags := make(map[string]string, len(names))
		for i, key := range names {
			if v := strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00")); v != "" {
				tags[key] = v
			}
		}

		typ := tags["leisure"]
		if typ == "" {
			typ = "park"
		}

		c, err := NewCandidate(fmt.Sprintf("shp/%d", n), tags[names[nameIdx]], typ, outerRing(poly), tags)
		if err != nil {
			skipped++
			continue
		}
		src.candidates = append(src.candidates, c)
	}

	zap.L().Info("boundary: shapefile loaded",
		zap.String("path", path),
		zap.Int("polygons", len(src.candidates)),
		zap.Int("skipped", skipped),
	)
	return src, nil
}

func outerRing(p *shp.Polygon) orb.Ring {
	end := int32(len(p.Points))
	if p.NumParts > 1 {
		end = p.Parts[1]
	}
	ring := make(orb.Ring, 0, end-p.Parts[0])
	for _, pt := range p.Points[p.Parts[0]:end] {
		ring = append(ring, orb.Point{pt.X, pt.Y})
	}
	return ring
}

// Name implements Source.
func (s *ShapefileSource) Name() string { return "shapefile" }

// Len returns the number of loaded polygons.
func (s *ShapefileSource) Len() int { return len(s.candidates) }

// Near implements Source. A polygon is near when it contains pt or its
// centroid lies within radiusM.
func (s *ShapefileSource) Near(_ context.Context, pt geo.LatLon, radiusM float64) ([]Candidate, error) {
	var out []Candidate
	for _, c := range s.candidates {
		if geo.PointInPolygon(pt.Point(), c.Ring) ||
			geo.DistanceMeters(pt.Lat, pt.Lon, c.Centroid.Lat(), c.Centroid.Lon()) <= radiusM {
			out = append(out, c)
		}
	}
	return out, nil
}

// Within implements Source.
func (s *ShapefileSource) Within(_ context.Context, r Region) ([]Candidate, error) {
	var out []Candidate
	for _, c := range s.candidates {
		if r.Bound.Intersects(c.Ring.Bound()) {
			out = append(out, c)
		}
	}
	return out, nil
}
