package geo

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// MalformedGeometryError reports a ring that cannot be used as a polygon:
// fewer than 3 distinct points or coordinates outside the valid range.
type MalformedGeometryError struct {
	Reason string
}

func (e *MalformedGeometryError) Error() string {
	return "geo: malformed geometry: " + e.Reason
}

// IsMalformed reports whether err (or any error in its chain) is a MalformedGeometryError.
func IsMalformed(err error) bool {
	var mg *MalformedGeometryError
	return errors.As(err, &mg)
}

// ShapeKind tags which variant a Shape holds.
type ShapeKind int

const (
	// ShapeEmpty means no polygon was supplied.
	ShapeEmpty ShapeKind = iota
	// ShapeRing is a bare coordinate array [[lon, lat], ...].
	ShapeRing
	// ShapeStructured is a GeoJSON geometry object (Polygon, MultiPolygon, ...).
	ShapeStructured
)

// Shape is the raw polygon as it arrived at an ingestion boundary. Exactly
// one of Ring or Structured is set, according to Kind.
type Shape struct {
	Kind       ShapeKind
	Ring       orb.Ring
	Structured orb.Geometry
}

// DecodeShape parses raw JSON into a Shape. Empty input and JSON null decode
// to ShapeEmpty.
func DecodeShape(raw []byte) (Shape, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Shape{Kind: ShapeEmpty}, nil
	}

	switch raw[0] {
	case '[':
		var coords [][]float64
		if err := json.Unmarshal(raw, &coords); err != nil {
			return Shape{}, &MalformedGeometryError{Reason: "unparseable coordinate array: " + err.Error()}
		}
		ring := make(orb.Ring, 0, len(coords))
		for i, c := range coords {
			if len(c) < 2 {
				return Shape{}, &MalformedGeometryError{Reason: fmt.Sprintf("coordinate %d has %d values", i, len(c))}
			}
			ring = append(ring, orb.Point{c[0], c[1]})
		}
		return Shape{Kind: ShapeRing, Ring: ring}, nil

	case '{':
		g, err := geojson.UnmarshalGeometry(raw)
		if err != nil {
			return Shape{}, &MalformedGeometryError{Reason: "unparseable geometry object: " + err.Error()}
		}
		return Shape{Kind: ShapeStructured, Structured: g.Geometry()}, nil

	default:
		return Shape{}, &MalformedGeometryError{Reason: "unrecognised polygon encoding"}
	}
}

// Normalize reduces the shape to a single closed ring. Structured polygons
// contribute their outer ring; multipolygons contribute the largest outer
// ring. An empty shape normalizes to a nil ring and no error.
func (s Shape) Normalize() (orb.Ring, error) {
	switch s.Kind {
	case ShapeEmpty:
		return nil, nil
	case ShapeRing:
		return NormalizeRing(s.Ring)
	case ShapeStructured:
		return normalizeGeometry(s.Structured)
	default:
		return nil, &MalformedGeometryError{Reason: "unknown shape kind"}
	}
}

func normalizeGeometry(g orb.Geometry) (orb.Ring, error) {
	switch v := g.(type) {
	case orb.Polygon:
		if len(v) == 0 {
			return nil, &MalformedGeometryError{Reason: "polygon has no rings"}
		}
		return NormalizeRing(v[0])
	case orb.MultiPolygon:
		var best orb.Ring
		bestArea := -1.0
		for _, p := range v {
			if len(p) == 0 {
				continue
			}
			if a := Area(p[0]); a > bestArea {
				best, bestArea = p[0], a
			}
		}
		if best == nil {
			return nil, &MalformedGeometryError{Reason: "multipolygon has no rings"}
		}
		return NormalizeRing(best)
	case orb.Ring:
		return NormalizeRing(v)
	case orb.LineString:
		return NormalizeRing(orb.Ring(v))
	default:
		return nil, &MalformedGeometryError{Reason: fmt.Sprintf("unsupported geometry type %T", g)}
	}
}

// NormalizeShape decodes raw JSON in either polygon encoding and returns a
// single closed ring. It is the one entry point used wherever polygons are
// ingested.
func NormalizeShape(raw []byte) (orb.Ring, error) {
	s, err := DecodeShape(raw)
	if err != nil {
		return nil, err
	}
	return s.Normalize()
}

// NormalizeRing validates ring and returns a closed copy. A ring needs at
// least 3 distinct vertices with finite coordinates inside the lon/lat range.
func NormalizeRing(ring orb.Ring) (orb.Ring, error) {
	if len(ring) == 0 {
		return nil, &MalformedGeometryError{Reason: "empty ring"}
	}

	for i, pt := range ring {
		lon, lat := pt.Lon(), pt.Lat()
		if math.IsNaN(lon) || math.IsNaN(lat) || lon < -180 || lon > 180 || lat < -90 || lat > 90 {
			return nil, &MalformedGeometryError{Reason: fmt.Sprintf("coordinate %d out of range (%f, %f)", i, lon, lat)}
		}
	}

	out := make(orb.Ring, len(ring), len(ring)+1)
	copy(out, ring)
	if len(out) == 1 || out[0] != out[len(out)-1] {
		out = append(out, out[0])
	}

	if distinct := len(out) - 1; distinct < 3 {
		return nil, &MalformedGeometryError{Reason: fmt.Sprintf("ring has %d points, need at least 3", distinct)}
	}

	return out, nil
}

// ValidRing reports whether ring can be used as a polygon.
func ValidRing(ring orb.Ring) bool {
	_, err := NormalizeRing(ring)
	return err == nil
}
