// Package boundary fetches park boundary candidates from open geodata.
package boundary

import (
	"fmt"

	"github.com/paulmach/orb"

	"github.com/sells-group/parktrail/internal/geo"
	"github.com/sells-group/parktrail/pkg/overpass"
)

// Candidate is a polygon that might be the boundary of a Site. It lives for
// one matching operation; only summaries survive as Site alternatives.
type Candidate struct {
	ExternalID string
	Name       string
	Type       string
	Ring       orb.Ring
	AreaM2     float64
	// Centroid is the bbox midpoint of Ring.
	Centroid orb.Point
	Tags     map[string]string

	// Filled in by ranking.
	DistanceM float64
	NameScore float64
}

// NewCandidate validates ring and derives area and centroid.
func NewCandidate(id, name, typ string, ring orb.Ring, tags map[string]string) (Candidate, error) {
	closed, err := geo.NormalizeRing(ring)
	if err != nil {
		return Candidate{}, err
	}
	return Candidate{
		ExternalID: id,
		Name:       name,
		Type:       typ,
		Ring:       closed,
		AreaM2:     geo.Area(closed),
		Centroid:   geo.Centroid(closed),
		Tags:       tags,
	}, nil
}

// typeTags are consulted in order for a candidate's type.
var typeTags = []string{"leisure", "landuse", "boundary"}

// FromElement converts an Overpass way or relation into a Candidate. Way
// geometry becomes the ring directly; relation members with role "outer"
// are concatenated in member order. The ring is closed if needed.
func FromElement(el overpass.Element) (Candidate, error) {
	var ring orb.Ring
	switch el.Type {
	case "way":
		ring = appendGeometry(ring, el.Geometry)
	case "relation":
		for _, m := range el.Members {
			if m.Role != "outer" {
				continue
			}
			ring = appendGeometry(ring, m.Geometry)
		}
	default:
		return Candidate{}, &geo.MalformedGeometryError{Reason: "unsupported element type " + el.Type}
	}

	typ := ""
	for _, k := range typeTags {
		if v := el.Tags[k]; v != "" {
			typ = v
			break
		}
	}

	return NewCandidate(fmt.Sprintf("%s/%d", el.Type, el.ID), el.Tags["name"], typ, ring, el.Tags)
}

// appendGeometry adds vertices to ring, skipping a vertex equal to the
// current last one so joined member ways do not repeat their shared node.
func appendGeometry(ring orb.Ring, pts []overpass.LatLng) orb.Ring {
	for _, p := range pts {
		pt := orb.Point{p.Lon, p.Lat}
		if n := len(ring); n > 0 && ring[n-1] == pt {
			continue
		}
		ring = append(ring, pt)
	}
	return ring
}
