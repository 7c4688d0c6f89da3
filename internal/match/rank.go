// Package match resolves Sites to boundary polygons.
package match

import (
	"math"
	"sort"

	"github.com/sells-group/parktrail/internal/boundary"
	"github.com/sells-group/parktrail/internal/geo"
	"github.com/sells-group/parktrail/internal/names"
	"github.com/sells-group/parktrail/internal/site"
)

// Policy holds the ranking and classification thresholds.
type Policy struct {
	// NameThreshold is the name score that matches on its own, and the
	// boundary of the preferred sort band.
	NameThreshold float64
	// NearNameThreshold is the weaker name score that matches when the
	// candidate is within NearMeters.
	NearNameThreshold float64
	NearMeters        float64
	// BandWidth is the name score difference under which polygon area
	// decides the order.
	BandWidth float64
	// ContenderGap: a runner-up scoring at least NearNameThreshold and
	// within ContenderGap of the top name score makes the match ambiguous.
	ContenderGap float64
	// Alternatives is the number of runner-ups kept on a Site.
	Alternatives int
}

// DefaultPolicy returns the standard thresholds.
func DefaultPolicy() Policy {
	return Policy{
		NameThreshold:     0.7,
		NearNameThreshold: 0.5,
		NearMeters:        200,
		BandWidth:         0.2,
		ContenderGap:      0.1,
		Alternatives:      4,
	}
}

// Result is the outcome of ranking candidates for one Site.
type Result struct {
	Status site.Status
	// Ranked holds the in-radius candidates, best first.
	Ranked []boundary.Candidate
}

// Top returns the best candidate, or nil when there is none.
func (r Result) Top() *boundary.Candidate {
	if len(r.Ranked) == 0 {
		return nil
	}
	return &r.Ranked[0]
}

// Distance returns the haversine distance from pt to the bbox centroid of
// c. Containment is not considered, so a point inside a large ring can
// still be far from it.
func Distance(pt geo.LatLon, c boundary.Candidate) float64 {
	return geo.DistanceMeters(pt.Lat, pt.Lon, c.Centroid.Lat(), c.Centroid.Lon())
}

// Rank scores every candidate against the Site name and location, drops
// those beyond radiusM, sorts the rest and classifies the outcome.
func (p Policy) Rank(name string, pt geo.LatLon, radiusM float64, cands []boundary.Candidate) Result {
	ranked := make([]boundary.Candidate, 0, len(cands))
	for _, c := range cands {
		c.DistanceM = Distance(pt, c)
		if c.DistanceM > radiusM {
			continue
		}
		c.NameScore = names.Score(name, c.Name)
		ranked = append(ranked, c)
	}
	p.Sort(ranked)
	return Result{Status: p.Classify(ranked), Ranked: ranked}
}

// Sort orders candidates in place:
//   - name score at or above NameThreshold before those below, regardless
//     of distance;
//   - within BandWidth of each other, larger area first, then nearer;
//   - otherwise higher name score first.
//
// The band rule is not transitive, so the order of equal-ranked inputs is
// preserved with a stable sort.
func (p Policy) Sort(cands []boundary.Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		aStrong, bStrong := a.NameScore >= p.NameThreshold, b.NameScore >= p.NameThreshold
		if aStrong != bStrong {
			return aStrong
		}
		if math.Abs(a.NameScore-b.NameScore) < p.BandWidth {
			if a.AreaM2 != b.AreaM2 {
				return a.AreaM2 > b.AreaM2
			}
			return a.DistanceM < b.DistanceM
		}
		return a.NameScore > b.NameScore
	})
}

// Classify assigns a status to an already sorted candidate list.
func (p Policy) Classify(ranked []boundary.Candidate) site.Status {
	if len(ranked) == 0 {
		return site.StatusNoMatch
	}

	top := ranked[0]
	strong := top.NameScore >= p.NameThreshold ||
		(top.DistanceM <= p.NearMeters && top.NameScore >= p.NearNameThreshold)
	if !strong {
		return site.StatusAmbiguous
	}

	for _, c := range ranked[1:] {
		if c.NameScore >= p.NearNameThreshold && c.NameScore >= top.NameScore-p.ContenderGap {
			return site.StatusAmbiguous
		}
	}
	return site.StatusMatched
}

// Update converts a result into the store write for it. Matched results
// carry the top polygon and up to Alternatives runner-ups. Ambiguous
// results record the top candidate's id and score without a polygon and keep
// it among the alternatives so arbitration can apply it.
func (p Policy) Update(r Result) site.MatchUpdate {
	u := site.MatchUpdate{Status: r.Status}
	top := r.Top()
	if top == nil {
		return u
	}

	u.Score = top.NameScore
	u.BoundaryID = top.ExternalID

	switch r.Status {
	case site.StatusMatched:
		u.Polygon = top.Ring
		u.Alternatives = alternatives(r.Ranked[1:], p.Alternatives)
	default:
		u.Alternatives = alternatives(r.Ranked, p.Alternatives+1)
	}
	return u
}

func alternatives(cands []boundary.Candidate, n int) []site.Alternative {
	if len(cands) > n {
		cands = cands[:n]
	}
	out := make([]site.Alternative, 0, len(cands))
	for _, c := range cands {
		out = append(out, Summarize(c))
	}
	return out
}

// Summarize converts a candidate into the form stored on a Site.
func Summarize(c boundary.Candidate) site.Alternative {
	return site.Alternative{
		ExternalID: c.ExternalID,
		Name:       c.Name,
		Type:       c.Type,
		AreaM2:     math.Round(c.AreaM2),
		DistanceM:  math.Round(c.DistanceM),
		NameScore:  math.Round(c.NameScore*1000) / 1000,
		Ring:       c.Ring,
		Tags:       trimTags(c.Tags),
	}
}

// summaryTags are the candidate tags kept on an Alternative.
var summaryTags = []string{
	"leisure", "landuse", "boundary", "access", "operator", "designation",
	"protect_class", "official_name", "alt_name", "old_name", "wikidata",
}

func trimTags(tags map[string]string) map[string]string {
	var out map[string]string
	for _, k := range summaryTags {
		v := tags[k]
		if v == "" {
			continue
		}
		if out == nil {
			out = make(map[string]string)
		}
		out[k] = v
	}
	return out
}
