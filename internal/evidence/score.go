// Package evidence corroborates Site locations against an alternate
// knowledge base. It never changes a Site's polygon or match status.
package evidence

import (
	"math"

	"github.com/sells-group/parktrail/internal/geo"
	"github.com/sells-group/parktrail/internal/names"
	"github.com/sells-group/parktrail/pkg/wikidata"
)

// Score weights.
const (
	nameWeight     = 0.7
	distanceWeight = 0.3
)

// Match is the best-scoring item for a Site.
type Match struct {
	Item      wikidata.Item
	NameScore float64
	DistanceM float64
	Score     float64
}

// Combined returns 0.7*nameScore + 0.3*max(0, 1 - distanceM/radiusM).
func Combined(nameScore, distanceM, radiusM float64) float64 {
	proximity := 0.0
	if radiusM > 0 {
		proximity = math.Max(0, 1-distanceM/radiusM)
	}
	return nameWeight*nameScore + distanceWeight*proximity
}

// Best scores every item within radiusM of pt against name and returns the
// highest. ok is false when no item lies within the radius.
func Best(name string, pt geo.LatLon, radiusM float64, items []wikidata.Item) (best Match, ok bool) {
	for _, it := range items {
		d := geo.DistanceMeters(pt.Lat, pt.Lon, it.Lat, it.Lon)
		if d > radiusM {
			continue
		}
		ns := names.Score(name, it.Label)
		m := Match{Item: it, NameScore: ns, DistanceM: d, Score: Combined(ns, d, radiusM)}
		if !ok || m.Score > best.Score {
			best, ok = m, true
		}
	}
	return best, ok
}
