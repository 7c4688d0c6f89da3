package boundary

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/parktrail/internal/geo"
	"github.com/sells-group/parktrail/pkg/overpass"
)

// Source yields boundary candidates from one provider. Implementations
// return every usable polygon; filtering happens in Fetcher.
type Source interface {
	Name() string
	Near(ctx context.Context, pt geo.LatLon, radiusM float64) ([]Candidate, error)
	Within(ctx context.Context, r Region) ([]Candidate, error)
}

// ParkFilters select park-like features from OpenStreetMap.
var ParkFilters = []overpass.TagFilter{
	{Key: "leisure", Values: []string{"park", "garden", "nature_reserve", "common"}},
	{Key: "landuse", Values: []string{"recreation_ground", "village_green"}},
}

// OverpassSource queries OpenStreetMap through the Overpass API.
type OverpassSource struct {
	client overpass.Client
	query  overpass.Query
}

// NewOverpassSource creates a source for the park filters with the given
// server-side timeout.
func NewOverpassSource(client overpass.Client, timeoutSecs int) *OverpassSource {
	return &OverpassSource{
		client: client,
		query:  overpass.Query{Filters: ParkFilters, TimeoutSecs: timeoutSecs},
	}
}

// Name implements Source.
func (s *OverpassSource) Name() string { return "overpass" }

// Near implements Source.
func (s *OverpassSource) Near(ctx context.Context, pt geo.LatLon, radiusM float64) ([]Candidate, error) {
	return s.run(ctx, s.query.Around(pt.Lat, pt.Lon, radiusM))
}

// Within implements Source.
func (s *OverpassSource) Within(ctx context.Context, r Region) ([]Candidate, error) {
	b := r.Bound
	return s.run(ctx, s.query.BBox(b.Min.Lat(), b.Min.Lon(), b.Max.Lat(), b.Max.Lon()))
}

func (s *OverpassSource) run(ctx context.Context, ql string) ([]Candidate, error) {
	resp, err := s.client.Query(ctx, ql)
	if err != nil {
		return nil, eris.Wrap(err, "boundary: overpass query")
	}

	out := make([]Candidate, 0, len(resp.Elements))
	malformed := 0
	for _, el := range resp.Elements {
		c, err := FromElement(el)
		if err != nil {
			malformed++
			zap.L().Debug("boundary: discarding element",
				zap.String("type", el.Type),
				zap.Int64("id", el.ID),
				zap.Error(err),
			)
			continue
		}
		out = append(out, c)
	}
	if malformed > 0 {
		zap.L().Debug("boundary: malformed elements discarded", zap.Int("count", malformed))
	}
	return out, nil
}
