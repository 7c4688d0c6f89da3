package boundary

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/parktrail/internal/geo"
)

// Fetcher merges candidates from one or more sources, drops filtered ones,
// and removes duplicate external ids.
type Fetcher struct {
	sources []Source
	filter  Filter
}

// NewFetcher creates a Fetcher over sources, tried in order.
func NewFetcher(filter Filter, sources ...Source) *Fetcher {
	return &Fetcher{sources: sources, filter: filter}
}

// Near returns candidates around pt. A failing source is logged and
// skipped; an error is returned only if every source failed.
func (f *Fetcher) Near(ctx context.Context, pt geo.LatLon, radiusM float64) ([]Candidate, error) {
	return f.collect(func(s Source) ([]Candidate, error) {
		return s.Near(ctx, pt, radiusM)
	})
}

// Within returns candidates inside region r.
func (f *Fetcher) Within(ctx context.Context, r Region) ([]Candidate, error) {
	return f.collect(func(s Source) ([]Candidate, error) {
		return s.Within(ctx, r)
	})
}

func (f *Fetcher) collect(fetch func(Source) ([]Candidate, error)) ([]Candidate, error) {
	if len(f.sources) == 0 {
		return nil, eris.New("boundary: no candidate sources configured")
	}

	var (
		out     []Candidate
		seen    = make(map[string]bool)
		lastErr error
		failed  int
	)
	for _, src := range f.sources {
		cands, err := fetch(src)
		if err != nil {
			failed++
			lastErr = err
			zap.L().Warn("boundary: source failed", zap.String("source", src.Name()), zap.Error(err))
			continue
		}
		for _, c := range f.filter.Apply(cands) {
			if seen[c.ExternalID] {
				continue
			}
			seen[c.ExternalID] = true
			out = append(out, c)
		}
	}
	if failed == len(f.sources) {
		return nil, lastErr
	}
	return out, nil
}
