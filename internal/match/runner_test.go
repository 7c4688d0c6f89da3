package match

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/parktrail/internal/boundary"
	"github.com/sells-group/parktrail/internal/geo"
	"github.com/sells-group/parktrail/internal/site"
	"github.com/sells-group/parktrail/internal/site/sitetest"
)

type fakeFetcher struct {
	cands []boundary.Candidate
	fail  map[geo.LatLon]error
	calls int
}

func (f *fakeFetcher) Near(_ context.Context, pt geo.LatLon, _ float64) ([]boundary.Candidate, error) {
	f.calls++
	if err := f.fail[pt]; err != nil {
		return nil, err
	}
	return f.cands, nil
}

func ptr(p geo.LatLon) *geo.LatLon { return &p }

func TestRunner_Run(t *testing.T) {
	elsewhere := offset(hydePark, 5000, 0)
	broken := offset(hydePark, 0, 5000)
	store := sitetest.New(
		site.Site{Name: "Hyde Park", Point: ptr(hydePark)},
		site.Site{Name: "Nowhere Green"},
		site.Site{Name: "Lonely Common", Point: ptr(elsewhere)},
		site.Site{Name: "Broken Fields", Point: ptr(broken)},
		site.Site{Name: "Already Done", Point: ptr(hydePark), Status: site.StatusMatched},
	)
	fetcher := &fakeFetcher{
		cands: []boundary.Candidate{
			cand("way/1", "Hyde Park", offset(hydePark, 300, 0), 187),
			cand("way/2", "Hyde Park Corner Gardens", offset(hydePark, 80, 0), 22),
		},
		fail: map[geo.LatLon]error{broken: errors.New("overpass unavailable")},
	}

	r := NewRunner(store, fetcher, DefaultPolicy(), 500, 0)
	sum, err := r.Run(context.Background(), site.MatchFilter{})
	require.NoError(t, err)

	assert.Equal(t, Summary{Processed: 4, Matched: 1, NoMatch: 1, Skipped: 1, Failed: 1}, sum)
	assert.Equal(t, 3, fetcher.calls)

	hyde := store.Site(1)
	assert.Equal(t, site.StatusMatched, hyde.Status)
	assert.Equal(t, "way/1", hyde.BoundaryID)
	assert.True(t, hyde.HasPolygon())
	assert.Len(t, hyde.Alternatives, 1)

	assert.Equal(t, site.StatusUnresolved, store.Site(2).Status)

	lonely := store.Site(3)
	assert.Equal(t, site.StatusNoMatch, lonely.Status)
	assert.Nil(t, lonely.Polygon)

	assert.Equal(t, site.StatusUnresolved, store.Site(4).Status)
}

func TestRunner_RerunAmbiguous(t *testing.T) {
	store := sitetest.New(
		site.Site{Name: "Victoria Park", Point: ptr(hydePark), Status: site.StatusAmbiguous},
		site.Site{Name: "Hyde Park", Point: ptr(hydePark)},
	)
	fetcher := &fakeFetcher{cands: []boundary.Candidate{cand("way/1", "Victoria Park", hydePark, 100)}}

	r := NewRunner(store, fetcher, DefaultPolicy(), 500, 0)
	sum, err := r.Run(context.Background(), site.MatchFilter{Statuses: []site.Status{site.StatusAmbiguous}})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Processed)
	assert.Equal(t, 1, sum.Matched)
	assert.Equal(t, site.StatusMatched, store.Site(1).Status)
}

func TestRunner_RerunDropsStalePolygon(t *testing.T) {
	store := sitetest.New(site.Site{
		Name:       "Victoria Park",
		Point:      ptr(hydePark),
		Polygon:    closedSquare(t, hydePark, 100),
		BoundaryID: "way/1",
		Status:     site.StatusAmbiguous,
	})

	r := NewRunner(store, &fakeFetcher{}, DefaultPolicy(), 500, 0)
	sum, err := r.Run(context.Background(), site.MatchFilter{Statuses: []site.Status{site.StatusAmbiguous}})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.NoMatch)

	got := store.Site(1)
	assert.Equal(t, site.StatusNoMatch, got.Status)
	assert.Nil(t, got.Polygon)
	assert.Empty(t, got.BoundaryID)
}

func TestRunner_SaveFailureIsCounted(t *testing.T) {
	store := sitetest.New(site.Site{Name: "Hyde Park", Point: ptr(hydePark)})
	store.Fail[1] = errors.New("connection reset")
	fetcher := &fakeFetcher{cands: []boundary.Candidate{cand("way/1", "Hyde Park", hydePark, 100)}}

	sum, err := NewRunner(store, fetcher, DefaultPolicy(), 500, 0).Run(context.Background(), site.MatchFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 0, sum.Matched)
}

func TestRunner_CancelledContext(t *testing.T) {
	store := sitetest.New(site.Site{Name: "Hyde Park", Point: ptr(hydePark)})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRunner(store, &fakeFetcher{}, DefaultPolicy(), 500, 0).Run(ctx, site.MatchFilter{})
	assert.ErrorIs(t, err, context.Canceled)
}
