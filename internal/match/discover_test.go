package match

import (
	"context"
	"errors"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/parktrail/internal/boundary"
	"github.com/sells-group/parktrail/internal/geo"
	"github.com/sells-group/parktrail/internal/site"
	"github.com/sells-group/parktrail/internal/site/sitetest"
)

type fakeRegionFetcher struct {
	cands []boundary.Candidate
	err   error
}

func (f *fakeRegionFetcher) Within(_ context.Context, _ boundary.Region) ([]boundary.Candidate, error) {
	return f.cands, f.err
}

var london = boundary.Region{Name: "London", Bound: orb.Bound{Min: orb.Point{-0.5, 51.3}, Max: orb.Point{0.3, 51.7}}}

func closedSquare(t *testing.T, c geo.LatLon, halfM float64) orb.Ring {
	t.Helper()
	r, err := geo.NormalizeRing(squareAt(c, halfM))
	require.NoError(t, err)
	return r
}

func discoverFixture(t *testing.T) (*sitetest.MemStore, *fakeRegionFetcher) {
	t.Helper()
	regents := offset(hydePark, 3000, 1000)
	store := sitetest.New(
		site.Site{Name: "Hyde Park", Polygon: closedSquare(t, hydePark, 400), Status: site.StatusMatched},
		site.Site{Name: "Regent's Park", Point: ptr(regents), BoundaryID: "way/77", Status: site.StatusMatched},
	)
	holland := offset(hydePark, 200, -3000)
	fetcher := &fakeRegionFetcher{cands: []boundary.Candidate{
		// Same polygon as the stored Hyde Park, different id.
		cand("relation/1", "Hyde Park", offset(hydePark, 20, 0), 400),
		// Known by id even though it sits somewhere else.
		cand("way/77", "Regent's Park", offset(regents, 400, 0), 300),
		// New, plus a smaller sub-feature of it that must collapse into it.
		cand("way/5", "Holland Park Gardens", holland, 30),
		cand("way/4", "Holland Park", offset(holland, 50, 0), 250),
		cand("way/9", "Brompton Cemetery", offset(hydePark, -2000, -1500), 200),
	}}
	fetcher.cands[4].Tags["access"] = "private"
	return store, fetcher
}

func TestDiscover(t *testing.T) {
	store, fetcher := discoverFixture(t)
	d := NewDiscoverer(store, fetcher, DefaultDuplicatePolicy())

	sum, err := d.Discover(context.Background(), london, false)
	require.NoError(t, err)
	assert.Equal(t, DiscoverSummary{Found: 5, Created: 2, Duplicates: 3}, sum)

	holland := store.Site(3)
	require.NotNil(t, holland)
	assert.Equal(t, "Holland Park", holland.Name)
	assert.Equal(t, "London", holland.AdminArea)
	assert.Equal(t, site.StatusMatched, holland.Status)
	assert.Equal(t, 1.0, holland.MatchScore)
	assert.Equal(t, "way/4", holland.BoundaryID)
	assert.True(t, holland.PublicAccess)
	require.NotNil(t, holland.Point)
	assert.True(t, holland.HasPolygon())

	cemetery := store.Site(4)
	require.NotNil(t, cemetery)
	assert.Equal(t, "way/9", cemetery.BoundaryID)
	assert.False(t, cemetery.PublicAccess)

	assert.Nil(t, store.Site(5))
}

func TestDiscover_DryRunWritesNothing(t *testing.T) {
	store, fetcher := discoverFixture(t)
	d := NewDiscoverer(store, fetcher, DefaultDuplicatePolicy())

	sum, err := d.Discover(context.Background(), london, true)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Created)
	assert.Equal(t, 3, sum.Duplicates)
	assert.Zero(t, store.Writes)
}

func TestDiscover_FetchError(t *testing.T) {
	store := sitetest.New()
	d := NewDiscoverer(store, &fakeRegionFetcher{err: errors.New("timeout")}, DefaultDuplicatePolicy())
	_, err := d.Discover(context.Background(), london, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "London")
}

func TestIsDuplicate(t *testing.T) {
	p := DefaultDuplicatePolicy()
	c := cand("way/1", "St James's Park", hydePark, 200)

	tests := []struct {
		name string
		site site.Site
		want bool
	}{
		{"overlapping polygon", site.Site{Name: "Anything", Polygon: closedSquare(t, offset(hydePark, 30, 0), 150)}, true},
		{"same name nearby point", site.Site{Name: "St. James's Park", Point: ptr(offset(hydePark, 60, 0))}, true},
		{"same name far away", site.Site{Name: "St James's Park", Point: ptr(offset(hydePark, 600, 0))}, false},
		{"different name nearby", site.Site{Name: "Green Park", Point: ptr(offset(hydePark, 60, 0))}, false},
		{"no location", site.Site{Name: "St James's Park"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tt.site
			assert.Equal(t, tt.want, p.IsDuplicate(c, &s))
		})
	}
}
