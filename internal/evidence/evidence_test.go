package evidence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/parktrail/internal/geo"
	"github.com/sells-group/parktrail/internal/site"
	"github.com/sells-group/parktrail/internal/site/sitetest"
	"github.com/sells-group/parktrail/pkg/wikidata"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var hydePark = geo.LatLon{Lat: 51.5073, Lon: -0.1657}

type fakeClient struct {
	items map[geo.LatLon][]wikidata.Item
	err   error
}

func (f *fakeClient) Nearby(_ context.Context, lat, lon, _ float64) ([]wikidata.Item, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.items[geo.LatLon{Lat: lat, Lon: lon}], nil
}

func TestCombined(t *testing.T) {
	assert.InDelta(t, 1.0, Combined(1, 0, 500), 1e-9)
	assert.InDelta(t, 0.85, Combined(1, 250, 500), 1e-9)
	assert.InDelta(t, 0.7, Combined(1, 500, 500), 1e-9)
	assert.InDelta(t, 0.7, Combined(1, 800, 500), 1e-9, "proximity never goes negative")
	assert.InDelta(t, 0.3, Combined(0, 0, 500), 1e-9)
}

func TestBest(t *testing.T) {
	items := []wikidata.Item{
		{ID: "Q1", Label: "Speakers' Corner", Lat: hydePark.Lat, Lon: hydePark.Lon},
		{ID: "Q2", Label: "Hyde Park", Lat: hydePark.Lat + 0.0018, Lon: hydePark.Lon},
		{ID: "Q3", Label: "Hyde Park", Lat: hydePark.Lat + 0.01, Lon: hydePark.Lon},
	}
	m, ok := Best("Hyde Park", hydePark, 500, items)
	require.True(t, ok)
	assert.Equal(t, "Q2", m.Item.ID)
	assert.Equal(t, 1.0, m.NameScore)
	assert.InDelta(t, 200, m.DistanceM, 1)
	assert.InDelta(t, 0.7+0.3*0.6, m.Score, 0.01)

	_, ok = Best("Hyde Park", hydePark, 500, items[2:])
	assert.False(t, ok, "items beyond the radius are ignored")
}

func TestVerifier_Run(t *testing.T) {
	far := geo.LatLon{Lat: 52.0, Lon: -1.0}
	weak := geo.LatLon{Lat: 53.0, Lon: -2.0}
	broken := geo.LatLon{Lat: 54.0, Lon: -3.0}
	store := sitetest.New(
		site.Site{Name: "Hyde Park", Point: &hydePark, AdminArea: "Westminster"},
		site.Site{Name: "Lonely Meadow", Point: &far, AdminArea: "Westminster"},
		site.Site{Name: "Oak Meadow", Point: &weak, AdminArea: "Westminster"},
		site.Site{Name: "No Location", AdminArea: "Westminster"},
		site.Site{Name: "Elsewhere", Point: &broken, AdminArea: "Camden"},
	)
	client := &fakeClient{items: map[geo.LatLon][]wikidata.Item{
		hydePark: {{ID: "Q130206", Label: "Hyde Park", Lat: hydePark.Lat, Lon: hydePark.Lon}},
		weak:     {{ID: "Q77", Label: "Riverside Walk", Lat: weak.Lat + 0.004, Lon: weak.Lon}},
	}}

	v := NewVerifier(store, client, 500, 0.5, 0)
	sum, err := v.Run(context.Background(), "Westminster", 0)
	require.NoError(t, err)

	// No Location is filtered out by the store.
	assert.Equal(t, Summary{Processed: 3, Verified: 1, Unverified: 1, NoItems: 1}, sum)

	hyde := store.Site(1)
	assert.Equal(t, "Q130206", hyde.EvidenceID)
	assert.True(t, hyde.EvidenceVerified)
	assert.Equal(t, 1.0, hyde.EvidenceScore)
	assert.Equal(t, site.StatusUnresolved, hyde.Status, "evidence never changes match status")

	assert.Empty(t, store.Site(2).EvidenceID)

	oak := store.Site(3)
	assert.Empty(t, oak.EvidenceID, "a weak best match is not recorded")
	assert.False(t, oak.EvidenceVerified)
	assert.Zero(t, oak.EvidenceScore)

	assert.Empty(t, store.Site(5).EvidenceID)
}

func TestVerifier_LookupFailureContinues(t *testing.T) {
	store := sitetest.New(
		site.Site{Name: "Hyde Park", Point: &hydePark},
		site.Site{Name: "Green Park", Point: &hydePark},
	)
	v := NewVerifier(store, &fakeClient{err: errors.New("503")}, 500, 0.5, 0)
	sum, err := v.Run(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Processed)
	assert.Equal(t, 2, sum.Failed)
}

func TestVerifier_WeakMatchRetriedNextRun(t *testing.T) {
	store := sitetest.New(site.Site{Name: "Oak Meadow", Point: &hydePark})
	client := &fakeClient{items: map[geo.LatLon][]wikidata.Item{
		hydePark: {{ID: "Q77", Label: "Riverside Walk", Lat: hydePark.Lat + 0.004, Lon: hydePark.Lon}},
	}}
	v := NewVerifier(store, client, 500, 0.5, 0)

	sum, err := v.Run(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Equal(t, Summary{Processed: 1, Unverified: 1}, sum)
	assert.Zero(t, store.Writes)

	client.items[hydePark] = []wikidata.Item{{ID: "Q900", Label: "Oak Meadow", Lat: hydePark.Lat, Lon: hydePark.Lon}}
	sum, err = v.Run(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Equal(t, Summary{Processed: 1, Verified: 1}, sum)

	got := store.Site(1)
	assert.Equal(t, "Q900", got.EvidenceID)
	assert.True(t, got.EvidenceVerified)
	assert.Equal(t, 1.0, got.EvidenceScore)
}

func TestVerifier_SpacesLookups(t *testing.T) {
	a := geo.LatLon{Lat: 51.1, Lon: -0.1}
	b := geo.LatLon{Lat: 51.2, Lon: -0.2}
	store := sitetest.New(
		site.Site{Name: "Hyde Park", Point: &hydePark},
		site.Site{Name: "Alpha Green", Point: &a},
		site.Site{Name: "Beta Common", Point: &b},
	)
	v := NewVerifier(store, &fakeClient{}, 500, 0.5, 50*time.Millisecond)

	start := time.Now()
	sum, err := v.Run(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.NoItems)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestVerifier_CancelledWhileWaiting(t *testing.T) {
	store := sitetest.New(
		site.Site{Name: "Hyde Park", Point: &hydePark},
		site.Site{Name: "Green Park", Point: &hydePark},
	)
	v := NewVerifier(store, &fakeClient{}, 500, 0.5, time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	sum, err := v.Run(ctx, "", 0)
	require.Error(t, err)
	assert.Equal(t, 2, sum.Processed)
	assert.Equal(t, 1, sum.NoItems)
}
