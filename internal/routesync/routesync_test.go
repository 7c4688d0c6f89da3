package routesync

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/parktrail/internal/geo"
	"github.com/sells-group/parktrail/internal/site"
	"github.com/sells-group/parktrail/internal/site/sitetest"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestDecode_ReferenceVector(t *testing.T) {
	path, err := Decode("_p~iF~ps|U")
	require.NoError(t, err)
	require.Len(t, path, 1)
	assert.InDelta(t, 38.5, path[0].Lat, 1e-9)
	assert.InDelta(t, -120.2, path[0].Lon, 1e-9)

	path, err = Decode("_p~iF~ps|U_ulLnnqC_mqNvxq`@")
	require.NoError(t, err)
	want := []geo.LatLon{{Lat: 38.5, Lon: -120.2}, {Lat: 40.7, Lon: -120.95}, {Lat: 43.252, Lon: -126.453}}
	require.Len(t, path, len(want))
	for i := range want {
		assert.InDelta(t, want[i].Lat, path[i].Lat, 1e-9)
		assert.InDelta(t, want[i].Lon, path[i].Lon, 1e-9)
	}
}

func TestDecode_Invalid(t *testing.T) {
	_, err := Decode("_p~iF")
	assert.Error(t, err)
}

func TestEncode_RoundTrip(t *testing.T) {
	path := []geo.LatLon{{Lat: 38.5, Lon: -120.2}, {Lat: 40.7, Lon: -120.95}, {Lat: 43.252, Lon: -126.453}}
	assert.Equal(t, "_p~iF~ps|U_ulLnnqC_mqNvxq`@", Encode(path))
}

var (
	parkA = orb.Ring{{-120.21, 38.49}, {-120.19, 38.49}, {-120.19, 38.51}, {-120.21, 38.51}, {-120.21, 38.49}}
	parkB = orb.Ring{{-121.01, 40.69}, {-120.99, 40.69}, {-120.99, 40.71}, {-121.01, 40.71}, {-121.01, 40.69}}
)

func ptr(p geo.LatLon) *geo.LatLon { return &p }

func fixture() *sitetest.MemStore {
	return sitetest.New(
		site.Site{Name: "Park A", Polygon: parkA},
		site.Site{Name: "Park B", Polygon: parkB},
		site.Site{Name: "Monument", Point: ptr(geo.LatLon{Lat: 40.7004, Lon: -120.95})},
		site.Site{Name: "Far Monument", Point: ptr(geo.LatLon{Lat: 41, Lon: -120})},
		site.Site{Name: "Unknown"},
		site.Site{Name: "Broken Polygon", PolygonInvalid: true, Point: ptr(geo.LatLon{Lat: 43.252, Lon: -126.453})},
	)
}

const reference = "_p~iF~ps|U_ulLnnqC_mqNvxq`@"

func TestSync(t *testing.T) {
	store := fixture()
	at := time.Date(2026, 5, 1, 8, 30, 0, 0, time.UTC)
	var states []State
	e := NewEngine(store, DefaultOptions(),
		WithClock(func() time.Time { return at }),
		WithStateHook(func(s State) { states = append(states, s) }),
	)

	res, err := e.Sync(context.Background(), []string{reference, "not a polyline"})
	require.NoError(t, err)

	assert.Equal(t, []State{Decoding, Scanning, Persisting, Done}, states)
	assert.NotEqual(t, uuid.Nil, res.RunID)
	assert.Equal(t, 1, res.Routes)
	assert.Equal(t, 1, res.BadRoutes)
	// Far Monument lies outside the route's padded bounds and Unknown has
	// no location, so neither is loaded.
	assert.Equal(t, 4, res.Scanned)
	assert.Equal(t, 0, res.Skipped)
	assert.Equal(t, 1, res.Malformed)
	assert.ElementsMatch(t, []Hit{{ID: 1, Name: "Park A"}, {ID: 3, Name: "Monument"}, {ID: 6, Name: "Broken Polygon"}}, res.Intersected)
	assert.Equal(t, "Completed 3 new sites across 1 route(s).", res.Message)

	a := store.Site(1)
	assert.True(t, a.Completed)
	require.NotNil(t, a.CompletedAt)
	assert.Equal(t, at, *a.CompletedAt)

	// Park B is off the route.
	assert.False(t, store.Site(2).Completed)
	assert.False(t, store.Site(4).Completed)
}

func TestSync_Idempotent(t *testing.T) {
	store := fixture()
	e := NewEngine(store, DefaultOptions())

	first, err := e.Sync(context.Background(), []string{reference})
	require.NoError(t, err)
	require.Len(t, first.Intersected, 3)

	completed := func() map[int64]time.Time {
		out := map[int64]time.Time{}
		for id := int64(1); id <= 6; id++ {
			if s := store.Site(id); s.Completed {
				out[id] = *s.CompletedAt
			}
		}
		return out
	}
	before := completed()

	second, err := e.Sync(context.Background(), []string{reference})
	require.NoError(t, err)
	assert.Empty(t, second.Intersected)
	assert.Equal(t, "No new sites visited across 1 route(s).", second.Message)
	assert.Equal(t, before, completed())
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestSync_DensifyCatchesEdgeClip(t *testing.T) {
	store := fixture()
	e := NewEngine(store, Options{ProximityM: 100, DensifyM: 200})

	// Both vertices lie outside B; only interpolated samples land inside.
	route := Encode([]geo.LatLon{{Lat: 40.70, Lon: -121.05}, {Lat: 40.70, Lon: -120.95}})
	res, err := e.Sync(context.Background(), []string{route})
	require.NoError(t, err)
	assert.Contains(t, res.Intersected, Hit{ID: 2, Name: "Park B"})
}

func TestSync_Bounds(t *testing.T) {
	store := fixture()
	e := NewEngine(store, Options{MaxSites: 1, MaxRoutes: 1, ProximityM: 100})

	res, err := e.Sync(context.Background(), []string{reference, reference})
	require.NoError(t, err)
	assert.True(t, res.Truncated)
	assert.Equal(t, 1, res.Routes)
	assert.Equal(t, 1, res.Scanned)
	assert.Equal(t, []Hit{{ID: 1, Name: "Park A"}}, res.Intersected)
}

func TestSync_SiteBeyondCapStillCompletes(t *testing.T) {
	store := sitetest.New(
		site.Site{Name: "Faraway A", Point: ptr(geo.LatLon{Lat: 10, Lon: 10})},
		site.Site{Name: "Faraway B", Point: ptr(geo.LatLon{Lat: 11, Lon: 11})},
		site.Site{Name: "Target", Point: ptr(geo.LatLon{Lat: 38.5, Lon: -120.2})},
	)
	e := NewEngine(store, Options{MaxSites: 2, ProximityM: 100})

	res, err := e.Sync(context.Background(), []string{"_p~iF~ps|U"})
	require.NoError(t, err)
	assert.Equal(t, []Hit{{ID: 3, Name: "Target"}}, res.Intersected)
	assert.Equal(t, 1, res.Scanned)
	assert.False(t, res.SiteLimit)
	assert.True(t, store.Site(3).Completed)
	assert.False(t, store.Site(1).Completed)
}

func TestSync_SiteLimitAcrossRoutes(t *testing.T) {
	store := fixture()
	e := NewEngine(store, Options{MaxSites: 1, ProximityM: 100})

	// Two routes each near a different park; the cap is reached on the first.
	toA := Encode([]geo.LatLon{{Lat: 38.5, Lon: -120.2}})
	toB := Encode([]geo.LatLon{{Lat: 40.7, Lon: -121.0}})
	res, err := e.Sync(context.Background(), []string{toA, toB})
	require.NoError(t, err)
	assert.True(t, res.SiteLimit)
	assert.Equal(t, []Hit{{ID: 1, Name: "Park A"}}, res.Intersected)
}

func TestScan_SkipsSitesWithoutLocation(t *testing.T) {
	e := NewEngine(sitetest.New(), DefaultOptions())
	var res Result
	hits := e.scan([]site.Site{{ID: 9, Name: "Unknown", PolygonInvalid: true}}, [][]geo.LatLon{{{Lat: 0, Lon: 0}}}, &res, zap.NewNop())
	assert.Empty(t, hits)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Malformed)
}

func TestSync_NoRoutes(t *testing.T) {
	store := fixture()
	res, err := NewEngine(store, DefaultOptions()).Sync(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "No routes to process.", res.Message)
	assert.NotNil(t, res.Intersected)
	assert.Zero(t, store.Writes)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "scanning", Scanning.String())
	assert.Equal(t, "state(9)", State(9).String())
}
