package site

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"

	"github.com/sells-group/parktrail/internal/geo"
)

func TestSite_Location(t *testing.T) {
	pt := geo.LatLon{Lat: 51.5073, Lon: -0.1657}
	square := orb.Ring{{-0.17, 51.50}, {-0.16, 51.50}, {-0.16, 51.52}, {-0.17, 51.52}, {-0.17, 51.50}}

	got, ok := (&Site{Point: &pt, Polygon: square}).Location()
	assert.True(t, ok)
	assert.Equal(t, pt, got, "point wins over polygon")

	got, ok = (&Site{Polygon: square}).Location()
	assert.True(t, ok)
	assert.InDelta(t, 51.51, got.Lat, 1e-9)
	assert.InDelta(t, -0.165, got.Lon, 1e-9)

	_, ok = (&Site{}).Location()
	assert.False(t, ok)
}
