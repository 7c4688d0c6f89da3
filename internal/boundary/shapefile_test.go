package boundary

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/parktrail/internal/geo"
)

func writeParksShapefile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "parks.shp")

	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)

	require.NoError(t, w.SetFields([]shp.Field{
		shp.StringField("NAME", 50),
		shp.StringField("LEISURE", 20),
	}))

	parks := []struct {
		name, leisure string
		ring          []shp.Point
	}{
		{"Hyde Park", "park", []shp.Point{{X: -0.187, Y: 51.503}, {X: -0.187, Y: 51.511}, {X: -0.155, Y: 51.512}, {X: -0.155, Y: 51.503}, {X: -0.187, Y: 51.503}}},
		{"Clapham Common", "common", []shp.Point{{X: -0.16, Y: 51.455}, {X: -0.16, Y: 51.462}, {X: -0.14, Y: 51.462}, {X: -0.14, Y: 51.455}, {X: -0.16, Y: 51.455}}},
	}
	for i, p := range parks {
		poly := shp.Polygon(*shp.NewPolyLine([][]shp.Point{p.ring}))
		w.Write(&poly)
		require.NoError(t, w.WriteAttribute(i, 0, p.name))
		require.NoError(t, w.WriteAttribute(i, 1, p.leisure))
	}
	w.Close()
	return path
}

func TestOpenShapefile(t *testing.T) {
	src, err := OpenShapefile(writeParksShapefile(t), "name")
	require.NoError(t, err)
	assert.Equal(t, 2, src.Len())
	assert.Equal(t, "shapefile", src.Name())

	near, err := src.Near(context.Background(), geo.LatLon{Lat: 51.507, Lon: -0.17}, 200)
	require.NoError(t, err)
	require.Len(t, near, 1)
	assert.Equal(t, "Hyde Park", near[0].Name)
	assert.Equal(t, "park", near[0].Type)
	assert.Equal(t, "shp/0", near[0].ExternalID)
	assert.Greater(t, near[0].AreaM2, 0.0)

	south := Region{Name: "lambeth", Bound: orb.Bound{Min: orb.Point{-0.2, 51.44}, Max: orb.Point{-0.1, 51.47}}}
	within, err := src.Within(context.Background(), south)
	require.NoError(t, err)
	require.Len(t, within, 1)
	assert.Equal(t, "Clapham Common", within[0].Name)
	assert.Equal(t, "common", within[0].Tags["leisure"])
}

func TestOpenShapefile_MissingNameField(t *testing.T) {
	_, err := OpenShapefile(writeParksShapefile(t), "PARK_NAME")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PARK_NAME")
}

func TestOpenShapefile_MissingFile(t *testing.T) {
	_, err := OpenShapefile(filepath.Join(t.TempDir(), "none.shp"), "NAME")
	assert.Error(t, err)
}
