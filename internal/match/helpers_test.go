package match

import (
	"math"

	"github.com/paulmach/orb"

	"github.com/sells-group/parktrail/internal/boundary"
	"github.com/sells-group/parktrail/internal/geo"
)

const metersPerDegree = 2 * math.Pi * geo.EarthRadiusMeters / 360

var hydePark = geo.LatLon{Lat: 51.5073, Lon: -0.1657}

// offset moves p by the given distances in meters.
func offset(p geo.LatLon, northM, eastM float64) geo.LatLon {
	return geo.LatLon{
		Lat: p.Lat + northM/metersPerDegree,
		Lon: p.Lon + eastM/(metersPerDegree*math.Cos(p.Lat*math.Pi/180)),
	}
}

// squareAt returns a square ring centered on c with the given half side.
func squareAt(c geo.LatLon, halfM float64) orb.Ring {
	sw := offset(c, -halfM, -halfM)
	ne := offset(c, halfM, halfM)
	return orb.Ring{
		{sw.Lon, sw.Lat},
		{ne.Lon, sw.Lat},
		{ne.Lon, ne.Lat},
		{sw.Lon, ne.Lat},
	}
}

func cand(id, name string, c geo.LatLon, halfM float64) boundary.Candidate {
	bc, err := boundary.NewCandidate(id, name, "park", squareAt(c, halfM), map[string]string{"name": name})
	if err != nil {
		panic(err)
	}
	return bc
}
