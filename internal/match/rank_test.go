package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/parktrail/internal/boundary"
	"github.com/sells-group/parktrail/internal/geo"
	"github.com/sells-group/parktrail/internal/site"
)

func TestRank_LargerStrongCandidateBeatsNearerSubFeature(t *testing.T) {
	park := cand("way/1", "Hyde Park", offset(hydePark, 300, 0), 187)
	corner := cand("way/2", "Hyde Park Corner Gardens", offset(hydePark, 80, 0), 22)
	require.InDelta(t, 140000, park.AreaM2, 2000)
	require.InDelta(t, 2000, corner.AreaM2, 100)

	p := DefaultPolicy()
	res := p.Rank("Hyde Park", hydePark, 500, []boundary.Candidate{corner, park})

	assert.Equal(t, site.StatusMatched, res.Status)
	require.Len(t, res.Ranked, 2)
	assert.Equal(t, "way/1", res.Top().ExternalID)
	assert.InDelta(t, 300, res.Top().DistanceM, 1)
	assert.Equal(t, 1.0, res.Top().NameScore)

	u := p.Update(res)
	assert.Equal(t, site.StatusMatched, u.Status)
	assert.Equal(t, "way/1", u.BoundaryID)
	assert.Equal(t, park.Ring, u.Polygon)
	require.Len(t, u.Alternatives, 1)
	assert.Equal(t, "way/2", u.Alternatives[0].ExternalID)
	assert.Equal(t, 0.8, u.Alternatives[0].NameScore)
}

func TestRank_DistanceIsToCentroidEvenInsideRing(t *testing.T) {
	park := cand("way/1", "Hyde Park", offset(hydePark, 100, 0), 500)
	require.True(t, geo.PointInPolygon(hydePark.Point(), park.Ring))

	res := DefaultPolicy().Rank("Hyde Park", hydePark, 500, []boundary.Candidate{park})
	require.Len(t, res.Ranked, 1)
	assert.InDelta(t, 100, res.Ranked[0].DistanceM, 1)
	assert.Equal(t, site.StatusMatched, res.Status)

	// The containing ring's centroid is beyond a 50 m radius, so it is dropped.
	res = DefaultPolicy().Rank("Hyde Park", hydePark, 50, []boundary.Candidate{park})
	assert.Empty(t, res.Ranked)
	assert.Equal(t, site.StatusNoMatch, res.Status)
}

func TestRank_NoCandidatesInRange(t *testing.T) {
	far := cand("way/1", "Hyde Park", offset(hydePark, 900, 0), 50)
	p := DefaultPolicy()
	res := p.Rank("Hyde Park", hydePark, 500, []boundary.Candidate{far})

	assert.Equal(t, site.StatusNoMatch, res.Status)
	assert.Empty(t, res.Ranked)
	assert.Nil(t, res.Top())

	u := p.Update(res)
	assert.Equal(t, site.StatusNoMatch, u.Status)
	assert.Nil(t, u.Polygon)
	assert.Empty(t, u.BoundaryID)
	assert.Empty(t, u.Alternatives)
}

func TestRank_CloseContenderIsAmbiguous(t *testing.T) {
	east := cand("way/1", "Victoria Park East", offset(hydePark, 0, 150), 100)
	west := cand("way/2", "Victoria Park West", offset(hydePark, 0, -150), 90)

	p := DefaultPolicy()
	res := p.Rank("Victoria Park", hydePark, 500, []boundary.Candidate{east, west})
	assert.Equal(t, site.StatusAmbiguous, res.Status)

	u := p.Update(res)
	assert.Equal(t, site.StatusAmbiguous, u.Status)
	assert.Nil(t, u.Polygon, "ambiguous results carry no polygon")
	assert.Equal(t, "way/1", u.BoundaryID)
	require.Len(t, u.Alternatives, 2)
	assert.Equal(t, "way/1", u.Alternatives[0].ExternalID)
	assert.NotEmpty(t, u.Alternatives[0].Ring)
}

func TestRank_WeakNamesInRangeAreAmbiguous(t *testing.T) {
	walk := cand("way/1", "Riverside Walk", offset(hydePark, 50, 0), 20)
	res := DefaultPolicy().Rank("Oak Meadow", hydePark, 500, []boundary.Candidate{walk})
	assert.Equal(t, site.StatusAmbiguous, res.Status)
}

func TestRank_AlternativesAreCapped(t *testing.T) {
	cands := []boundary.Candidate{cand("way/0", "Hyde Park", hydePark, 400)}
	for i := 1; i <= 7; i++ {
		c := cand("way/x", "Serpentine Lido", offset(hydePark, float64(i*40), 0), 10)
		c.ExternalID = "way/" + string(rune('0'+i))
		cands = append(cands, c)
	}
	p := DefaultPolicy()
	res := p.Rank("Hyde Park", hydePark, 500, cands)
	require.Equal(t, site.StatusMatched, res.Status)

	u := p.Update(res)
	assert.Len(t, u.Alternatives, p.Alternatives)
}

func TestSort_Bands(t *testing.T) {
	p := DefaultPolicy()
	cands := []boundary.Candidate{
		{ExternalID: "weak-near", NameScore: 0.6, AreaM2: 900000, DistanceM: 10},
		{ExternalID: "strong-small", NameScore: 0.75, AreaM2: 1000, DistanceM: 400},
		{ExternalID: "strong-large", NameScore: 0.8, AreaM2: 50000, DistanceM: 450},
		{ExternalID: "strong-exact", NameScore: 1.0, AreaM2: 100, DistanceM: 20},
	}
	p.Sort(cands)

	ids := make([]string, len(cands))
	for i, c := range cands {
		ids[i] = c.ExternalID
	}
	// Strong band first; within it 0.75 and 0.8 compare on area, 1.0 beats
	// 0.75 outright but is within the band of 0.8.
	assert.Equal(t, "weak-near", ids[3])
	assert.Equal(t, "strong-large", ids[0])
}

func TestSort_EqualAreaPrefersNearer(t *testing.T) {
	p := DefaultPolicy()
	cands := []boundary.Candidate{
		{ExternalID: "far", NameScore: 0.9, AreaM2: 1000, DistanceM: 300},
		{ExternalID: "near", NameScore: 0.85, AreaM2: 1000, DistanceM: 30},
	}
	p.Sort(cands)
	assert.Equal(t, "near", cands[0].ExternalID)
}

func TestSort_OutsideBandUsesNameScore(t *testing.T) {
	p := DefaultPolicy()
	cands := []boundary.Candidate{
		{ExternalID: "big", NameScore: 0.3, AreaM2: 1e6},
		{ExternalID: "named", NameScore: 0.6, AreaM2: 10},
	}
	p.Sort(cands)
	assert.Equal(t, "named", cands[0].ExternalID)
}

func TestClassify(t *testing.T) {
	p := DefaultPolicy()
	tests := []struct {
		name   string
		ranked []boundary.Candidate
		want   site.Status
	}{
		{"empty", nil, site.StatusNoMatch},
		{"strong name far away", []boundary.Candidate{{NameScore: 0.7, DistanceM: 480}}, site.StatusMatched},
		{"moderate name nearby", []boundary.Candidate{{NameScore: 0.55, DistanceM: 150}}, site.StatusMatched},
		{"moderate name too far", []boundary.Candidate{{NameScore: 0.55, DistanceM: 250}}, site.StatusAmbiguous},
		{"weak name on top", []boundary.Candidate{{NameScore: 0.4, DistanceM: 0}}, site.StatusAmbiguous},
		{"runner-up within gap", []boundary.Candidate{{NameScore: 0.9}, {NameScore: 0.85}}, site.StatusAmbiguous},
		{"runner-up outside gap", []boundary.Candidate{{NameScore: 0.9}, {NameScore: 0.75}}, site.StatusMatched},
		{"weak runner-up ignored", []boundary.Candidate{{NameScore: 0.55, DistanceM: 10}, {NameScore: 0.45}}, site.StatusMatched},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Classify(tt.ranked))
		})
	}
}

func TestSummarize_Rounds(t *testing.T) {
	a := Summarize(boundary.Candidate{ExternalID: "way/9", Name: "X", AreaM2: 1234.56, DistanceM: 78.9, NameScore: 0.66666})
	assert.Equal(t, 1235.0, a.AreaM2)
	assert.Equal(t, 79.0, a.DistanceM)
	assert.Equal(t, 0.667, a.NameScore)
	assert.Nil(t, a.Tags)
}

func TestSummarize_TrimsTags(t *testing.T) {
	a := Summarize(boundary.Candidate{ExternalID: "way/9", Name: "Hyde Park", Tags: map[string]string{
		"name":     "Hyde Park",
		"leisure":  "park",
		"operator": "The Royal Parks",
		"wikidata": "Q130206",
		"source":   "survey",
		"access":   "",
	}})
	assert.Equal(t, map[string]string{
		"leisure":  "park",
		"operator": "The Royal Parks",
		"wikidata": "Q130206",
	}, a.Tags)
}
