package match

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/parktrail/internal/boundary"
	"github.com/sells-group/parktrail/internal/geo"
	"github.com/sells-group/parktrail/internal/names"
	"github.com/sells-group/parktrail/internal/site"
)

// RegionFetcher finds boundary candidates inside a region.
type RegionFetcher interface {
	Within(ctx context.Context, r boundary.Region) ([]boundary.Candidate, error)
}

// DuplicatePolicy decides when a candidate is already present as a Site.
type DuplicatePolicy struct {
	// MinOverlap is the centroid overlap score at which two polygons are
	// the same feature.
	MinOverlap float64
	// NameThreshold is the token score for names to match.
	NameThreshold float64
	// NearMeters bounds the distance for a name-only match.
	NearMeters float64
}

// DefaultDuplicatePolicy returns the standard duplicate thresholds.
func DefaultDuplicatePolicy() DuplicatePolicy {
	return DuplicatePolicy{MinOverlap: 0.5, NameThreshold: 0.7, NearMeters: 100}
}

// IsDuplicate reports whether candidate c describes the same feature as s.
func (p DuplicatePolicy) IsDuplicate(c boundary.Candidate, s *site.Site) bool {
	if s.HasPolygon() && geo.OverlapScore(c.Ring, s.Polygon) >= p.MinOverlap {
		return true
	}
	loc, ok := s.Location()
	if !ok {
		return false
	}
	if geo.DistanceMeters(loc.Lat, loc.Lon, c.Centroid.Lat(), c.Centroid.Lon()) > p.NearMeters {
		return false
	}
	return names.SameFeature(c.Name, s.Name, p.NameThreshold)
}

// DiscoverSummary counts the outcome of an import.
type DiscoverSummary struct {
	Found      int `json:"found"`
	Created    int `json:"created"`
	Duplicates int `json:"duplicates"`
	Failed     int `json:"failed"`
}

// Discoverer imports park polygons in a region as new, already matched Sites.
type Discoverer struct {
	store   site.Store
	fetcher RegionFetcher
	policy  DuplicatePolicy
}

// NewDiscoverer creates a Discoverer.
func NewDiscoverer(store site.Store, fetcher RegionFetcher, policy DuplicatePolicy) *Discoverer {
	return &Discoverer{store: store, fetcher: fetcher, policy: policy}
}

// Discover fetches every candidate in r and creates a Site for each one not
// already present. With dryRun set nothing is written.
func (d *Discoverer) Discover(ctx context.Context, r boundary.Region, dryRun bool) (DiscoverSummary, error) {
	log := zap.L().With(zap.String("component", "match.discover"), zap.String("region", r.Name))

	cands, err := d.fetcher.Within(ctx, r)
	if err != nil {
		return DiscoverSummary{}, eris.Wrapf(err, "match: fetch region %s", r.Name)
	}
	existing, err := d.store.ListInBound(ctx, r.Bound)
	if err != nil {
		return DiscoverSummary{}, eris.Wrapf(err, "match: list sites in %s", r.Name)
	}

	// Largest first so a park is kept over its own sub-features.
	byArea := make([]boundary.Candidate, len(cands))
	copy(byArea, cands)
	sort.SliceStable(byArea, func(i, j int) bool { return byArea[i].AreaM2 > byArea[j].AreaM2 })

	sum := DiscoverSummary{Found: len(cands)}
	for _, c := range byArea {
		if d.duplicate(c, existing) {
			sum.Duplicates++
			continue
		}

		s := site.Site{
			Name:         c.Name,
			AdminArea:    r.Name,
			Category:     c.Type,
			PublicAccess: c.Tags["access"] != "private",
			Polygon:      c.Ring,
			Status:       site.StatusMatched,
			MatchScore:   1.0,
			BoundaryID:   c.ExternalID,
		}
		centroid := geo.FromPoint(c.Centroid)
		s.Point = &centroid

		if !dryRun {
			id, err := d.store.Create(ctx, &s)
			if err != nil {
				sum.Failed++
				log.Warn("create site failed", zap.String("site_name", c.Name), zap.String("external_id", c.ExternalID), zap.Error(err))
				continue
			}
			s.ID = id
		}
		existing = append(existing, s)
		sum.Created++
		log.Debug("site discovered", zap.String("site_name", c.Name), zap.String("external_id", c.ExternalID))
	}

	log.Info("discovery complete",
		zap.Int("found", sum.Found),
		zap.Int("created", sum.Created),
		zap.Int("duplicates", sum.Duplicates),
		zap.Int("failed", sum.Failed),
		zap.Bool("dry_run", dryRun),
	)
	return sum, nil
}

func (d *Discoverer) duplicate(c boundary.Candidate, existing []site.Site) bool {
	for i := range existing {
		if existing[i].BoundaryID != "" && existing[i].BoundaryID == c.ExternalID {
			return true
		}
		if d.policy.IsDuplicate(c, &existing[i]) {
			return true
		}
	}
	return false
}

