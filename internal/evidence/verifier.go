package evidence

import (
	"context"
	"math"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/parktrail/internal/site"
	"github.com/sells-group/parktrail/pkg/wikidata"
)

// Summary counts the outcomes of a verification run.
type Summary struct {
	Processed  int `json:"processed"`
	Verified   int `json:"verified"`
	Unverified int `json:"unverified"`
	NoItems    int `json:"no_items"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}

// Verifier looks up alternate-source items for Sites without one.
type Verifier struct {
	store    site.Store
	client   wikidata.Client
	radiusM  float64
	minScore float64
	limiter  *rate.Limiter
}

// NewVerifier creates a Verifier. Items beyond radiusM are ignored and a
// best match scoring below minScore is not recorded, so the site is retried
// on the next run. Lookups are spaced at least delay apart.
func NewVerifier(store site.Store, client wikidata.Client, radiusM, minScore float64, delay time.Duration) *Verifier {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if delay > 0 {
		limiter = rate.NewLimiter(rate.Every(delay), 1)
	}
	return &Verifier{store: store, client: client, radiusM: radiusM, minScore: minScore, limiter: limiter}
}

// Run verifies up to limit sites in adminArea (all areas when empty).
// Per-site failures are logged and counted.
func (v *Verifier) Run(ctx context.Context, adminArea string, limit int) (Summary, error) {
	log := zap.L().With(zap.String("component", "evidence.verifier"))

	sites, err := v.store.ListForEvidence(ctx, adminArea, limit)
	if err != nil {
		return Summary{}, eris.Wrap(err, "evidence: list sites")
	}
	log.Info("verifying sites", zap.Int("count", len(sites)))

	var sum Summary
	for i := range sites {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		s := &sites[i]
		sum.Processed++

		pt, ok := s.Location()
		if !ok {
			sum.Skipped++
			continue
		}

		if err := v.limiter.Wait(ctx); err != nil {
			return sum, eris.Wrap(err, "evidence: wait")
		}

		items, err := v.client.Nearby(ctx, pt.Lat, pt.Lon, v.radiusM)
		if err != nil {
			sum.Failed++
			log.Warn("evidence lookup failed", zap.Int64("site_id", s.ID), zap.String("site_name", s.Name), zap.Error(err))
			continue
		}

		best, found := Best(s.Name, pt, v.radiusM, items)
		if !found {
			sum.NoItems++
			log.Debug("no evidence items in range", zap.Int64("site_id", s.ID), zap.String("site_name", s.Name))
			continue
		}

		score := math.Round(best.Score*1000) / 1000
		if best.Score < v.minScore {
			sum.Unverified++
			log.Debug("best evidence below threshold",
				zap.Int64("site_id", s.ID),
				zap.String("site_name", s.Name),
				zap.String("evidence_id", best.Item.ID),
				zap.Float64("score", score),
			)
			continue
		}

		u := site.EvidenceUpdate{ID: best.Item.ID, Verified: true, Score: score}
		if err := v.store.SaveEvidence(ctx, s.ID, u); err != nil {
			sum.Failed++
			log.Warn("save evidence failed", zap.Int64("site_id", s.ID), zap.Error(err))
			continue
		}

		sum.Verified++
		log.Info("site evidence recorded",
			zap.Int64("site_id", s.ID),
			zap.String("site_name", s.Name),
			zap.String("evidence_id", u.ID),
			zap.String("evidence_label", best.Item.Label),
			zap.Float64("score", u.Score),
		)
	}

	log.Info("verification complete",
		zap.Int("processed", sum.Processed),
		zap.Int("verified", sum.Verified),
		zap.Int("unverified", sum.Unverified),
		zap.Int("no_items", sum.NoItems),
		zap.Int("skipped", sum.Skipped),
		zap.Int("failed", sum.Failed),
	)
	return sum, nil
}
