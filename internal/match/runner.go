package match

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/parktrail/internal/boundary"
	"github.com/sells-group/parktrail/internal/geo"
	"github.com/sells-group/parktrail/internal/site"
)

// CandidateFetcher finds boundary candidates around a point.
type CandidateFetcher interface {
	Near(ctx context.Context, pt geo.LatLon, radiusM float64) ([]boundary.Candidate, error)
}

// Summary counts the outcomes of a batch run.
type Summary struct {
	Processed int `json:"processed"`
	Matched   int `json:"matched"`
	Ambiguous int `json:"ambiguous"`
	NoMatch   int `json:"no_match"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// Runner matches Sites one at a time against fetched candidates.
type Runner struct {
	store   site.Store
	fetcher CandidateFetcher
	policy  Policy
	radiusM float64
	limiter *rate.Limiter
}

// NewRunner creates a Runner. delay is the minimum spacing between
// candidate fetches; zero disables it.
func NewRunner(store site.Store, fetcher CandidateFetcher, policy Policy, radiusM float64, delay time.Duration) *Runner {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if delay > 0 {
		limiter = rate.NewLimiter(rate.Every(delay), 1)
	}
	return &Runner{
		store:   store,
		fetcher: fetcher,
		policy:  policy,
		radiusM: radiusM,
		limiter: limiter,
	}
}

// Run matches every site selected by f. Failures on one site are logged and
// counted; only a failure to list sites or a cancelled context stops the run.
func (r *Runner) Run(ctx context.Context, f site.MatchFilter) (Summary, error) {
	log := zap.L().With(zap.String("component", "match.runner"))

	sites, err := r.store.ListForMatching(ctx, f)
	if err != nil {
		return Summary{}, eris.Wrap(err, "match: list sites")
	}
	log.Info("matching sites", zap.Int("count", len(sites)), zap.Float64("radius_m", r.radiusM))

	var sum Summary
	for i := range sites {
		if err := ctx.Err(); err != nil {
			log.Warn("match run interrupted", zap.Int("processed", sum.Processed))
			return sum, err
		}
		s := &sites[i]
		sum.Processed++

		status, err := r.MatchSite(ctx, s)
		switch {
		case errors.Is(err, errNoLocation):
			sum.Skipped++
			log.Debug("skipping site without location", zap.Int64("site_id", s.ID), zap.String("site_name", s.Name))
			continue
		case err != nil:
			sum.Failed++
			log.Warn("site match failed", zap.Int64("site_id", s.ID), zap.String("site_name", s.Name), zap.Error(err))
			continue
		}

		switch status {
		case site.StatusMatched:
			sum.Matched++
		case site.StatusAmbiguous:
			sum.Ambiguous++
		case site.StatusNoMatch:
			sum.NoMatch++
		}
		log.Info("site matched",
			zap.Int64("site_id", s.ID),
			zap.String("site_name", s.Name),
			zap.String("status", string(status)),
		)
	}

	log.Info("match run complete",
		zap.Int("processed", sum.Processed),
		zap.Int("matched", sum.Matched),
		zap.Int("ambiguous", sum.Ambiguous),
		zap.Int("no_match", sum.NoMatch),
		zap.Int("skipped", sum.Skipped),
		zap.Int("failed", sum.Failed),
	)
	return sum, nil
}

var errNoLocation = eris.New("match: site has no location")

// MatchSite fetches, ranks and persists candidates for one site.
func (r *Runner) MatchSite(ctx context.Context, s *site.Site) (site.Status, error) {
	pt, ok := s.Location()
	if !ok {
		return "", errNoLocation
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return "", eris.Wrap(err, "match: wait")
	}
	cands, err := r.fetcher.Near(ctx, pt, r.radiusM)
	if err != nil {
		return "", eris.Wrapf(err, "match: fetch candidates for site %d", s.ID)
	}

	res := r.policy.Rank(s.Name, pt, r.radiusM, cands)
	if err := r.store.SaveMatch(ctx, s.ID, r.policy.Update(res)); err != nil {
		return "", err
	}
	return res.Status, nil
}
