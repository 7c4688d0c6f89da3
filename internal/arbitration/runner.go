package arbitration

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/parktrail/internal/site"
)

// Summary counts the outcomes of an arbitration run.
type Summary struct {
	Processed    int `json:"processed"`
	Confirmed    int `json:"confirmed"`
	Alternatives int `json:"alternatives"`
	Rejected     int `json:"rejected"`
	ManualReview int `json:"manual_review"`
	Skipped      int `json:"skipped"`
	Failed       int `json:"failed"`
}

// Runner arbitrates ambiguous sites one at a time.
type Runner struct {
	store      site.Store
	arbitrator Arbitrator
	thresholds Thresholds
	maxAlts    int
	limiter    *rate.Limiter
}

// NewRunner creates a Runner. delay spaces arbitration calls; zero
// disables it.
func NewRunner(store site.Store, arb Arbitrator, t Thresholds, maxAlts int, delay time.Duration) *Runner {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if delay > 0 {
		limiter = rate.NewLimiter(rate.Every(delay), 1)
	}
	return &Runner{store: store, arbitrator: arb, thresholds: t, maxAlts: maxAlts, limiter: limiter}
}

// Run arbitrates up to limit ambiguous sites. With dryRun set decisions are
// logged but not saved.
func (r *Runner) Run(ctx context.Context, limit int, dryRun bool) (Summary, error) {
	log := zap.L().With(zap.String("component", "arbitration.runner"))

	sites, err := r.store.ListAmbiguous(ctx, limit)
	if err != nil {
		return Summary{}, eris.Wrap(err, "arbitration: list sites")
	}
	log.Info("arbitrating sites", zap.Int("count", len(sites)), zap.Bool("dry_run", dryRun))

	var sum Summary
	for i := range sites {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		s := &sites[i]
		sum.Processed++

		req, ok := NewRequest(s, r.maxAlts)
		if !ok {
			sum.Skipped++
			log.Debug("skipping site without location or alternatives", zap.Int64("site_id", s.ID))
			continue
		}

		if err := r.limiter.Wait(ctx); err != nil {
			return sum, eris.Wrap(err, "arbitration: wait")
		}
		d, err := r.arbitrator.Decide(ctx, req)
		if err != nil {
			sum.Failed++
			log.Warn("arbitration failed", zap.Int64("site_id", s.ID), zap.String("site_name", s.Name), zap.Error(err))
			continue
		}

		out := r.thresholds.Gate(d, req)
		fields := []zap.Field{
			zap.Int64("site_id", s.ID),
			zap.String("site_name", s.Name),
			zap.String("recommendation", string(d.Recommendation)),
			zap.Int("confidence", d.Confidence),
			zap.String("status", string(out.Update.Status)),
		}
		if out.Reason != "" {
			fields = append(fields, zap.String("reason", out.Reason))
		}

		if !dryRun {
			if err := r.store.SaveArbitration(ctx, s.ID, out.Update); err != nil {
				sum.Failed++
				log.Warn("save arbitration failed", append(fields, zap.Error(err))...)
				continue
			}
		}

		switch {
		case !out.Applied:
			sum.ManualReview++
		case out.Update.Status == site.StatusRejected:
			sum.Rejected++
		case out.Update.BoundaryID == s.BoundaryID:
			sum.Confirmed++
		default:
			sum.Alternatives++
		}
		log.Info("site arbitrated", fields...)
	}

	log.Info("arbitration complete",
		zap.Int("processed", sum.Processed),
		zap.Int("confirmed", sum.Confirmed),
		zap.Int("alternatives", sum.Alternatives),
		zap.Int("rejected", sum.Rejected),
		zap.Int("manual_review", sum.ManualReview),
		zap.Int("skipped", sum.Skipped),
		zap.Int("failed", sum.Failed),
	)
	return sum, nil
}
