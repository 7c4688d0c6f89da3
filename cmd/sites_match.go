package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/parktrail/internal/config"
	"github.com/sells-group/parktrail/internal/match"
	"github.com/sells-group/parktrail/internal/site"
)

var (
	matchArea      string
	matchLimit     int
	matchAmbiguous bool
	matchRadius    float64
)

var sitesMatchCmd = &cobra.Command{
	Use:   "match",
	Short: "Resolve unmatched sites to boundary polygons",
	Long:  "Fetches park polygons around each unresolved site, ranks them by name and distance, and records matched, ambiguous or no_match.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := openStore(ctx, "match")
		if err != nil {
			return err
		}
		defer env.Close()

		bnd, err := openBoundary(ctx, cfg.Boundary)
		if err != nil {
			return err
		}
		defer bnd.Close()

		radius := cfg.Boundary.RadiusMeters
		if matchRadius > 0 {
			radius = matchRadius
		}

		filter := site.MatchFilter{AdminArea: matchArea, Limit: matchLimit}
		if matchAmbiguous {
			filter.Statuses = []site.Status{site.StatusUnresolved, site.StatusAmbiguous}
		}

		runner := match.NewRunner(env.Sites, bnd.Fetcher, matchPolicy(cfg.Match), radius, seconds(cfg.Match.DelaySecs))
		sum, err := runner.Run(ctx, filter)
		if err != nil {
			return err
		}

		zap.L().Info("match complete",
			zap.Int("processed", sum.Processed),
			zap.Int("matched", sum.Matched),
			zap.Int("ambiguous", sum.Ambiguous),
			zap.Int("no_match", sum.NoMatch),
			zap.Int("failed", sum.Failed),
		)
		return printSummary(cmd.OutOrStdout(), sum)
	},
}

// matchPolicy overlays configured thresholds on the default policy.
func matchPolicy(mc config.MatchConfig) match.Policy {
	p := match.DefaultPolicy()
	if mc.NameThreshold > 0 {
		p.NameThreshold = mc.NameThreshold
	}
	if mc.NearNameThreshold > 0 {
		p.NearNameThreshold = mc.NearNameThreshold
	}
	if mc.NearMeters > 0 {
		p.NearMeters = mc.NearMeters
	}
	if mc.Alternatives > 0 {
		p.Alternatives = mc.Alternatives
	}
	return p
}

func init() {
	sitesMatchCmd.Flags().StringVar(&matchArea, "area", "", "only match sites in this admin area")
	sitesMatchCmd.Flags().IntVar(&matchLimit, "limit", 0, "maximum sites to process (0 = all)")
	sitesMatchCmd.Flags().BoolVar(&matchAmbiguous, "rerun-ambiguous", false, "also re-match sites left ambiguous")
	sitesMatchCmd.Flags().Float64Var(&matchRadius, "radius", 0, "search radius in meters (default from config)")
	sitesCmd.AddCommand(sitesMatchCmd)
}
