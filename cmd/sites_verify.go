package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/parktrail/internal/evidence"
	"github.com/sells-group/parktrail/internal/resilience"
	"github.com/sells-group/parktrail/pkg/wikidata"
)

var (
	verifyArea  string
	verifyLimit int
)

var sitesVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Cross-check sites against Wikidata",
	Long:  "Looks up Wikidata items near each site without evidence and records the best match id and score when it clears the minimum score. Polygons and match status are never changed.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := openStore(ctx, "verify")
		if err != nil {
			return err
		}
		defer env.Close()

		ec := cfg.Evidence
		client := wikidata.NewClient(
			wikidata.WithBaseURL(ec.SPARQLURL),
			wikidata.WithUserAgent(ec.UserAgent),
			wikidata.WithMinInterval(seconds(ec.DelaySecs)),
			wikidata.WithRetry(resilience.FixedRetryConfig(cfg.Boundary.Retries, cfg.Boundary.RetryDelay())),
		)

		v := evidence.NewVerifier(env.Sites, client, ec.RadiusMeters, ec.MinScore, seconds(ec.DelaySecs))
		sum, err := v.Run(ctx, verifyArea, verifyLimit)
		if err != nil {
			return err
		}

		zap.L().Info("verify complete",
			zap.Int("processed", sum.Processed),
			zap.Int("verified", sum.Verified),
			zap.Int("unverified", sum.Unverified),
			zap.Int("failed", sum.Failed),
		)
		return printSummary(cmd.OutOrStdout(), sum)
	},
}

func init() {
	sitesVerifyCmd.Flags().StringVar(&verifyArea, "area", "", "only verify sites in this admin area")
	sitesVerifyCmd.Flags().IntVar(&verifyLimit, "limit", 0, "maximum sites to process (0 = all)")
	sitesCmd.AddCommand(sitesVerifyCmd)
}
