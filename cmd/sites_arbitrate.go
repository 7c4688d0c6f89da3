package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/parktrail/internal/arbitration"
	"github.com/sells-group/parktrail/internal/config"
	anthropicpkg "github.com/sells-group/parktrail/pkg/anthropic"
)

var (
	arbitrateLimit  int
	arbitrateDryRun bool
)

var sitesArbitrateCmd = &cobra.Command{
	Use:   "arbitrate",
	Short: "Resolve ambiguous matches with Claude",
	Long:  "Sends each ambiguous site with its ranked alternatives to Claude and applies the decision only when its confidence clears the configured threshold; everything else goes to manual review.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := openStore(ctx, "arbitrate")
		if err != nil {
			return err
		}
		defer env.Close()

		ac := cfg.Arbitration
		claude := arbitration.NewClaude(anthropicpkg.NewClient(cfg.Anthropic.Key), cfg.Anthropic.Model, cfg.Anthropic.MaxTokens)
		runner := arbitration.NewRunner(env.Sites, claude, thresholds(ac), ac.MaxAlternatives, seconds(ac.DelaySecs))

		sum, err := runner.Run(ctx, arbitrateLimit, arbitrateDryRun)
		if err != nil {
			return err
		}

		zap.L().Info("arbitration complete",
			zap.Int("processed", sum.Processed),
			zap.Int("confirmed", sum.Confirmed),
			zap.Int("alternatives", sum.Alternatives),
			zap.Int("rejected", sum.Rejected),
			zap.Int("manual_review", sum.ManualReview),
			zap.Bool("dry_run", arbitrateDryRun),
		)
		return printSummary(cmd.OutOrStdout(), sum)
	},
}

func thresholds(ac config.ArbitrationConfig) arbitration.Thresholds {
	return arbitration.Thresholds{
		Confirm:     ac.ConfirmThreshold,
		Alternative: ac.AlternativeThreshold,
		Reject:      ac.RejectThreshold,
	}
}

func init() {
	sitesArbitrateCmd.Flags().IntVar(&arbitrateLimit, "limit", 0, "maximum sites to arbitrate (0 = all)")
	sitesArbitrateCmd.Flags().BoolVar(&arbitrateDryRun, "dry-run", false, "log decisions without saving them")
	sitesCmd.AddCommand(sitesArbitrateCmd)
}
