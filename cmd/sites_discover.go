package main

import (
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/parktrail/internal/boundary"
	"github.com/sells-group/parktrail/internal/config"
	"github.com/sells-group/parktrail/internal/match"
)

var (
	discoverRegions []string
	discoverDryRun  bool
)

var sitesDiscoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Import park polygons in a region as new sites",
	Long:  "Fetches every park polygon inside the named regions and creates a matched site for each one that is not already present.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		regions, err := boundary.LoadRegions(cfg.Boundary)
		if err != nil {
			return err
		}
		selected, err := selectRegions(regions, discoverRegions)
		if err != nil {
			return err
		}

		env, err := openStore(ctx, "discover")
		if err != nil {
			return err
		}
		defer env.Close()

		bnd, err := openBoundary(ctx, cfg.Boundary)
		if err != nil {
			return err
		}
		defer bnd.Close()

		d := match.NewDiscoverer(env.Sites, bnd.Fetcher, duplicatePolicy(cfg.Match))

		var total match.DiscoverSummary
		for _, r := range selected {
			sum, err := d.Discover(ctx, r, discoverDryRun)
			if err != nil {
				// One failed region does not stop the others.
				zap.L().Warn("discover region failed", zap.String("region", r.Name), zap.Error(err))
				total.Failed++
				continue
			}
			total.Found += sum.Found
			total.Created += sum.Created
			total.Duplicates += sum.Duplicates
			total.Failed += sum.Failed
		}

		return printSummary(cmd.OutOrStdout(), total)
	},
}

// selectRegions resolves names against the configured regions. No names
// selects every region.
func selectRegions(regions []boundary.Region, names []string) ([]boundary.Region, error) {
	if len(regions) == 0 {
		return nil, eris.New("discover: no regions configured (set boundary.regions or boundary.regions_file)")
	}
	if len(names) == 0 {
		return regions, nil
	}

	out := make([]boundary.Region, 0, len(names))
	var missing []string
	for _, n := range names {
		r, ok := boundary.FindRegion(regions, n)
		if !ok {
			missing = append(missing, n)
			continue
		}
		out = append(out, r)
	}
	if len(missing) > 0 {
		return nil, eris.Errorf("discover: unknown region(s): %s", strings.Join(missing, ", "))
	}
	return out, nil
}

func duplicatePolicy(mc config.MatchConfig) match.DuplicatePolicy {
	p := match.DefaultDuplicatePolicy()
	if mc.DuplicateOverlap > 0 {
		p.MinOverlap = mc.DuplicateOverlap
	}
	if mc.DuplicateMeters > 0 {
		p.NearMeters = mc.DuplicateMeters
	}
	if mc.NameThreshold > 0 {
		p.NameThreshold = mc.NameThreshold
	}
	return p
}

func init() {
	sitesDiscoverCmd.Flags().StringSliceVar(&discoverRegions, "region", nil, "region name(s) to import (default all configured)")
	sitesDiscoverCmd.Flags().BoolVar(&discoverDryRun, "dry-run", false, "report what would be created without writing")
	sitesCmd.AddCommand(sitesDiscoverCmd)
}
