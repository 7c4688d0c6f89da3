package main

import (
	"bufio"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/parktrail/internal/activity"
	"github.com/sells-group/parktrail/internal/config"
	"github.com/sells-group/parktrail/internal/routesync"
	"github.com/sells-group/parktrail/internal/server"
	"github.com/sells-group/parktrail/pkg/strava"
)

var (
	syncPolylines  []string
	syncFile       string
	syncActivities int
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Mark sites visited from recorded routes",
	Long:  "Decodes encoded polylines (given directly, read from a file, or pulled from recent Strava activities) and marks every incomplete site they pass through as completed.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		polylines := append([]string(nil), syncPolylines...)
		if syncFile != "" {
			more, err := readPolylines(syncFile)
			if err != nil {
				return err
			}
			polylines = append(polylines, more...)
		}

		env, err := openStore(ctx, "sync")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := routeSyncer(env).Sync(ctx, polylines, syncActivities)
		if err != nil {
			return err
		}

		zap.L().Info(res.Message,
			zap.String("run_id", res.RunID.String()),
			zap.Int("routes", res.Routes),
			zap.Int("scanned", res.Scanned),
			zap.Int("intersected", len(res.Intersected)),
		)
		return printSummary(cmd.OutOrStdout(), res)
	},
}

// routeSyncer builds the sync path for env: activity import when Strava is
// configured for an athlete, plain route sync otherwise.
func routeSyncer(env *storeEnv) server.Syncer {
	engine := routesync.NewEngine(env.Sites, syncOptions(cfg.Sync))

	sc := cfg.Strava
	if sc.ClientID == "" || sc.ClientSecret == "" || sc.AthleteID == 0 {
		return server.EngineSyncer{Engine: engine}
	}

	client := stravaClient(sc)
	sessions := strava.NewSessions(client, activity.NewPostgresSessions(env.Pool))
	return activity.NewSyncer(sessions, client, activity.NewPostgresLog(env.Pool), engine, sc.AthleteID)
}

func syncOptions(sc config.SyncConfig) routesync.Options {
	opts := routesync.DefaultOptions()
	if sc.MaxSites > 0 {
		opts.MaxSites = sc.MaxSites
	}
	if sc.MaxRoutes > 0 {
		opts.MaxRoutes = sc.MaxRoutes
	}
	if sc.ProximityMeters > 0 {
		opts.ProximityM = sc.ProximityMeters
	}
	opts.DensifyM = sc.DensifyMeters
	return opts
}

func stravaClient(sc config.StravaConfig) strava.Client {
	return strava.NewClient(sc.ClientID, sc.ClientSecret,
		strava.WithBaseURL(sc.BaseURL),
		strava.WithOAuthURL(sc.OAuthURL),
	)
}

// readPolylines reads one encoded polyline per line, skipping blanks.
func readPolylines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "sync: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	var out []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16<<20)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			out = append(out, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrapf(err, "sync: read %s", path)
	}
	return out, nil
}

func init() {
	syncCmd.Flags().StringSliceVar(&syncPolylines, "polyline", nil, "encoded polyline (repeatable)")
	syncCmd.Flags().StringVar(&syncFile, "file", "", "file with one encoded polyline per line")
	syncCmd.Flags().IntVar(&syncActivities, "activities", 0, "also import up to N new Strava activities")
	rootCmd.AddCommand(syncCmd)
}
