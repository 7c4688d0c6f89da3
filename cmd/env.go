package main

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/parktrail/internal/boundary"
	"github.com/sells-group/parktrail/internal/config"
	"github.com/sells-group/parktrail/internal/db"
	"github.com/sells-group/parktrail/internal/resilience"
	"github.com/sells-group/parktrail/internal/site"
	"github.com/sells-group/parktrail/pkg/overpass"
)

// storeEnv holds the database pool and the site store built on it.
type storeEnv struct {
	Pool  *pgxpool.Pool
	Sites *site.PostgresStore
}

// Close releases the pool.
func (e *storeEnv) Close() {
	if e.Pool != nil {
		e.Pool.Close()
	}
}

// openStore validates cfg for mode, connects to Postgres and applies pending
// migrations. Callers should defer env.Close().
func openStore(ctx context.Context, mode string) (*storeEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	pool, err := db.Connect(ctx, cfg.Store.DatabaseURL)
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	return &storeEnv{Pool: pool, Sites: site.NewPostgresStore(pool)}, nil
}

// boundaryEnv holds the candidate fetcher and the resources behind it.
type boundaryEnv struct {
	Fetcher *boundary.Fetcher
	cache   *overpass.SQLiteCache
}

// Close releases the response cache, if open.
func (e *boundaryEnv) Close() {
	if e.cache != nil {
		_ = e.cache.Close()
	}
}

// openBoundary builds the candidate fetcher from cfg: Overpass, optionally
// backed by a SQLite response cache, plus a local shapefile when one is
// configured.
func openBoundary(ctx context.Context, bc config.BoundaryConfig) (*boundaryEnv, error) {
	log := zap.L().With(zap.String("component", "boundary"))
	env := &boundaryEnv{}

	opts := []overpass.Option{
		overpass.WithBaseURL(bc.OverpassURL),
		overpass.WithUserAgent(bc.UserAgent),
		overpass.WithHTTPClient(&http.Client{Timeout: bc.Timeout() + 10*time.Second}),
		overpass.WithRetry(resilience.FixedRetryConfig(bc.Retries, bc.RetryDelay())),
	}

	if bc.CachePath != "" {
		cache, err := overpass.OpenSQLiteCache(ctx, bc.CachePath, bc.CacheTTL())
		if err != nil {
			return nil, err
		}
		if n, err := cache.Prune(ctx); err != nil {
			log.Warn("prune overpass cache failed", zap.Error(err))
		} else if n > 0 {
			log.Debug("pruned overpass cache", zap.Int64("entries", n))
		}
		env.cache = cache
		opts = append(opts, overpass.WithCache(cache))
	}

	sources := []boundary.Source{
		boundary.NewOverpassSource(overpass.NewClient(opts...), bc.TimeoutSecs),
	}

	if bc.Shapefile != "" {
		shp, err := boundary.OpenShapefile(bc.Shapefile, bc.ShapefileName)
		if err != nil {
			env.Close()
			return nil, err
		}
		log.Info("loaded shapefile candidates",
			zap.String("path", bc.Shapefile),
			zap.Int("candidates", shp.Len()),
		)
		sources = append(sources, shp)
	}

	filter := boundary.DefaultFilter()
	filter.MinAreaM2 = bc.MinAreaM2
	filter.MaxAreaM2 = bc.MaxAreaM2

	env.Fetcher = boundary.NewFetcher(filter, sources...)
	return env, nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
