package routesync

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/parktrail/internal/geo"
	"github.com/sells-group/parktrail/internal/site"
)

// State is a step of one sync operation.
type State int

// Sync states, in order.
const (
	Idle State = iota
	Decoding
	Scanning
	Persisting
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Decoding:
		return "decoding"
	case Scanning:
		return "scanning"
	case Persisting:
		return "persisting"
	case Done:
		return "done"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Options bound and tune a sync.
type Options struct {
	// MaxSites caps the incomplete sites scanned per sync. Only sites near
	// a route count against it. Zero means no cap.
	MaxSites int
	// MaxRoutes caps the routes decoded per sync. Zero means no cap.
	MaxRoutes int
	// ProximityM is the point fallback radius.
	ProximityM float64
	// DensifyM inserts interpolated samples so consecutive route points
	// are at most this far apart. Zero leaves routes as recorded.
	DensifyM float64
}

// DefaultOptions returns the standard bounds.
func DefaultOptions() Options {
	return Options{MaxSites: 500, MaxRoutes: 50, ProximityM: 100}
}

// Hit is a site newly completed by a sync.
type Hit struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Result reports a sync. It is returned even when nothing was found.
type Result struct {
	Message     string    `json:"message"`
	RunID       uuid.UUID `json:"run_id"`
	Intersected []Hit     `json:"intersected"`
	// Scanned counts sites tested against the routes.
	Scanned int `json:"scanned"`
	// Skipped counts nearby sites with neither a usable polygon nor a point.
	Skipped int `json:"skipped"`
	// Malformed counts sites whose stored polygon is unusable; they fall
	// back to their point when they have one.
	Malformed int `json:"malformed"`
	// Routes counts routes decoded; BadRoutes those that failed to decode.
	Routes    int `json:"routes"`
	BadRoutes int `json:"bad_routes"`
	// Truncated is set when routes beyond MaxRoutes were dropped.
	Truncated bool `json:"truncated,omitempty"`
	// SiteLimit is set when MaxSites nearby sites were loaded and more may
	// have been left unscanned.
	SiteLimit bool `json:"site_limit,omitempty"`
}

// Engine intersects routes with incomplete sites.
//
// Only incomplete sites inside each route's bounding box, padded by
// ProximityM, are loaded. Scanning then costs O(sites × route vertices):
// every loaded site is tested against every vertex. MaxSites and MaxRoutes
// keep that within a request budget.
type Engine struct {
	store site.Store
	opts  Options

	now     func() time.Time
	newID   func() uuid.UUID
	onState func(State)
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the completion timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithStateHook registers a callback for every state transition.
func WithStateHook(fn func(State)) Option {
	return func(e *Engine) {
		e.onState = fn
	}
}

// NewEngine creates an Engine.
func NewEngine(store site.Store, opts Options, options ...Option) *Engine {
	e := &Engine{
		store:   store,
		opts:    opts,
		now:     time.Now,
		newID:   uuid.New,
		onState: func(State) {},
	}
	for _, o := range options {
		o(e)
	}
	return e
}

// run carries the state of one sync.
type run struct {
	state State
	hook  func(State)
	log   *zap.Logger
}

func (r *run) to(next State) {
	if next != r.state+1 {
		panic(fmt.Sprintf("routesync: invalid transition %s -> %s", r.state, next))
	}
	r.state = next
	r.log.Debug("sync state", zap.Stringer("state", next))
	r.hook(next)
}

// Sync decodes encoded routes, scans incomplete sites and marks those the
// routes pass through as completed. A route that fails to decode is counted
// and skipped. Running the same routes again completes nothing new.
func (e *Engine) Sync(ctx context.Context, encoded []string) (Result, error) {
	res := Result{RunID: e.newID(), Intersected: []Hit{}}
	r := &run{
		state: Idle,
		hook:  e.onState,
		log:   zap.L().With(zap.String("component", "routesync.engine"), zap.String("run_id", res.RunID.String())),
	}

	r.to(Decoding)
	if e.opts.MaxRoutes > 0 && len(encoded) > e.opts.MaxRoutes {
		r.log.Warn("route limit reached", zap.Int("routes", len(encoded)), zap.Int("max_routes", e.opts.MaxRoutes))
		encoded = encoded[:e.opts.MaxRoutes]
		res.Truncated = true
	}
	routes := make([][]geo.LatLon, 0, len(encoded))
	for i, enc := range encoded {
		path, err := Decode(enc)
		if err != nil || len(path) == 0 {
			res.BadRoutes++
			r.log.Warn("skipping undecodable route", zap.Int("route", i), zap.Error(err))
			continue
		}
		routes = append(routes, geo.Densify(path, e.opts.DensifyM))
	}
	res.Routes = len(routes)

	r.to(Scanning)
	var hits []site.Site
	if len(routes) > 0 {
		sites, err := e.candidates(ctx, routes, &res, r.log)
		if err != nil {
			return res, err
		}
		hits = e.scan(sites, routes, &res, r.log)
	}

	r.to(Persisting)
	if len(hits) > 0 {
		ids := make([]int64, len(hits))
		for i := range hits {
			ids[i] = hits[i].ID
		}
		n, err := e.store.MarkCompleted(ctx, ids, e.now().UTC())
		if err != nil {
			return res, eris.Wrap(err, "routesync: mark completed")
		}
		if int(n) != len(ids) {
			r.log.Info("some sites were completed concurrently", zap.Int("intersected", len(ids)), zap.Int64("marked", n))
		}
		for i := range hits {
			res.Intersected = append(res.Intersected, Hit{ID: hits[i].ID, Name: hits[i].Name})
		}
	}

	r.to(Done)
	res.Message = message(res)
	r.log.Info("sync complete",
		zap.Int("routes", res.Routes),
		zap.Int("bad_routes", res.BadRoutes),
		zap.Int("scanned", res.Scanned),
		zap.Int("intersected", len(res.Intersected)),
		zap.Int("skipped", res.Skipped),
		zap.Int("malformed", res.Malformed),
	)
	return res, nil
}

// candidates loads the incomplete sites near each route, padded by the
// proximity radius, de-duplicated and capped at MaxSites.
func (e *Engine) candidates(ctx context.Context, routes [][]geo.LatLon, res *Result, log *zap.Logger) ([]site.Site, error) {
	seen := make(map[int64]bool)
	var out []site.Site
	for i, path := range routes {
		limit := 0
		if e.opts.MaxSites > 0 {
			limit = e.opts.MaxSites - len(out)
			if limit <= 0 {
				res.SiteLimit = true
				log.Warn("site limit reached", zap.Int("max_sites", e.opts.MaxSites), zap.Int("routes_left", len(routes)-i))
				break
			}
		}

		sites, err := e.store.ListIncomplete(ctx, geo.PathBound(path, e.opts.ProximityM), limit)
		if err != nil {
			return nil, eris.Wrap(err, "routesync: list incomplete sites")
		}
		for _, s := range sites {
			if seen[s.ID] {
				continue
			}
			seen[s.ID] = true
			out = append(out, s)
		}
		if limit > 0 && len(sites) == limit {
			res.SiteLimit = true
		}
	}
	return out, nil
}

func (e *Engine) scan(sites []site.Site, routes [][]geo.LatLon, res *Result, log *zap.Logger) []site.Site {
	var hits []site.Site
	for i := range sites {
		s := &sites[i]
		if s.Completed {
			continue
		}
		if s.PolygonInvalid {
			res.Malformed++
			log.Debug("site polygon unusable, falling back to point", zap.Int64("site_id", s.ID))
		}

		var hit bool
		switch {
		case s.HasPolygon():
			res.Scanned++
			for _, path := range routes {
				if geo.PathCrossesPolygon(path, s.Polygon) {
					hit = true
					break
				}
			}
		case s.Point != nil:
			res.Scanned++
			for _, path := range routes {
				if geo.PathNear(path, *s.Point, e.opts.ProximityM) {
					hit = true
					break
				}
			}
		default:
			res.Skipped++
			continue
		}

		if hit {
			hits = append(hits, *s)
		}
	}
	return hits
}

func message(res Result) string {
	n := len(res.Intersected)
	switch {
	case res.Routes == 0:
		return "No routes to process."
	case n == 0:
		return fmt.Sprintf("No new sites visited across %d route(s).", res.Routes)
	case n == 1:
		return fmt.Sprintf("Completed 1 new site: %s.", res.Intersected[0].Name)
	default:
		return fmt.Sprintf("Completed %d new sites across %d route(s).", n, res.Routes)
	}
}
