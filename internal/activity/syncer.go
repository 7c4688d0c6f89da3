package activity

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/parktrail/internal/routesync"
	"github.com/sells-group/parktrail/pkg/strava"
)

// TokenSource yields a valid access token for an athlete.
type TokenSource interface {
	AccessToken(ctx context.Context, athleteID int64) (string, error)
}

// RouteSyncer intersects encoded routes with sites.
type RouteSyncer interface {
	Sync(ctx context.Context, encoded []string) (routesync.Result, error)
}

// ErrNotConnected is returned when the athlete has no usable session.
var ErrNotConnected = errors.New("activity: strava not connected")

// Syncer pulls new activities for one athlete and runs them through route
// sync. Each activity is consumed once.
type Syncer struct {
	tokens    TokenSource
	client    strava.Client
	log       Log
	engine    RouteSyncer
	athleteID int64
}

// NewSyncer creates a Syncer.
func NewSyncer(tokens TokenSource, client strava.Client, log Log, engine RouteSyncer, athleteID int64) *Syncer {
	return &Syncer{tokens: tokens, client: client, log: log, engine: engine, athleteID: athleteID}
}

// Sync fetches up to n activities newer than the last consumed one, adds
// them to the explicit polylines and runs one route sync over both. With
// n == 0 only the explicit polylines are used.
func (s *Syncer) Sync(ctx context.Context, polylines []string, n int) (routesync.Result, error) {
	var pending []Processed
	// routeIdx[i] is the index of pending[i]'s route, or -1 without one.
	var routeIdx []int
	routes := append([]string(nil), polylines...)

	if n > 0 {
		acts, err := s.fetch(ctx, n)
		if err != nil {
			return routesync.Result{}, err
		}
		for _, a := range acts {
			pending = append(pending, Processed{
				ActivityID: a.ID,
				AthleteID:  s.athleteID,
				Name:       a.Name,
				StartedAt:  a.StartDate,
			})
			idx := -1
			if p := a.Polyline(); p != "" {
				idx = len(routes)
				routes = append(routes, p)
			}
			routeIdx = append(routeIdx, idx)
		}
	}

	res, err := s.engine.Sync(ctx, routes)
	if err != nil {
		return res, err
	}

	// Routes past the engine's limit were not scanned; leave their
	// activities for the next sync.
	consumed := len(routes)
	if res.Truncated {
		consumed = res.Routes + res.BadRoutes
	}
	done := make([]Processed, 0, len(pending))
	for i, p := range pending {
		if routeIdx[i] >= consumed {
			continue
		}
		p.RunID = res.RunID
		p.SitesHit = len(res.Intersected)
		done = append(done, p)
	}
	if err := s.log.Record(ctx, done); err != nil {
		// Sites are already marked; a replay completes nothing new.
		zap.L().Warn("record processed activities failed", zap.Int("activities", len(done)), zap.Error(err))
	}
	return res, nil
}

func (s *Syncer) fetch(ctx context.Context, n int) ([]strava.Activity, error) {
	log := zap.L().With(zap.String("component", "activity.syncer"), zap.Int64("athlete_id", s.athleteID))

	token, err := s.tokens.AccessToken(ctx, s.athleteID)
	if errors.Is(err, strava.ErrNoSession) {
		return nil, ErrNotConnected
	}
	if err != nil {
		return nil, eris.Wrap(err, "activity: access token")
	}

	after, err := s.log.LastStart(ctx, s.athleteID)
	if err != nil {
		return nil, err
	}

	acts, err := s.client.Activities(ctx, token, after, n)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, len(acts))
	for i, a := range acts {
		ids[i] = a.ID
	}
	seen, err := s.log.Seen(ctx, ids)
	if err != nil {
		return nil, err
	}

	fresh := acts[:0]
	for _, a := range acts {
		if !seen[a.ID] {
			fresh = append(fresh, a)
		}
	}
	log.Info("fetched activities", zap.Int("fetched", len(acts)), zap.Int("new", len(fresh)), zap.Time("after", after))
	return fresh, nil
}
