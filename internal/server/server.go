// Package server exposes route sync over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/parktrail/internal/activity"
	"github.com/sells-group/parktrail/internal/routesync"
)

// maxBodyBytes bounds a sync request body.
const maxBodyBytes = 4 << 20

// ErrActivitiesUnavailable is returned when activities are requested but no
// activity source is configured.
var ErrActivitiesUnavailable = errors.New("server: activity import not configured")

// Syncer runs one route sync over explicit polylines plus up to n imported
// activities.
type Syncer interface {
	Sync(ctx context.Context, polylines []string, n int) (routesync.Result, error)
}

// EngineSyncer adapts a routesync.Engine to Syncer for deployments without
// an activity source.
type EngineSyncer struct {
	Engine *routesync.Engine
}

// Sync runs the engine over polylines. Any request for activities fails.
func (s EngineSyncer) Sync(ctx context.Context, polylines []string, n int) (routesync.Result, error) {
	if n > 0 {
		return routesync.Result{}, ErrActivitiesUnavailable
	}
	return s.Engine.Sync(ctx, polylines)
}

// Options configure the handler.
type Options struct {
	AllowedOrigins []string
	// MaxActivities caps the activities imported per request.
	MaxActivities int
	// Timeout bounds a single sync request. Zero means no limit.
	Timeout time.Duration
}

// SyncRequest is the body of POST /api/sync.
type SyncRequest struct {
	Polylines  []string `json:"polylines"`
	Activities int      `json:"activities"`
}

type handler struct {
	syncer Syncer
	opts   Options
	log    *zap.Logger
}

// New builds the HTTP handler.
func New(syncer Syncer, opts Options) http.Handler {
	h := &handler{
		syncer: syncer,
		opts:   opts,
		log:    zap.L().With(zap.String("component", "server")),
	}

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.health)
	r.Route("/api", func(r chi.Router) {
		r.Post("/sync", h.sync)
	})

	return r
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) sync(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Activities < 0 {
		writeError(w, http.StatusBadRequest, "activities must be >= 0")
		return
	}
	if h.opts.MaxActivities > 0 && req.Activities > h.opts.MaxActivities {
		req.Activities = h.opts.MaxActivities
	}

	ctx := r.Context()
	if h.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opts.Timeout)
		defer cancel()
	}

	res, err := h.syncer.Sync(ctx, req.Polylines, req.Activities)
	switch {
	case err == nil:
	case errors.Is(err, ErrActivitiesUnavailable):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, activity.ErrNotConnected):
		writeError(w, http.StatusConflict, "strava not connected; run `parktrail strava auth`")
		return
	default:
		h.log.Error("sync failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "sync failed")
		return
	}

	h.log.Info("sync complete",
		zap.String("run_id", res.RunID.String()),
		zap.Int("routes", res.Routes),
		zap.Int("intersected", len(res.Intersected)),
	)
	writeJSON(w, http.StatusOK, res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
