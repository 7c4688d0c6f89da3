package strava

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Session holds one athlete's OAuth tokens.
type Session struct {
	AthleteID    int64
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Expired reports whether the access token expires within leeway of now.
func (s *Session) Expired(now time.Time, leeway time.Duration) bool {
	return !now.Add(leeway).Before(s.ExpiresAt)
}

// ErrNoSession is returned when an athlete has not connected, or their
// session was invalidated.
var ErrNoSession = errors.New("strava: no session")

// ErrRefreshRefused is returned by Client.Refresh when the refresh token is
// no longer accepted.
var ErrRefreshRefused = errors.New("strava: refresh refused")

// SessionStore persists sessions.
type SessionStore interface {
	// Load returns ErrNoSession when none is stored.
	Load(ctx context.Context, athleteID int64) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, athleteID int64) error
}

// Sessions manages session lifecycle: created by Connect, refreshed by
// AccessToken when close to expiry, and deleted when a refresh is refused.
type Sessions struct {
	client Client
	store  SessionStore
	leeway time.Duration
	now    func() time.Time
}

// NewSessions creates a session manager.
func NewSessions(client Client, store SessionStore) *Sessions {
	return &Sessions{client: client, store: store, leeway: 5 * time.Minute, now: time.Now}
}

// Connect exchanges an authorization code and stores the new session.
func (m *Sessions) Connect(ctx context.Context, code string) (*Session, error) {
	s, err := m.client.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := m.store.Save(ctx, s); err != nil {
		return nil, eris.Wrap(err, "strava: save session")
	}
	zap.L().Info("strava session created", zap.Int64("athlete_id", s.AthleteID), zap.Time("expires_at", s.ExpiresAt))
	return s, nil
}

// AccessToken returns a valid access token for the athlete, refreshing the
// session when needed. If Strava refuses the refresh the session is deleted
// and ErrNoSession is returned, so the athlete must connect again.
func (m *Sessions) AccessToken(ctx context.Context, athleteID int64) (string, error) {
	s, err := m.store.Load(ctx, athleteID)
	if err != nil {
		return "", err
	}
	if !s.Expired(m.now(), m.leeway) {
		return s.AccessToken, nil
	}

	fresh, err := m.client.Refresh(ctx, s)
	if err != nil {
		if errors.Is(err, ErrRefreshRefused) {
			zap.L().Warn("strava refresh refused, invalidating session", zap.Int64("athlete_id", athleteID), zap.Error(err))
			if delErr := m.store.Delete(ctx, athleteID); delErr != nil {
				return "", eris.Wrap(delErr, "strava: delete session")
			}
			return "", ErrNoSession
		}
		return "", err
	}
	if err := m.store.Save(ctx, fresh); err != nil {
		return "", eris.Wrap(err, "strava: save session")
	}
	return fresh.AccessToken, nil
}
