// Package activity persists Strava sessions and feeds recorded activities
// into route sync exactly once.
package activity

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/parktrail/internal/db"
	"github.com/sells-group/parktrail/pkg/strava"
)

// PostgresSessions is a strava.SessionStore backed by Postgres.
type PostgresSessions struct {
	pool db.Pool
}

var _ strava.SessionStore = (*PostgresSessions)(nil)

// NewPostgresSessions creates a session store.
func NewPostgresSessions(pool db.Pool) *PostgresSessions {
	return &PostgresSessions{pool: pool}
}

// Load implements strava.SessionStore.
func (s *PostgresSessions) Load(ctx context.Context, athleteID int64) (*strava.Session, error) {
	sess := strava.Session{AthleteID: athleteID}
	err := s.pool.QueryRow(ctx, `
		SELECT access_token, refresh_token, expires_at
		FROM parktrail.strava_sessions
		WHERE athlete_id = $1`, athleteID,
	).Scan(&sess.AccessToken, &sess.RefreshToken, &sess.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, strava.ErrNoSession
	}
	if err != nil {
		return nil, eris.Wrapf(err, "activity: load session %d", athleteID)
	}
	return &sess, nil
}

// Save implements strava.SessionStore.
func (s *PostgresSessions) Save(ctx context.Context, sess *strava.Session) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO parktrail.strava_sessions (athlete_id, access_token, refresh_token, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (athlete_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expires_at = EXCLUDED.expires_at,
			updated_at = now()`,
		sess.AthleteID, sess.AccessToken, sess.RefreshToken, sess.ExpiresAt,
	)
	return eris.Wrapf(err, "activity: save session %d", sess.AthleteID)
}

// Delete implements strava.SessionStore.
func (s *PostgresSessions) Delete(ctx context.Context, athleteID int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM parktrail.strava_sessions WHERE athlete_id = $1`, athleteID)
	return eris.Wrapf(err, "activity: delete session %d", athleteID)
}
