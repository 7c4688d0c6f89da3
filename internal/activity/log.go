package activity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/parktrail/internal/db"
)

// Processed is one consumed activity.
type Processed struct {
	ActivityID int64
	AthleteID  int64
	Name       string
	StartedAt  time.Time
	RunID      uuid.UUID
	// SitesHit is the number of sites the consuming sync completed.
	SitesHit int
}

// Log records which activities have been consumed.
type Log interface {
	// Seen returns the subset of ids already recorded.
	Seen(ctx context.Context, ids []int64) (map[int64]bool, error)
	// LastStart returns the latest recorded start time for the athlete,
	// or the zero time.
	LastStart(ctx context.Context, athleteID int64) (time.Time, error)
	Record(ctx context.Context, rows []Processed) error
}

// PostgresLog is a Log backed by Postgres.
type PostgresLog struct {
	pool db.Pool
}

var _ Log = (*PostgresLog)(nil)

// NewPostgresLog creates a processed-activity log.
func NewPostgresLog(pool db.Pool) *PostgresLog {
	return &PostgresLog{pool: pool}
}

// Seen implements Log.
func (l *PostgresLog) Seen(ctx context.Context, ids []int64) (map[int64]bool, error) {
	seen := make(map[int64]bool)
	if len(ids) == 0 {
		return seen, nil
	}
	rows, err := l.pool.Query(ctx, `SELECT activity_id FROM parktrail.processed_activities WHERE activity_id = ANY($1)`, ids)
	if err != nil {
		return nil, eris.Wrap(err, "activity: query processed")
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "activity: scan processed")
		}
		seen[id] = true
	}
	return seen, eris.Wrap(rows.Err(), "activity: iterate processed")
}

// LastStart implements Log.
func (l *PostgresLog) LastStart(ctx context.Context, athleteID int64) (time.Time, error) {
	var last *time.Time
	err := l.pool.QueryRow(ctx, `SELECT max(started_at) FROM parktrail.processed_activities WHERE athlete_id = $1`, athleteID).Scan(&last)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "activity: last start for %d", athleteID)
	}
	if last == nil {
		return time.Time{}, nil
	}
	return *last, nil
}

// Record implements Log. Rows already present are left unchanged.
func (l *PostgresLog) Record(ctx context.Context, rows []Processed) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "activity: begin record")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, r := range rows {
		_, err := tx.Exec(ctx, `
			INSERT INTO parktrail.processed_activities (activity_id, athlete_id, name, started_at, run_id, sites_hit)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (activity_id) DO NOTHING`,
			r.ActivityID, r.AthleteID, r.Name, r.StartedAt, r.RunID, r.SitesHit,
		)
		if err != nil {
			return eris.Wrapf(err, "activity: record %d", r.ActivityID)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "activity: commit record")
}
