package overpass

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

const cacheSchema = `
CREATE TABLE IF NOT EXISTS overpass_cache (
	key        TEXT PRIMARY KEY,
	body       BLOB NOT NULL,
	fetched_at DATETIME NOT NULL,
	expires_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_overpass_cache_expires_at ON overpass_cache(expires_at);
`

// SQLiteCache keeps raw Overpass responses in a local SQLite file.
type SQLiteCache struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// OpenSQLiteCache opens (or creates) the cache file at path. Entries older
// than ttl are ignored; a ttl of zero keeps entries forever.
func OpenSQLiteCache(ctx context.Context, path string, ttl time.Duration) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "overpass: open cache")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "overpass: cache %s", pragma)
		}
	}
	if _, err := db.ExecContext(ctx, cacheSchema); err != nil {
		db.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "overpass: cache schema")
	}
	return &SQLiteCache{db: db, ttl: ttl, now: time.Now}, nil
}

// Get implements Cache.
func (c *SQLiteCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		body      []byte
		expiresAt sql.NullTime
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT body, expires_at FROM overpass_cache WHERE key = ?`, key,
	).Scan(&body, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "overpass: cache get")
	}
	if expiresAt.Valid && !c.now().UTC().Before(expiresAt.Time) {
		return nil, false, nil
	}
	return body, true, nil
}

// Put implements Cache.
func (c *SQLiteCache) Put(ctx context.Context, key string, raw []byte) error {
	now := c.now().UTC()
	var expiresAt sql.NullTime
	if c.ttl > 0 {
		expiresAt = sql.NullTime{Time: now.Add(c.ttl), Valid: true}
	}
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO overpass_cache (key, body, fetched_at, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET body = excluded.body, fetched_at = excluded.fetched_at, expires_at = excluded.expires_at`,
		key, raw, now, expiresAt,
	)
	return eris.Wrap(err, "overpass: cache put")
}

// Prune deletes expired entries and returns how many were removed.
func (c *SQLiteCache) Prune(ctx context.Context) (int64, error) {
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM overpass_cache WHERE expires_at IS NOT NULL AND expires_at <= ?`, c.now().UTC())
	if err != nil {
		return 0, eris.Wrap(err, "overpass: cache prune")
	}
	n, err := res.RowsAffected()
	return n, eris.Wrap(err, "overpass: cache prune")
}

// Close closes the underlying database.
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}
