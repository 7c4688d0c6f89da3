package site

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/parktrail/internal/db"
	"github.com/sells-group/parktrail/internal/geo"
)

const siteColumns = `
	id, name, admin_area, category, public_access, lat, lon,
	polygon, ST_AsEWKB(geom), alternatives, match_status, match_score, boundary_id,
	evidence_id, evidence_verified, evidence_score, notes,
	completed, completed_at, created_at, updated_at`

// PostgresStore implements Store on the parktrail.sites table.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

var _ Store = (*PostgresStore)(nil)

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, id int64) (*Site, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+siteColumns+" FROM parktrail.sites WHERE id = $1", id)
	site, err := scanSite(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "site: get %d", id)
	}
	return site, nil
}

// Create implements Store.
func (s *PostgresStore) Create(ctx context.Context, site *Site) (int64, error) {
	polyJSON, geomWKB, err := polygonArgs(site.Polygon)
	if err != nil {
		return 0, err
	}
	alts, err := alternativesArg(site.Alternatives)
	if err != nil {
		return 0, err
	}
	status := site.Status
	if status == "" {
		status = StatusUnresolved
	}
	lat, lon := pointArgs(site.Point)

	sql := `
		INSERT INTO parktrail.sites (
			name, admin_area, category, public_access, lat, lon,
			polygon, geom, alternatives, match_status, match_score, boundary_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, ST_GeomFromEWKB($8), $9, $10, $11, $12)
		RETURNING id
	`
	var id int64
	err = s.pool.QueryRow(ctx, sql,
		site.Name, site.AdminArea, site.Category, site.PublicAccess, lat, lon,
		polyJSON, geomWKB, alts, string(status), site.MatchScore, site.BoundaryID,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrap(err, "site: create")
	}
	return id, nil
}

// ListForMatching implements Store.
func (s *PostgresStore) ListForMatching(ctx context.Context, f MatchFilter) ([]Site, error) {
	statuses := make([]string, 0, len(f.Statuses))
	for _, st := range f.Statuses {
		statuses = append(statuses, string(st))
	}
	if len(statuses) == 0 {
		statuses = []string{string(StatusUnresolved)}
	}

	sql := "SELECT " + siteColumns + `
		FROM parktrail.sites
		WHERE match_status = ANY($1) AND ($2 = '' OR admin_area = $2)
		ORDER BY id
		LIMIT NULLIF($3::int, 0)`
	return s.list(ctx, "list for matching", sql, statuses, f.AdminArea, f.Limit)
}

// ListAmbiguous implements Store.
func (s *PostgresStore) ListAmbiguous(ctx context.Context, limit int) ([]Site, error) {
	sql := "SELECT " + siteColumns + `
		FROM parktrail.sites
		WHERE match_status = 'ambiguous'
		ORDER BY id
		LIMIT NULLIF($1::int, 0)`
	return s.list(ctx, "list ambiguous", sql, limit)
}

// ListForEvidence implements Store. Only sites with a location and no
// recorded alternate-source id are returned.
func (s *PostgresStore) ListForEvidence(ctx context.Context, adminArea string, limit int) ([]Site, error) {
	sql := "SELECT " + siteColumns + `
		FROM parktrail.sites
		WHERE evidence_id = '' AND ($1 = '' OR admin_area = $1)
		  AND (lat IS NOT NULL OR polygon IS NOT NULL)
		ORDER BY id
		LIMIT NULLIF($2::int, 0)`
	return s.list(ctx, "list for evidence", sql, adminArea, limit)
}

// ListIncomplete implements Store. Sites are taken in id order up to limit.
func (s *PostgresStore) ListIncomplete(ctx context.Context, b orb.Bound, limit int) ([]Site, error) {
	sql := "SELECT " + siteColumns + `
		FROM parktrail.sites
		WHERE NOT completed
		  AND ((geom IS NOT NULL AND geom && ST_MakeEnvelope($1, $2, $3, $4, 4326))
		    OR (lat BETWEEN $2 AND $4 AND lon BETWEEN $1 AND $3))
		ORDER BY id
		LIMIT NULLIF($5::int, 0)`
	return s.list(ctx, "list incomplete", sql, b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat(), limit)
}

// ListInBound implements Store. A site is included when its polygon
// intersects b's envelope or its point lies inside b.
func (s *PostgresStore) ListInBound(ctx context.Context, b orb.Bound) ([]Site, error) {
	sql := "SELECT " + siteColumns + `
		FROM parktrail.sites
		WHERE (geom IS NOT NULL AND geom && ST_MakeEnvelope($1, $2, $3, $4, 4326))
		   OR (lat BETWEEN $2 AND $4 AND lon BETWEEN $1 AND $3)
		ORDER BY id`
	return s.list(ctx, "list in bound", sql, b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat())
}

// SaveMatch implements Store.
func (s *PostgresStore) SaveMatch(ctx context.Context, id int64, u MatchUpdate) error {
	polyJSON, geomWKB, err := polygonArgs(u.Polygon)
	if err != nil {
		return err
	}
	alts, err := alternativesArg(u.Alternatives)
	if err != nil {
		return err
	}

	sql := `
		UPDATE parktrail.sites SET
			match_status = $2,
			match_score = $3,
			boundary_id = $4,
			polygon = CASE WHEN $2 IN ('no_match', 'ambiguous', 'rejected') THEN NULL ELSE COALESCE($5, polygon) END,
			geom = CASE WHEN $2 IN ('no_match', 'ambiguous', 'rejected') THEN NULL ELSE COALESCE(ST_GeomFromEWKB($6), geom) END,
			alternatives = $7,
			updated_at = now()
		WHERE id = $1
	`
	tag, err := s.pool.Exec(ctx, sql, id, string(u.Status), u.Score, u.BoundaryID, polyJSON, geomWKB, alts)
	if err != nil {
		return eris.Wrapf(err, "site: save match %d", id)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveEvidence implements Store. Polygon and status are never touched.
func (s *PostgresStore) SaveEvidence(ctx context.Context, id int64, u EvidenceUpdate) error {
	sql := `
		UPDATE parktrail.sites SET
			evidence_id = $2,
			evidence_verified = $3,
			evidence_score = $4,
			updated_at = now()
		WHERE id = $1
	`
	tag, err := s.pool.Exec(ctx, sql, id, u.ID, u.Verified, u.Score)
	if err != nil {
		return eris.Wrapf(err, "site: save evidence %d", id)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveArbitration implements Store. Alternatives are cleared unless the
// site is queued for manual review.
func (s *PostgresStore) SaveArbitration(ctx context.Context, id int64, u ArbitrationUpdate) error {
	polyJSON, geomWKB, err := polygonArgs(u.Polygon)
	if err != nil {
		return err
	}

	sql := `
		UPDATE parktrail.sites SET
			match_status = $2,
			boundary_id = $3,
			polygon = CASE WHEN $2 IN ('no_match', 'ambiguous', 'rejected') THEN NULL ELSE COALESCE($4, polygon) END,
			geom = CASE WHEN $2 IN ('no_match', 'ambiguous', 'rejected') THEN NULL ELSE COALESCE(ST_GeomFromEWKB($5), geom) END,
			notes = $6,
			alternatives = CASE WHEN $2 = 'manual_review' THEN alternatives ELSE '[]'::jsonb END,
			updated_at = now()
		WHERE id = $1
	`
	tag, err := s.pool.Exec(ctx, sql, id, string(u.Status), u.BoundaryID, polyJSON, geomWKB, u.Notes)
	if err != nil {
		return eris.Wrapf(err, "site: save arbitration %d", id)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkCompleted implements Store.
func (s *PostgresStore) MarkCompleted(ctx context.Context, ids []int64, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	sql := `
		UPDATE parktrail.sites SET
			completed = true,
			completed_at = $2,
			updated_at = now()
		WHERE id = ANY($1) AND NOT completed
	`
	tag, err := s.pool.Exec(ctx, sql, ids, at)
	if err != nil {
		return 0, eris.Wrap(err, "site: mark completed")
	}
	return tag.RowsAffected(), nil
}

// CountByStatus implements Store.
func (s *PostgresStore) CountByStatus(ctx context.Context) ([]StatusCount, error) {
	sql := `
		SELECT match_status, count(*), count(*) FILTER (WHERE completed)
		FROM parktrail.sites
		GROUP BY match_status
		ORDER BY match_status
	`
	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return nil, eris.Wrap(err, "site: count by status")
	}
	defer rows.Close()

	var out []StatusCount
	for rows.Next() {
		var (
			c      StatusCount
			status string
		)
		if err := rows.Scan(&status, &c.Total, &c.Completed); err != nil {
			return nil, eris.Wrap(err, "site: scan status count")
		}
		c.Status = Status(status)
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "site: iterate status counts")
}

func (s *PostgresStore) list(ctx context.Context, op, sql string, args ...any) ([]Site, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrap(err, "site: "+op)
	}
	defer rows.Close()

	var out []Site
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, eris.Wrap(err, "site: "+op+": scan")
		}
		out = append(out, *site)
	}
	return out, eris.Wrap(rows.Err(), "site: "+op)
}

func scanSite(row pgx.Row) (*Site, error) {
	var (
		s          Site
		lat, lon   *float64
		polygonRaw []byte
		geomWKB    []byte
		altsRaw    []byte
		status     string
	)
	err := row.Scan(
		&s.ID, &s.Name, &s.AdminArea, &s.Category, &s.PublicAccess, &lat, &lon,
		&polygonRaw, &geomWKB, &altsRaw, &status, &s.MatchScore, &s.BoundaryID,
		&s.EvidenceID, &s.EvidenceVerified, &s.EvidenceScore, &s.Notes,
		&s.Completed, &s.CompletedAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.Status = Status(status)
	if lat != nil && lon != nil {
		s.Point = &geo.LatLon{Lat: *lat, Lon: *lon}
	}

	ring, err := geo.NormalizeShape(polygonRaw)
	if err == nil && ring == nil && len(geomWKB) > 0 {
		var decoded orb.Ring
		if decoded, err = decodePolygon(geomWKB); err == nil {
			ring, err = geo.NormalizeRing(decoded)
		}
	}
	if err != nil {
		zap.L().Debug("site: stored polygon unusable",
			zap.Int64("site_id", s.ID),
			zap.String("site_name", s.Name),
			zap.Error(err),
		)
		s.PolygonInvalid = true
	} else {
		s.Polygon = ring
	}

	if len(altsRaw) > 0 {
		if err := json.Unmarshal(altsRaw, &s.Alternatives); err != nil {
			zap.L().Warn("site: unreadable alternatives",
				zap.Int64("site_id", s.ID),
				zap.Error(err),
			)
			s.Alternatives = nil
		}
	}

	return &s, nil
}

func pointArgs(p *geo.LatLon) (lat, lon *float64) {
	if p == nil {
		return nil, nil
	}
	la, lo := p.Lat, p.Lon
	return &la, &lo
}

func polygonArgs(ring orb.Ring) (json.RawMessage, []byte, error) {
	if len(ring) == 0 {
		return nil, nil, nil
	}
	ring, err := geo.NormalizeRing(ring)
	if err != nil {
		return nil, nil, eris.Wrap(err, "site: polygon")
	}
	raw, err := json.Marshal(ring)
	if err != nil {
		return nil, nil, eris.Wrap(err, "site: marshal polygon")
	}
	wkb, err := encodePolygon(ring)
	if err != nil {
		return nil, nil, err
	}
	return raw, wkb, nil
}

func alternativesArg(alts []Alternative) (json.RawMessage, error) {
	if len(alts) == 0 {
		return json.RawMessage(`[]`), nil
	}
	raw, err := json.Marshal(alts)
	if err != nil {
		return nil, eris.Wrap(err, "site: marshal alternatives")
	}
	return raw, nil
}
