// Package site holds the Site entity and its persistence.
package site

import (
	"time"

	"github.com/paulmach/orb"

	"github.com/sells-group/parktrail/internal/geo"
)

// Status is the outcome of boundary matching for a Site.
type Status string

// Match statuses.
const (
	StatusUnresolved   Status = "unresolved"
	StatusMatched      Status = "matched"
	StatusAmbiguous    Status = "ambiguous"
	StatusNoMatch      Status = "no_match"
	StatusRejected     Status = "rejected"
	StatusManualReview Status = "manual_review"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusUnresolved, StatusMatched, StatusAmbiguous, StatusNoMatch, StatusRejected, StatusManualReview:
		return true
	}
	return false
}

// ClearsPolygon reports whether saving a site with status s drops its
// stored polygon. Only a resolved or pending-review site keeps one.
func (s Status) ClearsPolygon() bool {
	switch s {
	case StatusNoMatch, StatusAmbiguous, StatusRejected:
		return true
	}
	return false
}

// Alternative summarizes a boundary candidate retained for later review.
type Alternative struct {
	ExternalID string   `json:"external_id"`
	Name       string   `json:"name"`
	Type       string   `json:"type,omitempty"`
	AreaM2     float64  `json:"area_m2"`
	DistanceM  float64  `json:"distance_m"`
	NameScore  float64  `json:"name_score"`
	Ring       orb.Ring `json:"ring,omitempty"`
	// Tags is a trimmed copy of the source tags that help tell features
	// apart.
	Tags map[string]string `json:"tags,omitempty"`
}

// Site is a named park-like place from the authoritative list.
type Site struct {
	ID           int64
	Name         string
	AdminArea    string
	Category     string
	PublicAccess bool

	// Point is the reference location, if known.
	Point *geo.LatLon
	// Polygon is a closed ring of at least 3 distinct points, or nil.
	Polygon orb.Ring
	// PolygonInvalid is set when a stored polygon failed normalization.
	// Polygon is nil in that case.
	PolygonInvalid bool

	Alternatives []Alternative
	Status       Status
	MatchScore   float64
	BoundaryID   string

	EvidenceID       string
	EvidenceVerified bool
	EvidenceScore    float64

	Notes       string
	Completed   bool
	CompletedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasPolygon reports whether the site has a usable polygon.
func (s *Site) HasPolygon() bool {
	return len(s.Polygon) >= 4
}

// Location returns the point used to search around the site: its own point,
// or the bbox centroid of its polygon. ok is false when it has neither.
func (s *Site) Location() (pt geo.LatLon, ok bool) {
	if s.Point != nil {
		return *s.Point, true
	}
	if s.HasPolygon() {
		return geo.FromPoint(geo.Centroid(s.Polygon)), true
	}
	return geo.LatLon{}, false
}

// MatchUpdate is the result of boundary matching. The stored polygon is
// cleared when Status.ClearsPolygon, otherwise replaced only when Polygon is
// non-nil. Alternatives always replaces the stored list.
type MatchUpdate struct {
	Status       Status
	Score        float64
	BoundaryID   string
	Polygon      orb.Ring
	Alternatives []Alternative
}

// EvidenceUpdate records a corroborating alternate-source match.
type EvidenceUpdate struct {
	ID       string
	Verified bool
	Score    float64
}

// ArbitrationUpdate is the outcome of arbitration. Alternatives are cleared
// when it is saved, except for StatusManualReview. The polygon follows the
// same rule as MatchUpdate.
type ArbitrationUpdate struct {
	Status     Status
	BoundaryID string
	Polygon    orb.Ring
	Notes      string
}

// MatchFilter selects sites for a matching run.
type MatchFilter struct {
	AdminArea string
	// Statuses defaults to unresolved only.
	Statuses []Status
	Limit    int
}

// StatusCount is one row of the status report.
type StatusCount struct {
	Status    Status
	Total     int
	Completed int
}
