// Package arbitration escalates ambiguous Site matches to an external
// reasoning service and applies its decision when confidence allows.
package arbitration

import (
	"github.com/sells-group/parktrail/internal/geo"
	"github.com/sells-group/parktrail/internal/site"
)

// Request is everything the arbitrator sees for one Site.
type Request struct {
	SiteID       int64
	Name         string
	AdminArea    string
	Category     string
	PublicAccess bool
	Point        geo.LatLon

	// Context is prior free-text corroboration: review notes and any
	// alternate-source evidence.
	Context string
	// Current is the candidate the ranker preferred, if it is among the
	// alternatives.
	Current *site.Alternative
	// Alternatives are the ranked candidates offered, best first.
	Alternatives []site.Alternative
}

// NewRequest builds a request for s with at most maxAlts alternatives. ok
// is false when the site has no location or nothing to choose from.
func NewRequest(s *site.Site, maxAlts int) (req Request, ok bool) {
	pt, located := s.Location()
	if !located || len(s.Alternatives) == 0 {
		return Request{}, false
	}

	alts := s.Alternatives
	if maxAlts > 0 && len(alts) > maxAlts {
		alts = alts[:maxAlts]
	}

	req = Request{
		SiteID:       s.ID,
		Name:         s.Name,
		AdminArea:    s.AdminArea,
		Category:     s.Category,
		PublicAccess: s.PublicAccess,
		Point:        pt,
		Context:      priorContext(s),
		Alternatives: alts,
	}
	req.Current = req.Find(s.BoundaryID)
	return req, true
}

// Find returns the offered alternative with the given id, or nil.
func (r Request) Find(id string) *site.Alternative {
	if id == "" {
		return nil
	}
	for i := range r.Alternatives {
		if r.Alternatives[i].ExternalID == id {
			return &r.Alternatives[i]
		}
	}
	return nil
}

func priorContext(s *site.Site) string {
	out := s.Notes
	// Unverified ids are left out so a rejected lookup never steers the
	// decision.
	if s.EvidenceID != "" && s.EvidenceVerified {
		if out != "" {
			out += "\n"
		}
		out += "Wikidata " + s.EvidenceID + " (verified)"
	}
	return out
}
