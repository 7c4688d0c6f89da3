// Package sitetest provides an in-memory site.Store for tests.
package sitetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"github.com/sells-group/parktrail/internal/site"
)

// MemStore is a goroutine-safe in-memory site.Store.
type MemStore struct {
	mu     sync.Mutex
	sites  map[int64]*site.Site
	nextID int64

	// Fail, when set, makes writes for the given site id return the error.
	Fail map[int64]error
	// Writes counts successful write calls.
	Writes int
}

var _ site.Store = (*MemStore)(nil)

// New returns a store seeded with sites. Sites without an id are numbered
// from 1; a missing status defaults to unresolved.
func New(sites ...site.Site) *MemStore {
	m := &MemStore{sites: make(map[int64]*site.Site), Fail: make(map[int64]error)}
	for i := range sites {
		s := sites[i]
		if s.ID == 0 {
			m.nextID++
			s.ID = m.nextID
		} else if s.ID > m.nextID {
			m.nextID = s.ID
		}
		if s.Status == "" {
			s.Status = site.StatusUnresolved
		}
		m.sites[s.ID] = &s
	}
	return m
}

// Site returns a copy of the stored site, or nil.
func (m *MemStore) Site(id int64) *site.Site {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sites[id]
	if !ok {
		return nil
	}
	cp := *s
	return &cp
}

// Get implements site.Store.
func (m *MemStore) Get(_ context.Context, id int64) (*site.Site, error) {
	if s := m.Site(id); s != nil {
		return s, nil
	}
	return nil, site.ErrNotFound
}

// Create implements site.Store.
func (m *MemStore) Create(_ context.Context, s *site.Site) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	cp := *s
	cp.ID = m.nextID
	if cp.Status == "" {
		cp.Status = site.StatusUnresolved
	}
	m.sites[cp.ID] = &cp
	m.Writes++
	return cp.ID, nil
}

func (m *MemStore) list(limit int, keep func(*site.Site) bool) []site.Site {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int64, 0, len(m.sites))
	for id := range m.sites {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out []site.Site
	for _, id := range ids {
		s := m.sites[id]
		if !keep(s) {
			continue
		}
		out = append(out, *s)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// ListForMatching implements site.Store.
func (m *MemStore) ListForMatching(_ context.Context, f site.MatchFilter) ([]site.Site, error) {
	statuses := f.Statuses
	if len(statuses) == 0 {
		statuses = []site.Status{site.StatusUnresolved}
	}
	return m.list(f.Limit, func(s *site.Site) bool {
		if f.AdminArea != "" && s.AdminArea != f.AdminArea {
			return false
		}
		for _, st := range statuses {
			if s.Status == st {
				return true
			}
		}
		return false
	}), nil
}

// ListAmbiguous implements site.Store.
func (m *MemStore) ListAmbiguous(_ context.Context, limit int) ([]site.Site, error) {
	return m.list(limit, func(s *site.Site) bool { return s.Status == site.StatusAmbiguous }), nil
}

// ListForEvidence implements site.Store.
func (m *MemStore) ListForEvidence(_ context.Context, adminArea string, limit int) ([]site.Site, error) {
	return m.list(limit, func(s *site.Site) bool {
		return s.EvidenceID == "" && (adminArea == "" || s.AdminArea == adminArea) &&
			(s.Point != nil || s.Polygon != nil)
	}), nil
}

// ListIncomplete implements site.Store.
func (m *MemStore) ListIncomplete(_ context.Context, b orb.Bound, limit int) ([]site.Site, error) {
	return m.list(limit, func(s *site.Site) bool { return !s.Completed && inBound(s, b) }), nil
}

// ListInBound implements site.Store.
func (m *MemStore) ListInBound(_ context.Context, b orb.Bound) ([]site.Site, error) {
	return m.list(0, func(s *site.Site) bool { return inBound(s, b) }), nil
}

func inBound(s *site.Site, b orb.Bound) bool {
	if s.Polygon != nil && b.Intersects(s.Polygon.Bound()) {
		return true
	}
	return s.Point != nil && b.Contains(s.Point.Point())
}

func (m *MemStore) write(id int64, fn func(*site.Site)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.Fail[id]; err != nil {
		return err
	}
	s, ok := m.sites[id]
	if !ok {
		return site.ErrNotFound
	}
	fn(s)
	m.Writes++
	return nil
}

func setPolygon(s *site.Site, status site.Status, poly orb.Ring) {
	switch {
	case status.ClearsPolygon():
		s.Polygon = nil
		s.PolygonInvalid = false
	case poly != nil:
		s.Polygon = poly
		s.PolygonInvalid = false
	}
}

// SaveMatch implements site.Store.
func (m *MemStore) SaveMatch(_ context.Context, id int64, u site.MatchUpdate) error {
	return m.write(id, func(s *site.Site) {
		s.Status = u.Status
		s.MatchScore = u.Score
		s.BoundaryID = u.BoundaryID
		setPolygon(s, u.Status, u.Polygon)
		s.Alternatives = u.Alternatives
	})
}

// SaveEvidence implements site.Store.
func (m *MemStore) SaveEvidence(_ context.Context, id int64, u site.EvidenceUpdate) error {
	return m.write(id, func(s *site.Site) {
		s.EvidenceID = u.ID
		s.EvidenceVerified = u.Verified
		s.EvidenceScore = u.Score
	})
}

// SaveArbitration implements site.Store.
func (m *MemStore) SaveArbitration(_ context.Context, id int64, u site.ArbitrationUpdate) error {
	return m.write(id, func(s *site.Site) {
		s.Status = u.Status
		s.BoundaryID = u.BoundaryID
		setPolygon(s, u.Status, u.Polygon)
		s.Notes = u.Notes
		if u.Status != site.StatusManualReview {
			s.Alternatives = nil
		}
	})
}

// MarkCompleted implements site.Store.
func (m *MemStore) MarkCompleted(_ context.Context, ids []int64, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range ids {
		if err := m.Fail[id]; err != nil {
			return n, err
		}
		s, ok := m.sites[id]
		if !ok || s.Completed {
			continue
		}
		t := at
		s.Completed = true
		s.CompletedAt = &t
		n++
	}
	m.Writes++
	return n, nil
}

// CountByStatus implements site.Store.
func (m *MemStore) CountByStatus(_ context.Context) ([]site.StatusCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[site.Status]*site.StatusCount)
	for _, s := range m.sites {
		c, ok := counts[s.Status]
		if !ok {
			c = &site.StatusCount{Status: s.Status}
			counts[s.Status] = c
		}
		c.Total++
		if s.Completed {
			c.Completed++
		}
	}
	out := make([]site.StatusCount, 0, len(counts))
	for _, c := range counts {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Status < out[j].Status })
	return out, nil
}
