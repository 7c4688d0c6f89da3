package site

import (
	"context"
	"time"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
)

// ErrNotFound is returned when a site id does not exist.
var ErrNotFound = eris.New("site: not found")

// Store persists Sites. Every write touches a single site, so a batch that
// fails part way leaves earlier sites fully updated.
type Store interface {
	Get(ctx context.Context, id int64) (*Site, error)
	Create(ctx context.Context, s *Site) (int64, error)

	ListForMatching(ctx context.Context, f MatchFilter) ([]Site, error)
	ListAmbiguous(ctx context.Context, limit int) ([]Site, error)
	ListForEvidence(ctx context.Context, adminArea string, limit int) ([]Site, error)
	// ListIncomplete returns incomplete sites whose polygon envelope or
	// point falls inside b.
	ListIncomplete(ctx context.Context, b orb.Bound, limit int) ([]Site, error)
	ListInBound(ctx context.Context, b orb.Bound) ([]Site, error)

	SaveMatch(ctx context.Context, id int64, u MatchUpdate) error
	SaveEvidence(ctx context.Context, id int64, u EvidenceUpdate) error
	SaveArbitration(ctx context.Context, id int64, u ArbitrationUpdate) error
	// MarkCompleted flags the given sites as visited at the given time.
	// Sites already completed keep their original timestamp. It returns the
	// number of sites newly completed.
	MarkCompleted(ctx context.Context, ids []int64, at time.Time) (int64, error)

	CountByStatus(ctx context.Context) ([]StatusCount, error)
}
