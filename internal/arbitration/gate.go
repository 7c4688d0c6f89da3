package arbitration

import (
	"fmt"

	"github.com/sells-group/parktrail/internal/site"
)

// Thresholds are the minimum confidences for applying a decision.
type Thresholds struct {
	Confirm     int
	Alternative int
	Reject      int
}

// DefaultThresholds returns the standard auto-apply bars.
func DefaultThresholds() Thresholds {
	return Thresholds{Confirm: 85, Alternative: 85, Reject: 90}
}

// Outcome is a gated decision ready to persist.
type Outcome struct {
	// Applied is false when the site was routed to manual review.
	Applied bool
	Update  site.ArbitrationUpdate
	// Reason explains a manual-review routing.
	Reason string
}

// Validate checks that a selected id was offered in req. Decisions that
// need a selection and lack a valid one become manual_review.
func Validate(d Decision, req Request) Decision {
	switch d.Recommendation {
	case Confirm:
		if d.SelectedID == "" && req.Current != nil {
			d.SelectedID = req.Current.ExternalID
		}
	case AlternativeFound:
	default:
		return d
	}

	if req.Find(d.SelectedID) == nil {
		return Decision{
			Recommendation: ManualReview,
			Confidence:     0,
			Reasoning:      fmt.Sprintf("selected id %q was not offered; %s", d.SelectedID, d.Reasoning),
		}
	}
	return d
}

// Gate validates d against req and decides whether it clears the
// thresholds. Anything that does not is routed to manual review with the
// current boundary id kept.
func (t Thresholds) Gate(d Decision, req Request) Outcome {
	d = Validate(d, req)

	switch d.Recommendation {
	case Confirm, AlternativeFound:
		bar := t.Confirm
		if d.Recommendation == AlternativeFound {
			bar = t.Alternative
		}
		alt := req.Find(d.SelectedID)
		if d.Confidence >= bar && alt != nil && len(alt.Ring) >= 4 {
			return Outcome{
				Applied: true,
				Update: site.ArbitrationUpdate{
					Status:     site.StatusMatched,
					BoundaryID: alt.ExternalID,
					Polygon:    alt.Ring,
					Notes:      note(d),
				},
			}
		}
		if alt != nil && len(alt.Ring) < 4 {
			return t.manual(d, req, "selected candidate has no polygon")
		}
		return t.manual(d, req, fmt.Sprintf("confidence %d below %d", d.Confidence, bar))

	case Reject:
		if d.Confidence >= t.Reject {
			return Outcome{
				Applied: true,
				Update: site.ArbitrationUpdate{
					Status: site.StatusRejected,
					Notes:  note(d),
				},
			}
		}
		return t.manual(d, req, fmt.Sprintf("confidence %d below %d", d.Confidence, t.Reject))

	default:
		return t.manual(d, req, "arbitrator requested manual review")
	}
}

func (t Thresholds) manual(d Decision, req Request, reason string) Outcome {
	boundaryID := ""
	if req.Current != nil {
		boundaryID = req.Current.ExternalID
	}
	return Outcome{
		Update: site.ArbitrationUpdate{
			Status:     site.StatusManualReview,
			BoundaryID: boundaryID,
			Notes:      note(d),
		},
		Reason: reason,
	}
}

func note(d Decision) string {
	n := fmt.Sprintf("arbitration: %s (%d)", d.Recommendation, d.Confidence)
	if d.SelectedID != "" {
		n += " " + d.SelectedID
	}
	if d.Reasoning != "" {
		n += ": " + d.Reasoning
	}
	return n
}
