package arbitration

import (
	"encoding/json"
	"math"
	"strings"
)

// Recommendation is the arbitrator's verdict.
type Recommendation string

// Recommendations.
const (
	Confirm          Recommendation = "confirm"
	AlternativeFound Recommendation = "alternative_found"
	Reject           Recommendation = "reject"
	ManualReview     Recommendation = "manual_review"
)

func (r Recommendation) valid() bool {
	switch r {
	case Confirm, AlternativeFound, Reject, ManualReview:
		return true
	}
	return false
}

// Decision is a parsed arbitration response.
type Decision struct {
	Recommendation Recommendation `json:"recommendation"`
	Confidence     int            `json:"confidence"`
	Reasoning      string         `json:"reasoning"`
	SelectedID     string         `json:"selectedOsmId,omitempty"`
}

// ParseError reports a response that could not be read as a decision.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "arbitration: unparseable response: " + e.Reason
}

type wireDecision struct {
	Recommendation string   `json:"recommendation"`
	Confidence     *float64 `json:"confidence"`
	Reasoning      string   `json:"reasoning"`
	SelectedID     string   `json:"selectedOsmId"`
}

func parse(text string) (Decision, error) {
	cleaned := cleanJSON(text)
	if cleaned == "" {
		return Decision{}, &ParseError{Reason: "empty response"}
	}

	var w wireDecision
	if err := json.Unmarshal([]byte(cleaned), &w); err != nil {
		return Decision{}, &ParseError{Reason: err.Error()}
	}

	rec := Recommendation(strings.ToLower(strings.TrimSpace(w.Recommendation)))
	if !rec.valid() {
		return Decision{}, &ParseError{Reason: "unknown recommendation " + w.Recommendation}
	}
	if w.Confidence == nil {
		return Decision{}, &ParseError{Reason: "missing confidence"}
	}

	conf := math.Round(*w.Confidence)
	conf = math.Max(0, math.Min(100, conf))

	return Decision{
		Recommendation: rec,
		Confidence:     int(conf),
		Reasoning:      strings.TrimSpace(w.Reasoning),
		SelectedID:     strings.TrimSpace(w.SelectedID),
	}, nil
}

// ParseDecision reads a response. It never fails: unreadable text yields a
// manual_review decision with confidence 0.
func ParseDecision(text string) Decision {
	d, err := parse(text)
	if err != nil {
		return Decision{Recommendation: ManualReview, Confidence: 0, Reasoning: err.Error()}
	}
	return d
}

// cleanJSON extracts a JSON object from text that may carry markdown code
// fences or surrounding prose.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
