package arbitration

import (
	"fmt"
	"sort"
	"strings"
)

const systemPrompt = `You resolve which OpenStreetMap polygon is the boundary of a named park or green space.

Reply with a single JSON object and nothing else:
{"recommendation": "confirm" | "alternative_found" | "reject" | "manual_review",
 "confidence": <integer 0-100>,
 "reasoning": "<one or two sentences>",
 "selectedOsmId": "<id from the candidate list, required for confirm and alternative_found>"}

Rules:
- confirm: the current match is the site. selectedOsmId is the current match id.
- alternative_found: another listed candidate is the site. selectedOsmId must be copied exactly from the list.
- reject: none of the candidates is the site and the site itself may not be a park.
- manual_review: you cannot decide from the information given.
- Never invent an id. Only ids in the candidate list are accepted.
- When candidates are listed, prefer choosing the best of them over reject. A candidate that covers the site with a slightly different name (for example "Gardens" versus "Park") is usually the right answer.
- Larger polygons that contain the site point usually describe the whole park; small nearby polygons are often sub-features such as playgrounds or gardens inside it.`

// BuildPrompt renders the user message for req.
func BuildPrompt(req Request) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Site: %s\n", req.Name)
	if req.AdminArea != "" {
		fmt.Fprintf(&b, "Area: %s\n", req.AdminArea)
	}
	if req.Category != "" {
		fmt.Fprintf(&b, "Category: %s\n", req.Category)
	}
	fmt.Fprintf(&b, "Public access: %t\n", req.PublicAccess)
	fmt.Fprintf(&b, "Location: %.6f, %.6f\n", req.Point.Lat, req.Point.Lon)
	if req.Context != "" {
		fmt.Fprintf(&b, "Context: %s\n", req.Context)
	}

	if req.Current != nil {
		fmt.Fprintf(&b, "\nCurrent match: %s %q\n", req.Current.ExternalID, req.Current.Name)
	} else {
		b.WriteString("\nCurrent match: none\n")
	}

	b.WriteString("\nCandidates (best ranked first):\n")
	for i, a := range req.Alternatives {
		typ := a.Type
		if typ == "" {
			typ = "unknown"
		}
		fmt.Fprintf(&b, "%d. id=%s name=%q type=%s distance_m=%.0f area_m2=%.0f name_score=%.2f\n",
			i+1, a.ExternalID, a.Name, typ, a.DistanceM, a.AreaM2, a.NameScore)
		if len(a.Tags) > 0 {
			fmt.Fprintf(&b, "   tags: %s\n", formatTags(a.Tags))
		}
	}
	return b.String()
}

func formatTags(tags map[string]string) string {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + tags[k]
	}
	return strings.Join(parts, ", ")
}
