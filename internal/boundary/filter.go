package boundary

// DefaultExclusions are tag values that mark sub-features rather than parks.
var DefaultExclusions = map[string][]string{
	"leisure": {"playground", "pitch", "sports_centre", "track", "dog_park"},
}

// Filter drops candidates that cannot be a Site boundary.
type Filter struct {
	Exclude   map[string][]string
	MinAreaM2 float64
	// MaxAreaM2 of zero means no upper bound.
	MaxAreaM2 float64
}

// DefaultFilter excludes unnamed candidates and the DefaultExclusions tags.
func DefaultFilter() Filter {
	return Filter{Exclude: DefaultExclusions}
}

// Keep reports whether c passes the filter, and if not, why.
func (f Filter) Keep(c Candidate) (bool, string) {
	if c.Name == "" {
		return false, "unnamed"
	}
	for key, values := range f.Exclude {
		v, ok := c.Tags[key]
		if !ok {
			continue
		}
		for _, ex := range values {
			if v == ex {
				return false, "excluded " + key + "=" + v
			}
		}
	}
	if f.MinAreaM2 > 0 && c.AreaM2 < f.MinAreaM2 {
		return false, "too small"
	}
	if f.MaxAreaM2 > 0 && c.AreaM2 > f.MaxAreaM2 {
		return false, "too large"
	}
	return true, ""
}

// Apply returns the candidates that pass the filter, in order.
func (f Filter) Apply(cands []Candidate) []Candidate {
	out := cands[:0:0]
	for _, c := range cands {
		if ok, _ := f.Keep(c); ok {
			out = append(out, c)
		}
	}
	return out
}
