package overpass

import (
	"fmt"
	"strconv"
	"strings"
)

// TagFilter matches elements whose Key tag equals any of Values.
type TagFilter struct {
	Key    string
	Values []string
}

func (f TagFilter) selector() string {
	if len(f.Values) == 1 {
		return fmt.Sprintf("[%q=%q]", f.Key, f.Values[0])
	}
	return fmt.Sprintf("[%q~%q]", f.Key, "^("+strings.Join(f.Values, "|")+")$")
}

// Query builds an Overpass QL union over ways and relations matching any of
// the filters inside an area clause, returning full geometry.
type Query struct {
	Filters []TagFilter
	// TimeoutSecs is the server-side query timeout.
	TimeoutSecs int
}

// Around restricts the query to radius meters of (lat, lon).
func (q Query) Around(lat, lon, radius float64) string {
	return q.build(fmt.Sprintf("(around:%s,%s,%s)", ftoa(radius), ftoa(lat), ftoa(lon)))
}

// BBox restricts the query to a south/west/north/east bounding box.
func (q Query) BBox(south, west, north, east float64) string {
	return q.build(fmt.Sprintf("(%s,%s,%s,%s)", ftoa(south), ftoa(west), ftoa(north), ftoa(east)))
}

func (q Query) build(area string) string {
	timeout := q.TimeoutSecs
	if timeout <= 0 {
		timeout = 60
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[out:json][timeout:%d];\n(\n", timeout)
	for _, f := range q.Filters {
		sel := f.selector()
		fmt.Fprintf(&b, "  way%s%s;\n", sel, area)
		fmt.Fprintf(&b, "  relation%s%s;\n", sel, area)
	}
	b.WriteString(");\nout geom;")
	return b.String()
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
