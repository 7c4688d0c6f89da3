package boundary

import (
	"os"
	"strings"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/parktrail/internal/config"
)

// Region is a named bounding box, typically an administrative area.
type Region struct {
	Name  string
	Bound orb.Bound
}

type regionsFile struct {
	Regions []config.RegionConfig `yaml:"regions"`
}

// LoadRegions returns the regions declared inline in cfg followed by those
// in cfg.RegionsFile, if set. Later entries with the same name replace
// earlier ones.
func LoadRegions(cfg config.BoundaryConfig) ([]Region, error) {
	defs := append([]config.RegionConfig(nil), cfg.Regions...)

	if cfg.RegionsFile != "" {
		data, err := os.ReadFile(cfg.RegionsFile)
		if err != nil {
			return nil, eris.Wrapf(err, "boundary: read regions file %s", cfg.RegionsFile)
		}
		var rf regionsFile
		if err := yaml.Unmarshal(data, &rf); err != nil {
			return nil, eris.Wrapf(err, "boundary: parse regions file %s", cfg.RegionsFile)
		}
		defs = append(defs, rf.Regions...)
	}

	var out []Region
	index := make(map[string]int)
	for _, d := range defs {
		r, err := regionFromConfig(d)
		if err != nil {
			return nil, err
		}
		key := strings.ToLower(r.Name)
		if i, ok := index[key]; ok {
			out[i] = r
			continue
		}
		index[key] = len(out)
		out = append(out, r)
	}
	return out, nil
}

func regionFromConfig(d config.RegionConfig) (Region, error) {
	if d.Name == "" {
		return Region{}, eris.New("boundary: region without a name")
	}
	if d.South >= d.North || d.West >= d.East {
		return Region{}, eris.Errorf("boundary: region %q has an empty bounding box", d.Name)
	}
	if d.South < -90 || d.North > 90 || d.West < -180 || d.East > 180 {
		return Region{}, eris.Errorf("boundary: region %q is out of range", d.Name)
	}
	return Region{
		Name:  d.Name,
		Bound: orb.Bound{Min: orb.Point{d.West, d.South}, Max: orb.Point{d.East, d.North}},
	}, nil
}

// FindRegion looks up a region by case-insensitive name.
func FindRegion(regions []Region, name string) (Region, bool) {
	for _, r := range regions {
		if strings.EqualFold(r.Name, name) {
			return r, true
		}
	}
	return Region{}, false
}
