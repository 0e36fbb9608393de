package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileCatalog is the on-disk form of a catalog:
//
//	primary: timestamp
//	regions:
//	  - id: timestamp
//	    rect: [530, 57, 897, 90]
//	    kind: text
//	    whitelist: "0123456789:/ APM"
type fileCatalog struct {
	Primary string       `yaml:"primary"`
	Regions []fileRegion `yaml:"regions"`
}

type fileRegion struct {
	ID        string `yaml:"id"`
	Rect      []int  `yaml:"rect"`
	Kind      string `yaml:"kind"`
	Whitelist string `yaml:"whitelist"`
}

// LoadFile reads a YAML catalog and validates it with New.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var fc fileCatalog
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	regions := make([]Region, 0, len(fc.Regions))
	for i, fr := range fc.Regions {
		if len(fr.Rect) != 4 {
			return nil, fmt.Errorf("region %d (%q): rect needs 4 values, got %d", i, fr.ID, len(fr.Rect))
		}
		kind, err := ParseKind(fr.Kind)
		if err != nil {
			return nil, fmt.Errorf("region %d (%q): %w", i, fr.ID, err)
		}
		regions = append(regions, Region{
			ID:        ID(fr.ID),
			Rect:      Rect{Left: fr.Rect[0], Top: fr.Rect[1], Right: fr.Rect[2], Bottom: fr.Rect[3]},
			Kind:      kind,
			Whitelist: fr.Whitelist,
		})
	}

	return New(ID(fc.Primary), regions...)
}

// Marshal encodes c in the LoadFile format.
func Marshal(c *Catalog) ([]byte, error) {
	fc := fileCatalog{Primary: string(c.primary)}
	for _, r := range c.regions {
		fc.Regions = append(fc.Regions, fileRegion{
			ID:        string(r.ID),
			Rect:      []int{r.Rect.Left, r.Rect.Top, r.Rect.Right, r.Rect.Bottom},
			Kind:      r.Kind.String(),
			Whitelist: r.Whitelist,
		})
	}
	return yaml.Marshal(fc)
}
