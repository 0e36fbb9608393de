// Package catalog holds the fixed region geometry of the telemetry display.
//
// A Catalog maps each field identifier to a pixel rectangle, a value kind and
// the character whitelist used when the field is read with OCR. It is pure
// data: the geometry is a calibration for one known image layout and is never
// inferred at runtime. A Catalog is immutable after New and safe to share
// between concurrent invocations.
package catalog

import (
	"fmt"
	"image"

	"github.com/ironsheep/creek-ocr/internal/failure"
)

// ID identifies one field of the display.
type ID string

const (
	Timestamp          ID = "timestamp"
	AnnualRainfall     ID = "annual_rainfall"
	BottleCount        ID = "bottle_count"
	DailyRainfall      ID = "daily_rainfall"
	GraphImage         ID = "graph_image"
	Stage              ID = "stage"
	Temperature        ID = "temperature"
	Turbidity          ID = "turbidity"
	WeirImage          ID = "weir_image"
	WeirImageTimestamp ID = "weir_image_timestamp"
)

// Kind is the declared value kind of a region.
type Kind int

const (
	KindText Kind = iota
	KindDecimal
	KindInteger
	KindCaptionTime
	KindImage
)

var kindNames = map[Kind]string{
	KindText:        "text",
	KindDecimal:     "decimal",
	KindInteger:     "integer",
	KindCaptionTime: "caption_time",
	KindImage:       "image",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown region kind %q", s)
}

// NeedsOCR reports whether values of this kind come from text recognition.
func (k Kind) NeedsOCR() bool {
	return k != KindImage
}

// Rect is a pixel rectangle. Left and Top are inclusive, Right and Bottom
// exclusive.
type Rect struct {
	Left   int
	Top    int
	Right  int
	Bottom int
}

func (r Rect) Width() int  { return r.Right - r.Left }
func (r Rect) Height() int { return r.Bottom - r.Top }

// Valid reports whether the rectangle has a positive area.
func (r Rect) Valid() bool {
	return r.Left < r.Right && r.Top < r.Bottom
}

// Image returns the rectangle as an image.Rectangle.
func (r Rect) Image() image.Rectangle {
	return image.Rect(r.Left, r.Top, r.Right, r.Bottom)
}

func (r Rect) String() string {
	return fmt.Sprintf("(%d,%d)-(%d,%d)", r.Left, r.Top, r.Right, r.Bottom)
}

// Region describes one field on the display.
type Region struct {
	ID        ID
	Rect      Rect
	Kind      Kind
	Whitelist string
}

// StoreKey is the attribute name the region's value is persisted under.
func (r Region) StoreKey() string {
	if r.Kind == KindImage {
		return string(r.ID) + "_s3_path"
	}
	return string(r.ID)
}

// Catalog is an ordered, duplicate-free set of regions with one designated
// primary timestamp region.
type Catalog struct {
	regions []Region
	byID    map[ID]int
	primary ID
}

// New builds a catalog. The primary region must be one of regions; order is
// kept for All and Fields.
func New(primary ID, regions ...Region) (*Catalog, error) {
	c := &Catalog{
		regions: make([]Region, 0, len(regions)),
		byID:    make(map[ID]int, len(regions)),
		primary: primary,
	}

	for _, r := range regions {
		if r.ID == "" {
			return nil, fmt.Errorf("region with empty id")
		}
		if _, dup := c.byID[r.ID]; dup {
			return nil, fmt.Errorf("duplicate region %q", r.ID)
		}
		if !r.Rect.Valid() {
			return nil, fmt.Errorf("region %q: %w", r.ID,
				failure.NewInvalidRegion(string(r.ID), r.Rect.Left, r.Rect.Top, r.Rect.Right, r.Rect.Bottom))
		}
		if r.Kind.NeedsOCR() && r.Whitelist == "" {
			return nil, fmt.Errorf("region %q: %s kind requires a whitelist", r.ID, r.Kind)
		}
		c.byID[r.ID] = len(c.regions)
		c.regions = append(c.regions, r)
	}

	idx, ok := c.byID[primary]
	if !ok {
		return nil, fmt.Errorf("primary region %q not in catalog", primary)
	}
	if !c.regions[idx].Kind.NeedsOCR() {
		return nil, fmt.Errorf("primary region %q must be read with OCR", primary)
	}

	return c, nil
}

// Lookup returns the region registered under id.
func (c *Catalog) Lookup(id ID) (Region, bool) {
	idx, ok := c.byID[id]
	if !ok {
		return Region{}, false
	}
	return c.regions[idx], true
}

// Primary returns the region whose reading gives the record its identity.
func (c *Catalog) Primary() Region {
	return c.regions[c.byID[c.primary]]
}

// All returns every region in catalog order, primary included.
func (c *Catalog) All() []Region {
	out := make([]Region, len(c.regions))
	copy(out, c.regions)
	return out
}

// Fields returns every region except the primary timestamp region.
func (c *Catalog) Fields() []Region {
	out := make([]Region, 0, len(c.regions)-1)
	for _, r := range c.regions {
		if r.ID != c.primary {
			out = append(out, r)
		}
	}
	return out
}

// Len is the number of regions, primary included.
func (c *Catalog) Len() int {
	return len(c.regions)
}
