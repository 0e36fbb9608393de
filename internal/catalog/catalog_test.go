package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ironsheep/creek-ocr/internal/failure"
)

func TestDefault(t *testing.T) {
	c := Default()

	if c.Len() != 10 {
		t.Fatalf("Len: got %d, want 10", c.Len())
	}
	if c.Primary().ID != Timestamp {
		t.Errorf("Primary: got %s, want %s", c.Primary().ID, Timestamp)
	}
	if c.Primary().Whitelist != TimestampWhitelist {
		t.Errorf("Primary whitelist: got %q", c.Primary().Whitelist)
	}

	fields := c.Fields()
	if len(fields) != 9 {
		t.Fatalf("Fields: got %d, want 9", len(fields))
	}
	for _, f := range fields {
		if f.ID == Timestamp {
			t.Error("Fields must exclude the primary region")
		}
	}

	// Every default region fits the 1077x784 display.
	for _, r := range c.All() {
		if r.Rect.Right > 1077 || r.Rect.Bottom > 784 {
			t.Errorf("%s: %s exceeds display", r.ID, r.Rect)
		}
	}
}

func TestLookup(t *testing.T) {
	c := Default()

	r, ok := c.Lookup(Turbidity)
	if !ok {
		t.Fatal("Lookup(turbidity) not found")
	}
	if r.Kind != KindInteger {
		t.Errorf("turbidity kind: got %s, want integer", r.Kind)
	}
	if r.Rect != (Rect{40, 270, 140, 307}) {
		t.Errorf("turbidity rect: got %s", r.Rect)
	}

	if _, ok := c.Lookup("nope"); ok {
		t.Error("Lookup should miss unknown ids")
	}
}

func TestAll_ReturnsCopy(t *testing.T) {
	c := Default()
	all := c.All()
	all[0].ID = "mutated"

	if c.All()[0].ID == "mutated" {
		t.Error("All must not expose internal storage")
	}
}

func TestStoreKey(t *testing.T) {
	tests := []struct {
		region Region
		want   string
	}{
		{Region{ID: Stage, Kind: KindDecimal}, "stage"},
		{Region{ID: WeirImage, Kind: KindImage}, "weir_image_s3_path"},
		{Region{ID: GraphImage, Kind: KindImage}, "graph_image_s3_path"},
		{Region{ID: WeirImageTimestamp, Kind: KindCaptionTime}, "weir_image_timestamp"},
	}

	for _, tt := range tests {
		t.Run(string(tt.region.ID), func(t *testing.T) {
			if got := tt.region.StoreKey(); got != tt.want {
				t.Errorf("StoreKey: got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestNew_Invalid(t *testing.T) {
	ts := Region{ID: Timestamp, Rect: Rect{0, 0, 10, 10}, Kind: KindText, Whitelist: "0"}

	tests := []struct {
		name    string
		primary ID
		regions []Region
		wantErr string
	}{
		{
			"duplicate id",
			Timestamp,
			[]Region{ts, ts},
			"duplicate",
		},
		{
			"zero width",
			Timestamp,
			[]Region{ts, {ID: Stage, Rect: Rect{5, 0, 5, 10}, Kind: KindDecimal, Whitelist: "0"}},
			"invalid rectangle",
		},
		{
			"inverted height",
			Timestamp,
			[]Region{ts, {ID: Stage, Rect: Rect{0, 10, 5, 0}, Kind: KindDecimal, Whitelist: "0"}},
			"invalid rectangle",
		},
		{
			"missing whitelist",
			Timestamp,
			[]Region{ts, {ID: Stage, Rect: Rect{0, 0, 5, 5}, Kind: KindDecimal}},
			"whitelist",
		},
		{
			"missing primary",
			Stage,
			[]Region{ts},
			"primary",
		},
		{
			"image primary",
			WeirImage,
			[]Region{{ID: WeirImage, Rect: Rect{0, 0, 5, 5}, Kind: KindImage}},
			"OCR",
		},
		{
			"empty id",
			Timestamp,
			[]Region{ts, {Rect: Rect{0, 0, 5, 5}, Kind: KindImage}},
			"empty id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.primary, tt.regions...)
			if err == nil {
				t.Fatal("New should fail")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestNew_DegenerateRectIsOutOfBounds(t *testing.T) {
	tests := []struct {
		name string
		rect Rect
	}{
		{"left equals right", Rect{10, 0, 10, 5}},
		{"top equals bottom", Rect{0, 5, 10, 5}},
		{"inverted", Rect{10, 0, 0, 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(Timestamp, Region{ID: Timestamp, Rect: tt.rect, Kind: KindText, Whitelist: "0"})
			if !failure.Is(err, failure.RegionOutOfBounds) {
				t.Fatalf("expected RegionOutOfBounds, got %v", err)
			}
		})
	}
}

func TestParse_DegenerateRectIsOutOfBounds(t *testing.T) {
	doc := "primary: timestamp\nregions:\n  - {id: timestamp, rect: [10, 0, 10, 5], kind: text, whitelist: \"0\"}\n"

	_, err := Parse([]byte(doc))
	if !failure.Is(err, failure.RegionOutOfBounds) {
		t.Fatalf("expected RegionOutOfBounds, got %v", err)
	}
}

func TestParseKind(t *testing.T) {
	for _, k := range []Kind{KindText, KindDecimal, KindInteger, KindCaptionTime, KindImage} {
		got, err := ParseKind(k.String())
		if err != nil {
			t.Fatalf("ParseKind(%s): %v", k, err)
		}
		if got != k {
			t.Errorf("ParseKind(%s): got %s", k, got)
		}
	}

	if _, err := ParseKind("float"); err == nil {
		t.Error("ParseKind should reject unknown kinds")
	}
}

func TestLoadFile(t *testing.T) {
	doc := `
primary: timestamp
regions:
  - id: timestamp
    rect: [0, 0, 100, 20]
    kind: text
    whitelist: "0123456789:/ APM"
  - id: stage
    rect: [0, 20, 50, 40]
    kind: decimal
    whitelist: "0123456789."
  - id: weir_image
    rect: [50, 20, 100, 80]
    kind: image
`
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if c.Len() != 3 {
		t.Fatalf("Len: got %d, want 3", c.Len())
	}
	stage, _ := c.Lookup(Stage)
	if stage.Rect != (Rect{0, 20, 50, 40}) || stage.Kind != KindDecimal {
		t.Errorf("stage: got %+v", stage)
	}
	fields := c.Fields()
	if fields[0].ID != Stage || fields[1].ID != WeirImage {
		t.Errorf("Fields order: got %s, %s", fields[0].ID, fields[1].ID)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"bad yaml", "primary: [unterminated"},
		{"short rect", "primary: a\nregions:\n  - {id: a, rect: [1, 2, 3], kind: text, whitelist: x}\n"},
		{"bad kind", "primary: a\nregions:\n  - {id: a, rect: [0, 0, 3, 3], kind: float, whitelist: x}\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.doc)); err == nil {
				t.Error("Parse should fail")
			}
		})
	}
}

func TestMarshal_RoundTripsDefault(t *testing.T) {
	data, err := Marshal(Default())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	c, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := Default().All()
	got := c.All()
	if len(got) != len(want) {
		t.Fatalf("regions: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("region %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}
