package pipeline

import (
	"testing"

	"github.com/ironsheep/creek-ocr/internal/catalog"
	"github.com/ironsheep/creek-ocr/internal/failure"
	"github.com/ironsheep/creek-ocr/internal/record"
)

func TestResolveTimestamp(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		date      string
		hour      int
		localHour int
		unix      int64
	}{
		{"missing meridiem defaults to AM", "03/10/2024 7:15:30", "2024-03-10", 15, 7, 1710083730},
		{"explicit AM", "03/10/2024 7:15:30 AM", "2024-03-10", 15, 7, 1710083730},
		{"explicit PM rolls UTC date", "03/10/2024 7:15:30 PM", "2024-03-11", 3, 19, 1710126930},
		{"midnight", "03/10/2024 12:00:00 AM", "2024-03-10", 8, 0, 1710057600},
		{"noon", "03/10/2024 12:00:00 PM", "2024-03-10", 20, 12, 1710100800},
		{"unpadded month and day", "3/9/2024 1:02:03 AM", "2024-03-09", 9, 1, 1709974923},
		{"doubled spaces", "03/10/2024  7:15:30  AM", "2024-03-10", 15, 7, 1710083730},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := ResolveTimestamp(tt.text)
			if err != nil {
				t.Fatalf("ResolveTimestamp(%q) failed: %v", tt.text, err)
			}
			if id.Date != tt.date {
				t.Errorf("date: got %s, want %s", id.Date, tt.date)
			}
			if id.Hour != tt.hour {
				t.Errorf("hour: got %d, want %d", id.Hour, tt.hour)
			}
			if id.LocalHour() != tt.localHour {
				t.Errorf("local hour: got %d, want %d", id.LocalHour(), tt.localHour)
			}
			if id.Unix != tt.unix {
				t.Errorf("unix: got %d, want %d", id.Unix, tt.unix)
			}
		})
	}
}

func TestResolveTimestamp_MeridiemDefault(t *testing.T) {
	id, err := ResolveTimestamp("03/10/2024 7:15:30")
	if err != nil {
		t.Fatalf("ResolveTimestamp failed: %v", err)
	}
	if id.LocalHour() != 7 {
		t.Errorf("display hour: got %d, want 7 (not 19)", id.LocalHour())
	}
}

func TestResolveTimestamp_FixedOffset(t *testing.T) {
	// Six months apart, across the US daylight saving switch.
	winter, err := ResolveTimestamp("01/15/2024 10:00:00 AM")
	if err != nil {
		t.Fatalf("winter: %v", err)
	}
	summer, err := ResolveTimestamp("07/15/2024 10:00:00 AM")
	if err != nil {
		t.Fatalf("summer: %v", err)
	}

	if winter.Hour != 18 || summer.Hour != 18 {
		t.Errorf("UTC hours: got %d and %d, want 18 for both", winter.Hour, summer.Hour)
	}

	const days = 182
	if got := summer.Unix - winter.Unix; got != days*24*60*60 {
		t.Errorf("instant difference: got %d, want %d", got, days*24*60*60)
	}
}

func TestResolveTimestamp_Unresolved(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"garbage",
		"03/10/2024",
		"13/10/2024 7:15:30 AM",
		"03/10/2024 13:15:30 PM",
		"03/10/2024 7:15:30 pm",
		"2024/03/10 07:15:30",
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			_, err := ResolveTimestamp(in)
			if !failure.Is(err, failure.TimestampUnresolved) {
				t.Fatalf("expected TimestampUnresolved, got %v", err)
			}
			var fe *failure.Error
			if !asFailure(err, &fe) || fe.Raw != in {
				t.Errorf("raw text not carried: %v", err)
			}
		})
	}
}

func TestParseCaptionTime(t *testing.T) {
	unix, err := ParseCaptionTime("2024/03/10 07:15:30")
	if err != nil {
		t.Fatalf("ParseCaptionTime failed: %v", err)
	}
	if unix != 1710083730 {
		t.Errorf("unix: got %d, want 1710083730", unix)
	}

	unix, err = ParseCaptionTime("2024/3/10 19:15:30")
	if err != nil {
		t.Fatalf("ParseCaptionTime failed: %v", err)
	}
	if unix != 1710083730+12*3600 {
		t.Errorf("24-hour clock: got %d", unix)
	}

	for _, bad := range []string{"", "03/10/2024 07:15:30", "2024/03/10", "2024/03/10 25:00:00"} {
		if _, err := ParseCaptionTime(bad); err == nil {
			t.Errorf("ParseCaptionTime(%q) should fail", bad)
		}
	}
}

func TestCoerce(t *testing.T) {
	region := func(kind catalog.Kind) catalog.Region {
		return catalog.Region{ID: "f", Kind: kind}
	}

	tests := []struct {
		name    string
		kind    catalog.Kind
		text    string
		ref     string
		want    string
		wantErr bool
	}{
		{"text verbatim", catalog.KindText, "a b", "", "a b", false},
		{"empty text", catalog.KindText, "", "", "", false},
		{"decimal", catalog.KindDecimal, "12.375", "", "12.375", false},
		{"negative decimal", catalog.KindDecimal, "-0.5", "", "-0.5", false},
		{"decimal empty", catalog.KindDecimal, "", "", "", true},
		{"decimal garbage", catalog.KindDecimal, "1.2.3", "", "", true},
		{"integer", catalog.KindInteger, "42", "", "42", false},
		{"integer with point", catalog.KindInteger, "4.2", "", "", true},
		{"integer empty", catalog.KindInteger, "", "", "", true},
		{"caption", catalog.KindCaptionTime, "2024/03/10 07:15:30", "", "1710083730", false},
		{"caption garbage", catalog.KindCaptionTime, "07:15", "", "", true},
		{"image", catalog.KindImage, "ignored", "crops/a_graph_image.gif", "crops/a_graph_image.gif", false},
		{"image without ref", catalog.KindImage, "", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Coerce(region(tt.kind), tt.text, tt.ref)
			if tt.wantErr {
				if !failure.Is(err, failure.FieldCoercion) {
					t.Fatalf("expected FieldCoercion, got %v", err)
				}
				var fe *failure.Error
				if asFailure(err, &fe) && (fe.Field != "f" || fe.Raw != tt.text) {
					t.Errorf("field/raw: got %s/%q", fe.Field, fe.Raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("Coerce failed: %v", err)
			}
			if v.Kind() != tt.kind {
				t.Errorf("kind: got %v, want %v", v.Kind(), tt.kind)
			}
			if v.String() != tt.want {
				t.Errorf("value: got %q, want %q", v.String(), tt.want)
			}
		})
	}
}

func TestCoerce_DecimalPrecision(t *testing.T) {
	v, err := Coerce(catalog.Region{ID: catalog.AnnualRainfall, Kind: catalog.KindDecimal}, "0.1", "")
	if err != nil {
		t.Fatalf("Coerce failed: %v", err)
	}
	d := v.(record.Decimal)
	sum := d.Add(d.Decimal).Add(d.Decimal)
	if sum.String() != "0.3" {
		t.Errorf("decimal arithmetic lost precision: %s", sum)
	}
}
