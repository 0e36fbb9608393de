package pipeline

import (
	"strings"
	"time"

	"github.com/ironsheep/creek-ocr/internal/failure"
	"github.com/ironsheep/creek-ocr/internal/record"
)

const (
	// timestampLayout matches the display clock: month/day/year with a
	// 12-hour time, meridiem and offset appended by ResolveTimestamp.
	timestampLayout = "1/2/2006 3:04:05 PM -0700"

	// captionLayout matches the caption burned into the weir camera image.
	captionLayout = "2006/1/2 15:04:05 -0700"
)

// ResolveTimestamp turns the primary timestamp reading into the record
// identity.
//
// The display sometimes drops the meridiem marker. When text contains
// neither "AM" nor "PM" it is taken to be AM. This is a guess about the
// display and is wrong for afternoon captures that lose the marker.
//
// The display clock runs at DisplayOffset all year; no daylight saving
// correction is applied.
func ResolveTimestamp(text string) (record.Identity, error) {
	s := normalizeSpaces(text)
	if !strings.Contains(s, "AM") && !strings.Contains(s, "PM") {
		s += " AM"
	}
	s += " " + record.DisplayOffset

	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		return record.Identity{}, failure.NewTimestampUnresolved(text, err)
	}
	return record.NewIdentity(t), nil
}

// ParseCaptionTime parses a 24-hour year/month/day caption at the display
// offset and returns Unix seconds.
func ParseCaptionTime(text string) (int64, error) {
	t, err := time.Parse(captionLayout, normalizeSpaces(text)+" "+record.DisplayOffset)
	if err != nil {
		return 0, err
	}
	return t.Unix(), nil
}

// normalizeSpaces collapses runs of whitespace. Recognition output often
// carries doubled spaces between the date and time.
func normalizeSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
