package pipeline

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/ironsheep/creek-ocr/internal/catalog"
	"github.com/ironsheep/creek-ocr/internal/failure"
	"github.com/ironsheep/creek-ocr/internal/record"
)

var errNoReference = errors.New("no stored reference for image region")

// Coerce converts one reading into a value of the region's kind. text is the
// recognized text and is ignored for image regions; ref is the store key of
// an archived crop and is only used for image regions.
//
// Conversion failures are failure.FieldCoercion carrying the field id and
// the raw reading.
func Coerce(region catalog.Region, text, ref string) (record.Value, error) {
	field := string(region.ID)

	switch region.Kind {
	case catalog.KindText:
		return record.Text(text), nil

	case catalog.KindDecimal:
		d, err := decimal.NewFromString(text)
		if err != nil {
			return nil, failure.NewFieldCoercion(field, text, err)
		}
		return record.Decimal{Decimal: d}, nil

	case catalog.KindInteger:
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return nil, failure.NewFieldCoercion(field, text, err)
		}
		return record.Integer(n), nil

	case catalog.KindCaptionTime:
		unix, err := ParseCaptionTime(text)
		if err != nil {
			return nil, failure.NewFieldCoercion(field, text, err)
		}
		return record.Instant(unix), nil

	case catalog.KindImage:
		if ref == "" {
			return nil, failure.NewFieldCoercion(field, "", errNoReference)
		}
		return record.ImageRef(ref), nil

	default:
		return nil, failure.NewFieldCoercion(field, text, fmt.Errorf("unknown kind %v", region.Kind))
	}
}
