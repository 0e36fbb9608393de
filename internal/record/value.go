package record

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/ironsheep/creek-ocr/internal/catalog"
)

// Value is a typed field value. The set of implementations is closed:
// Decimal, Integer, Instant, Text and ImageRef.
type Value interface {
	// Kind is the catalog kind this value satisfies.
	Kind() catalog.Kind
	// String is the canonical text form, reversed by ParseValue.
	String() string

	isValue()
}

// Decimal is an arbitrary-precision decimal reading.
type Decimal struct {
	decimal.Decimal
}

func (Decimal) Kind() catalog.Kind { return catalog.KindDecimal }
func (d Decimal) String() string   { return d.Decimal.String() }
func (Decimal) isValue()           {}

// Integer is a whole-number reading.
type Integer int64

func (Integer) Kind() catalog.Kind { return catalog.KindInteger }
func (i Integer) String() string   { return strconv.FormatInt(int64(i), 10) }
func (Integer) isValue()           {}

// Instant is an absolute time in Unix seconds.
type Instant int64

func (Instant) Kind() catalog.Kind { return catalog.KindCaptionTime }
func (i Instant) String() string   { return strconv.FormatInt(int64(i), 10) }
func (Instant) isValue()           {}

// Text is a verbatim reading. It may be empty.
type Text string

func (Text) Kind() catalog.Kind { return catalog.KindText }
func (t Text) String() string   { return string(t) }
func (Text) isValue()           {}

// ImageRef is the object store key an archived region crop was written to.
type ImageRef string

func (ImageRef) Kind() catalog.Kind { return catalog.KindImage }
func (r ImageRef) String() string   { return string(r) }
func (ImageRef) isValue()           {}

// ParseValue rebuilds a value of kind from its String form.
func ParseValue(kind catalog.Kind, s string) (Value, error) {
	switch kind {
	case catalog.KindDecimal:
		d, err := decimal.NewFromString(s)
		if err != nil {
			return nil, fmt.Errorf("invalid decimal %q: %w", s, err)
		}
		return Decimal{d}, nil
	case catalog.KindInteger:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q: %w", s, err)
		}
		return Integer(n), nil
	case catalog.KindCaptionTime:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid instant %q: %w", s, err)
		}
		return Instant(n), nil
	case catalog.KindText:
		return Text(s), nil
	case catalog.KindImage:
		return ImageRef(s), nil
	default:
		return nil, fmt.Errorf("unknown value kind %d", kind)
	}
}

// jsonValue renders v for the flattened record document. Numeric kinds are
// emitted as JSON numbers without losing decimal precision.
func jsonValue(v Value) any {
	switch v := v.(type) {
	case Decimal, Integer, Instant:
		return json.Number(v.String())
	default:
		return v.String()
	}
}
