// Package record holds the output of one capture: its identity, typed field
// values, the fields that failed and the object store key naming used for a
// capture and its crops.
package record

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/ironsheep/creek-ocr/internal/catalog"
	"github.com/ironsheep/creek-ocr/internal/failure"
)

// DisplayOffset is the UTC offset the display clock runs at. The display
// never switches to daylight saving time, so the offset is fixed year-round.
const DisplayOffset = "-0800"

// DisplayZone is DisplayOffset as a location.
var DisplayZone = time.FixedZone("PST", -8*60*60)

// Identity is the record key derived from the primary timestamp.
type Identity struct {
	// Date is the UTC calendar date, YYYY-MM-DD.
	Date string
	// Hour is the UTC hour of day, 0-23.
	Hour int
	// Unix is the capture instant in seconds since the epoch.
	Unix int64
}

// NewIdentity derives an identity from an instant.
func NewIdentity(t time.Time) Identity {
	u := t.UTC()
	return Identity{
		Date: u.Format(time.DateOnly),
		Hour: u.Hour(),
		Unix: u.Unix(),
	}
}

// Time is the identity instant in UTC.
func (id Identity) Time() time.Time {
	return time.Unix(id.Unix, 0).UTC()
}

// LocalHour is the hour of day as shown on the display clock.
func (id Identity) LocalHour() int {
	return time.Unix(id.Unix, 0).In(DisplayZone).Hour()
}

// FieldFailure records why a field is missing from a record.
type FieldFailure struct {
	ID      catalog.ID   `json:"id"`
	Code    failure.Code `json:"code"`
	Raw     string       `json:"raw,omitempty"`
	Message string       `json:"message"`
}

// Record is one assembled capture. It is immutable: accessors return copies.
type Record struct {
	identity  Identity
	sourceKey string
	fields    map[catalog.ID]Value
	failures  []FieldFailure
	partial   bool
}

// New builds a record. fields and failures are copied; nil values in fields
// are dropped.
func New(identity Identity, sourceKey string, fields map[catalog.ID]Value, failures []FieldFailure, partial bool) *Record {
	r := &Record{
		identity:  identity,
		sourceKey: sourceKey,
		fields:    make(map[catalog.ID]Value, len(fields)),
		partial:   partial,
	}
	for id, v := range fields {
		if v != nil {
			r.fields[id] = v
		}
	}
	if len(failures) > 0 {
		r.failures = append([]FieldFailure(nil), failures...)
	}
	return r
}

// Identity returns the capture identity resolved from the primary region.
func (r *Record) Identity() Identity { return r.identity }

// SourceKey is the object store key of the archived source image.
func (r *Record) SourceKey() string { return r.sourceKey }

// Field returns the value for id and whether it is present.
func (r *Record) Field(id catalog.ID) (Value, bool) {
	v, ok := r.fields[id]
	return v, ok
}

// Fields returns a copy of the field mapping. Mutating it does not affect
// the record.
func (r *Record) Fields() map[catalog.ID]Value {
	out := make(map[catalog.ID]Value, len(r.fields))
	for id, v := range r.fields {
		out[id] = v
	}
	return out
}

// Failures returns a copy of the per-field failures, in catalog order.
func (r *Record) Failures() []FieldFailure {
	return append([]FieldFailure(nil), r.failures...)
}

// Partial reports whether field processing was cut short by a deadline or
// cancellation.
func (r *Record) Partial() bool { return r.partial }

// Len is the number of fields present.
func (r *Record) Len() int { return len(r.fields) }

// IDs returns the present field ids in sorted order.
func (r *Record) IDs() []catalog.ID {
	ids := make([]catalog.ID, 0, len(r.fields))
	for id := range r.fields {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// AttributeName is the flattened document key for a field: the id itself,
// or <id>_s3_path for archived crops.
func AttributeName(id catalog.ID, v Value) string {
	return catalog.Region{ID: id, Kind: v.Kind()}.StoreKey()
}

// MarshalJSON flattens the record into a single object: identity attributes,
// one attribute per present field and the failure list.
func (r *Record) MarshalJSON() ([]byte, error) {
	doc := map[string]any{
		"s3_key":         r.sourceKey,
		"date_string":    r.identity.Date,
		"hour_of_day":    r.identity.Hour,
		"unix_timestamp": r.identity.Unix,
		"partial":        r.partial,
	}
	for id, v := range r.fields {
		doc[AttributeName(id, v)] = jsonValue(v)
	}
	failures := r.failures
	if failures == nil {
		failures = []FieldFailure{}
	}
	doc["failed_fields"] = failures
	return json.Marshal(doc)
}
