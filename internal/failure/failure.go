// Package failure defines the error kinds raised while turning a display
// capture into a record.
//
// Every error produced by the pipeline and by its storage collaborators is an
// *Error carrying a Code. Codes decide what happens next: fatal codes abort the
// invocation, FieldCoercion and (outside the timestamp region) OCREngine only
// drop the field they concern.
package failure

import (
	"errors"
	"fmt"
)

// Code classifies a failure.
type Code string

const (
	UnreadableImage     Code = "UNREADABLE_IMAGE"
	RegionOutOfBounds   Code = "REGION_OUT_OF_BOUNDS"
	OCREngine           Code = "OCR_ENGINE"
	TimestampUnresolved Code = "TIMESTAMP_UNRESOLVED"
	FieldCoercion       Code = "FIELD_COERCION"
	Storage             Code = "STORAGE"
)

// Error is a classified failure. Field and Raw are set for per-field failures.
type Error struct {
	Code    Code
	Message string
	Field   string
	Raw     string
	Cause   error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Field != "" {
		msg = fmt.Sprintf("%s (field=%s raw=%q)", msg, e.Field, e.Raw)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Fatal reports whether a failure of this code aborts the whole invocation
// regardless of where it was raised.
func Fatal(code Code) bool {
	switch code {
	case FieldCoercion, OCREngine:
		return false
	default:
		return true
	}
}

// Is reports whether any *Error in err's chain carries code.
func Is(err error, code Code) bool {
	for err != nil {
		var fe *Error
		if !errors.As(err, &fe) {
			return false
		}
		if fe.Code == code {
			return true
		}
		err = fe.Cause
	}
	return false
}

// CodeOf returns the code of the outermost *Error in err's chain, or "".
func CodeOf(err error) Code {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// NewUnreadableImage reports source bytes that do not decode.
func NewUnreadableImage(cause error) *Error {
	return &Error{
		Code:    UnreadableImage,
		Message: "source bytes are not a decodable image",
		Cause:   cause,
	}
}

// NewRegionOutOfBounds reports a rectangle that does not fit the image.
func NewRegionOutOfBounds(x1, y1, x2, y2 int, width, height int) *Error {
	return &Error{
		Code: RegionOutOfBounds,
		Message: fmt.Sprintf("region (%d,%d)-(%d,%d) invalid for %dx%d image",
			x1, y1, x2, y2, width, height),
	}
}

// NewInvalidRegion reports a catalog rectangle with no area. It carries the
// RegionOutOfBounds code since no image can contain it.
func NewInvalidRegion(field string, x1, y1, x2, y2 int) *Error {
	return &Error{
		Code:    RegionOutOfBounds,
		Message: fmt.Sprintf("invalid rectangle (%d,%d)-(%d,%d)", x1, y1, x2, y2),
		Field:   field,
	}
}

// NewOCREngine wraps a recognizer failure.
func NewOCREngine(cause error) *Error {
	return &Error{
		Code:    OCREngine,
		Message: "recognition engine failed",
		Cause:   cause,
	}
}

// NewTimestampUnresolved reports primary text that does not parse.
func NewTimestampUnresolved(raw string, cause error) *Error {
	return &Error{
		Code:    TimestampUnresolved,
		Message: "primary timestamp could not be resolved",
		Field:   "timestamp",
		Raw:     raw,
		Cause:   cause,
	}
}

// NewFieldCoercion reports a reading that does not convert to its kind.
func NewFieldCoercion(field, raw string, cause error) *Error {
	return &Error{
		Code:    FieldCoercion,
		Message: "reading does not convert to the field kind",
		Field:   field,
		Raw:     raw,
		Cause:   cause,
	}
}

// NewStorage wraps an object or record store failure for op on key.
func NewStorage(op, key string, cause error) *Error {
	return &Error{
		Code:    Storage,
		Message: fmt.Sprintf("%s %q", op, key),
		Cause:   cause,
	}
}
