package merge

import (
	"errors"
	"fmt"
)

// Causes of a SchemaMismatchError.
var (
	ErrNotObject           = errors.New("document is not a JSON object")
	ErrMissingResourceType = errors.New("resourceType is missing or not a string")
	ErrUnknownResourceType = errors.New("unknown resource type")
	ErrWrongResourceType   = errors.New("resourceType does not match the target")
)

// ParseError is returned when the input is not well-formed JSON or the
// sanitizer rejected it. The target record is left untouched.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return "parse error: " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// SchemaMismatchError is returned when the document's resourceType cannot
// be merged into the target. The target record is left untouched.
type SchemaMismatchError struct {
	// Want is the target's type name.
	Want string
	// Got is the document's resourceType, empty when absent.
	Got string
	Err error
}

func (e *SchemaMismatchError) Error() string {
	switch {
	case errors.Is(e.Err, ErrWrongResourceType):
		return fmt.Sprintf("schema mismatch: resourceType %q cannot be merged into %s", e.Got, e.Want)
	case e.Got != "":
		return fmt.Sprintf("schema mismatch: %s: %v", e.Got, e.Err)
	default:
		return fmt.Sprintf("schema mismatch: %v", e.Err)
	}
}

func (e *SchemaMismatchError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err aborted a merge before any data was kept.
func IsFatal(err error) bool {
	var pe *ParseError
	var se *SchemaMismatchError
	return errors.As(err, &pe) || errors.As(err, &se)
}
