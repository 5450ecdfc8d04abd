package fhirjson

import "github.com/gofhir/fhirjson/pkg/merge"

// Fatal merge errors. Both leave the target record untouched.
type (
	ParseError          = merge.ParseError
	SchemaMismatchError = merge.SchemaMismatchError
)

// Causes wrapped by SchemaMismatchError.
var (
	ErrNotObject           = merge.ErrNotObject
	ErrMissingResourceType = merge.ErrMissingResourceType
	ErrUnknownResourceType = merge.ErrUnknownResourceType
	ErrWrongResourceType   = merge.ErrWrongResourceType
)

// IsFatal reports whether err is a ParseError or a SchemaMismatchError.
func IsFatal(err error) bool {
	return merge.IsFatal(err)
}
