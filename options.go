package fhirjson

import (
	"runtime"

	"github.com/gofhir/fhirjson/pkg/logger"
	"github.com/gofhir/fhirjson/pkg/merge"
	"github.com/gofhir/fhirjson/pkg/sanitize"
	"github.com/gofhir/fhirjson/pkg/schema"
)

// Option configures a Parser.
type Option func(*Options)

// Options holds the configuration of a Parser.
type Options struct {
	// Timezone is the IANA name used for dates and times without an offset.
	// Empty means UTC.
	Timezone string

	// Sanitizer runs over the raw input before decoding.
	Sanitizer sanitize.Sanitizer

	// Validate runs the Validator after each merge made through Parse or
	// MergeInto.
	Validate bool

	// Validator checks merged records. Nil selects the built-in validator.
	Validator merge.Validator

	// Registry holds the schema tables. Nil selects the built-in R4 tables.
	Registry *schema.Registry

	Logger  *logger.Logger
	Metrics *Metrics

	// Workers bounds ParseBatch concurrency.
	Workers int

	// ExpressionCacheSize bounds the compiled FHIRPath cache of the built-in
	// validator.
	ExpressionCacheSize int

	// SkipConstraints turns off FHIRPath invariants in the built-in validator.
	SkipConstraints bool
}

// DefaultOptions returns the default configuration.
func DefaultOptions() *Options {
	return &Options{
		Sanitizer:           sanitize.PassThrough,
		Validate:            true,
		Workers:             runtime.NumCPU(),
		ExpressionCacheSize: 512,
	}
}

// WithTimezone sets the zone for offset-less dates and times.
func WithTimezone(name string) Option {
	return func(o *Options) {
		o.Timezone = name
	}
}

// WithSanitizer sets the input sanitizer. Nil restores PassThrough.
func WithSanitizer(s sanitize.Sanitizer) Option {
	return func(o *Options) {
		if s == nil {
			s = sanitize.PassThrough
		}
		o.Sanitizer = s
	}
}

// WithValidation enables or disables validation after each merge.
func WithValidation(enable bool) Option {
	return func(o *Options) {
		o.Validate = enable
	}
}

// WithValidator replaces the built-in validator.
func WithValidator(v merge.Validator) Option {
	return func(o *Options) {
		o.Validator = v
	}
}

// WithRegistry sets the schema tables, e.g. ones built by the loader.
func WithRegistry(reg *schema.Registry) Option {
	return func(o *Options) {
		o.Registry = reg
	}
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithMetrics records merge and print counters into m.
func WithMetrics(m *Metrics) Option {
	return func(o *Options) {
		o.Metrics = m
	}
}

// WithWorkers sets the batch concurrency. Values <= 0 are ignored.
func WithWorkers(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.Workers = n
		}
	}
}

// WithExpressionCache sets the compiled FHIRPath cache size.
func WithExpressionCache(size int) Option {
	return func(o *Options) {
		if size > 0 {
			o.ExpressionCacheSize = size
		}
	}
}

// WithConstraints enables or disables FHIRPath invariants.
func WithConstraints(enable bool) Option {
	return func(o *Options) {
		o.SkipConstraints = !enable
	}
}

// LenientOptions accepts BOM-prefixed input with raw control characters
// and skips validation.
func LenientOptions() []Option {
	return []Option{
		WithSanitizer(sanitize.Chain(sanitize.StripBOM, sanitize.EscapeControlCharacters)),
		WithValidation(false),
	}
}

// StrictOptions validates every merge including invariants.
func StrictOptions() []Option {
	return []Option{
		WithValidation(true),
		WithConstraints(true),
		WithSanitizer(sanitize.PassThrough),
	}
}
