// Package merge reads FHIR JSON into typed records.
//
// The merger walks the decoded document and the schema tables side by side.
// Input that cannot be represented is dropped and reported through an
// issue.Reporter; only unparsable text and a resourceType that does not fit
// the target abort the merge.
package merge

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	json "github.com/goccy/go-json"

	"github.com/gofhir/fhirjson/pkg/element"
	"github.com/gofhir/fhirjson/pkg/issue"
	"github.com/gofhir/fhirjson/pkg/logger"
	"github.com/gofhir/fhirjson/pkg/sanitize"
	"github.com/gofhir/fhirjson/pkg/schema"
)

// Validator checks a merged record. It must not modify the record.
type Validator interface {
	Validate(rec *element.Complex) []issue.Issue
}

// Merger merges JSON documents into records. It is safe for concurrent use
// as long as each call has its own target and Reporter.
type Merger struct {
	reg       *schema.Registry
	validator Validator
	log       *logger.Logger
}

// New creates a Merger. A nil registry selects the built-in R4 tables and a
// nil logger the package default.
func New(reg *schema.Registry, v Validator, log *logger.Logger) *Merger {
	if reg == nil {
		reg = schema.R4()
	}
	if log == nil {
		log = logger.Default().Named("merge")
	}
	return &Merger{reg: reg, validator: v, log: log}
}

// Registry returns the tables the merger walks with.
func (m *Merger) Registry() *schema.Registry {
	return m.reg
}

// MergeInto merges raw into target.
//
// Offset-less dates and times are read in loc (UTC when nil). When validate
// is set the merged data is passed to the Validator and its findings are
// forwarded to rep. A non-nil error from rep stops the merge and is returned
// as is; target is modified only when MergeInto returns nil.
func (m *Merger) MergeInto(raw []byte, target *element.Complex, loc *time.Location, san sanitize.Sanitizer, validate bool, rep issue.Reporter) error {
	if target == nil {
		return errors.New("merge: nil target")
	}
	if rep == nil {
		rep = issue.Discard()
	}
	if san == nil {
		san = sanitize.PassThrough
	}
	if loc == nil {
		loc = time.UTC
	}

	text, err := san.Sanitize(raw)
	if err != nil {
		m.log.Debug("sanitize failed: %v", err)
		return &ParseError{Err: fmt.Errorf("sanitize: %w", err)}
	}

	doc, err := decode(text)
	if err != nil {
		m.log.Debug("decode failed: %v", err)
		return &ParseError{Err: err}
	}

	obj, typ, err := m.resolveRoot(doc, target.Type)
	if err != nil {
		m.log.Debug("%v", err)
		return err
	}

	scratch := element.NewComplex(typ.Name)
	w := &walker{reg: m.reg, loc: loc, rep: rep}

	dups, err := duplicateKeys(text, typ.Name)
	if err != nil {
		return &ParseError{Err: err}
	}
	for _, d := range dups {
		if err := w.drop(d.path, issue.DiagDuplicateKey, map[string]any{"element": d.key}); err != nil {
			return err
		}
	}

	if err := w.object(obj, typ, scratch, typ.Name, true); err != nil {
		return err
	}

	if validate && m.validator != nil {
		if err := forward(m.validator.Validate(scratch), rep); err != nil {
			return err
		}
	}

	target.MergeFrom(scratch, func(name string) bool {
		f, ok := typ.Field(name)
		return ok && f.Card.Repeated()
	})
	return nil
}

// decode parses text into an untyped tree. Numbers stay json.Number so their
// lexical form survives.
func decode(text []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(text))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty input")
		}
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after top-level value")
	}
	return doc, nil
}

func (m *Merger) resolveRoot(doc any, want string) (map[string]any, *schema.Type, error) {
	typ, err := m.reg.Resource(want)
	if err != nil {
		return nil, nil, &SchemaMismatchError{Want: want, Err: fmt.Errorf("%w: %v", ErrUnknownResourceType, err)}
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, nil, &SchemaMismatchError{Want: want, Err: ErrNotObject}
	}
	got, ok := obj["resourceType"].(string)
	if !ok {
		return nil, nil, &SchemaMismatchError{Want: want, Err: ErrMissingResourceType}
	}
	if got != want {
		return nil, nil, &SchemaMismatchError{Want: want, Got: got, Err: ErrWrongResourceType}
	}
	return obj, typ, nil
}

// forward reports validator findings. Errors and fatals become validation
// errors; warnings and information become validation warnings.
func forward(issues []issue.Issue, rep issue.Reporter) error {
	for i := range issues {
		iss := &issues[i]
		var err error
		if iss.IsError() {
			err = rep.ReportValidationError(iss.Path, iss.Err())
		} else {
			err = rep.ReportValidationWarning(iss.Path, iss.Err())
		}
		if err != nil {
			return err
		}
	}
	return nil
}
