package fhirjson

import (
	"time"

	"github.com/gofhir/fhirjson/pkg/element"
	"github.com/gofhir/fhirjson/pkg/issue"
)

// Result is a record together with the issues found while reading it.
type Result struct {
	// Record is nil when the merge failed.
	Record *element.Complex

	Outcome  *issue.Outcome
	Duration time.Duration
}

// Valid reports whether the record was read and no error issues were found.
func (r *Result) Valid() bool {
	return r.Record != nil && !r.HasErrors()
}

// HasErrors reports whether any issue is an error.
func (r *Result) HasErrors() bool {
	return r.Outcome != nil && r.Outcome.HasErrors()
}

// ConversionErrors returns the issues for input that was dropped.
func (r *Result) ConversionErrors() []Issue {
	return r.ofType(issue.TypeStructure)
}

// ValidationIssues returns the validator findings.
func (r *Result) ValidationIssues() []Issue {
	return r.ofType(issue.TypeValue)
}

func (r *Result) ofType(t issue.Type) []Issue {
	if r.Outcome == nil {
		return nil
	}
	var out []Issue
	for _, iss := range r.Outcome.Issues() {
		if iss.Type == t {
			out = append(out, iss)
		}
	}
	return out
}

// OperationOutcome returns the issues as an OperationOutcome resource.
func (r *Result) OperationOutcome(pretty bool) ([]byte, error) {
	if r.Outcome == nil {
		return issue.NewOutcome().MarshalJSON()
	}
	if pretty {
		return r.Outcome.PrettyJSON()
	}
	return r.Outcome.MarshalJSON()
}
