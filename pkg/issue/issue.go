// Package issue defines transcoding issues aligned with FHIR OperationOutcome,
// the caller-owned Outcome that collects them, and the Reporter that writes them.
package issue

import (
	"bytes"

	json "github.com/goccy/go-json"
)

// Severity represents the severity of an issue.
type Severity string

// Severity constants aligned with FHIR IssueSeverity.
const (
	SeverityFatal       Severity = "fatal"
	SeverityError       Severity = "error"
	SeverityWarning     Severity = "warning"
	SeverityInformation Severity = "information"
)

// Type is the kind of problem (FHIR IssueType).
type Type string

// Type constants aligned with FHIR IssueType. The reporter only emits
// structure and value; the rest are used by validators for their own findings.
const (
	TypeStructure   Type = "structure"
	TypeValue       Type = "value"
	TypeRequired    Type = "required"
	TypeInvariant   Type = "invariant"
	TypeInvalid     Type = "invalid"
	TypeProcessing  Type = "processing"
	TypeNotFound    Type = "not-found"
	TypeException   Type = "exception"
	TypeInformation Type = "informational"
)

// Issue is one finding recorded during a merge or validation pass.
type Issue struct {
	// Path is the element path, e.g. "Patient.name[0].given[1]".
	Path string

	// Code is the machine-readable status carried by the underlying error.
	Code string

	Type     Type
	Severity Severity

	// Diagnostics is the human-readable description.
	Diagnostics string
}

// IsError reports whether the issue is error or fatal.
func (i Issue) IsError() bool {
	return i.Severity == SeverityError || i.Severity == SeverityFatal
}

// Err returns the issue as an error that keeps its code, so it can be
// forwarded through a Reporter.
func (i Issue) Err() error {
	return &DiagnosticError{ID: DiagnosticID(i.Code), Message: i.Diagnostics}
}

// Outcome is an ordered, append-only sequence of issues.
//
// An Outcome is owned by the caller. It is not safe for concurrent use;
// give each concurrent merge its own Outcome.
type Outcome struct {
	issues []Issue
}

const defaultIssueCapacity = 8

// NewOutcome creates an empty Outcome.
func NewOutcome() *Outcome {
	return &Outcome{issues: make([]Issue, 0, defaultIssueCapacity)}
}

// Append adds an issue at the end.
func (o *Outcome) Append(i Issue) {
	o.issues = append(o.issues, i)
}

// Issues returns a copy of the issues in insertion order.
func (o *Outcome) Issues() []Issue {
	out := make([]Issue, len(o.issues))
	copy(out, o.issues)
	return out
}

// Len returns the number of issues.
func (o *Outcome) Len() int {
	return len(o.issues)
}

// At returns the i-th issue.
func (o *Outcome) At(i int) Issue {
	return o.issues[i]
}

// HasErrors returns true if there are any error-level issues.
func (o *Outcome) HasErrors() bool {
	for _, i := range o.issues {
		if i.IsError() {
			return true
		}
	}
	return false
}

// ErrorCount returns the number of error-level issues.
func (o *Outcome) ErrorCount() int {
	n := 0
	for _, i := range o.issues {
		if i.IsError() {
			n++
		}
	}
	return n
}

// WarningCount returns the number of warning-level issues.
func (o *Outcome) WarningCount() int {
	return o.count(func(i Issue) bool { return i.Severity == SeverityWarning })
}

// CountType returns the number of issues of the given type.
func (o *Outcome) CountType(t Type) int {
	return o.count(func(i Issue) bool { return i.Type == t })
}

func (o *Outcome) count(match func(Issue) bool) int {
	n := 0
	for _, i := range o.issues {
		if match(i) {
			n++
		}
	}
	return n
}

// Filter returns the issues with the given severity.
func (o *Outcome) Filter(severity Severity) []Issue {
	var out []Issue
	for _, i := range o.issues {
		if i.Severity == severity {
			out = append(out, i)
		}
	}
	return out
}

// Reset drops all issues, keeping capacity.
func (o *Outcome) Reset() {
	for i := range o.issues {
		o.issues[i] = Issue{}
	}
	o.issues = o.issues[:0]
}

type outcomeIssueJSON struct {
	Severity    Severity            `json:"severity"`
	Code        Type                `json:"code"`
	Details     *outcomeDetailsJSON `json:"details,omitempty"`
	Diagnostics string              `json:"diagnostics,omitempty"`
	Expression  []string            `json:"expression,omitempty"`
}

type outcomeDetailsJSON struct {
	Text string `json:"text"`
}

type outcomeJSON struct {
	ResourceType string             `json:"resourceType"`
	Issue        []outcomeIssueJSON `json:"issue"`
}

// MarshalJSON renders the Outcome as a FHIR OperationOutcome resource.
// The status code is carried in issue.details.text.
func (o *Outcome) MarshalJSON() ([]byte, error) {
	doc := outcomeJSON{
		ResourceType: "OperationOutcome",
		Issue:        make([]outcomeIssueJSON, 0, len(o.issues)),
	}
	for _, i := range o.issues {
		oi := outcomeIssueJSON{
			Severity:    i.Severity,
			Code:        i.Type,
			Diagnostics: i.Diagnostics,
		}
		if i.Code != "" {
			oi.Details = &outcomeDetailsJSON{Text: i.Code}
		}
		if i.Path != "" {
			oi.Expression = []string{i.Path}
		}
		doc.Issue = append(doc.Issue, oi)
	}
	return json.Marshal(doc)
}

// PrettyJSON renders the Outcome as an indented OperationOutcome.
func (o *Outcome) PrettyJSON() ([]byte, error) {
	raw, err := o.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
