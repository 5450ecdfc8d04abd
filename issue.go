package fhirjson

import "github.com/gofhir/fhirjson/pkg/issue"

// Re-exported issue types.
type (
	Issue     = issue.Issue
	Outcome   = issue.Outcome
	Reporter  = issue.Reporter
	Severity  = issue.Severity
	IssueType = issue.Type
)

// Severity constants.
const (
	SeverityFatal       = issue.SeverityFatal
	SeverityError       = issue.SeverityError
	SeverityWarning     = issue.SeverityWarning
	SeverityInformation = issue.SeverityInformation
)

// Issue types produced by the reporter.
const (
	IssueTypeStructure = issue.TypeStructure
	IssueTypeValue     = issue.TypeValue
)

// NewOutcome creates an empty Outcome.
func NewOutcome() *Outcome {
	return issue.NewOutcome()
}

// NewOutcomeReporter returns a Reporter appending to outcome.
func NewOutcomeReporter(outcome *Outcome) *issue.OutcomeReporter {
	return issue.NewOutcomeReporter(outcome)
}

// FailFast returns a Reporter that aborts on the first error.
func FailFast() Reporter {
	return issue.FailFast()
}
