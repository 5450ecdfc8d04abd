package issue

import "errors"

// Reporter receives problems found while merging or validating a record.
//
// Each method returns nil to let the caller continue. A non-nil return aborts
// the enclosing operation with that error.
type Reporter interface {
	// ReportConversionError records input data that could not be represented
	// in the target schema and was dropped.
	ReportConversionError(path string, err error) error

	// ReportValidationError records data that was kept but is invalid.
	ReportValidationError(path string, err error) error

	// ReportValidationWarning records an advisory finding.
	ReportValidationWarning(path string, err error) error
}

// ErrNilOutcome is returned by an OutcomeReporter that has no Outcome.
var ErrNilOutcome = errors.New("issue: reporter has no outcome")

// statusCoder is implemented by errors that carry a machine-readable code.
type statusCoder interface {
	StatusCode() string
}

// OutcomeReporter appends one Issue per call to a caller-owned Outcome.
//
// The reporter does not own the Outcome. It must not outlive it, and it keeps
// no state besides the pointer.
type OutcomeReporter struct {
	outcome *Outcome
}

// NewOutcomeReporter binds a reporter to outcome.
func NewOutcomeReporter(outcome *Outcome) *OutcomeReporter {
	return &OutcomeReporter{outcome: outcome}
}

// ReportConversionError appends {structure, error}.
func (r *OutcomeReporter) ReportConversionError(path string, err error) error {
	return r.report(path, err, TypeStructure, SeverityError)
}

// ReportValidationError appends {value, error}.
func (r *OutcomeReporter) ReportValidationError(path string, err error) error {
	return r.report(path, err, TypeValue, SeverityError)
}

// ReportValidationWarning appends {value, warning}.
func (r *OutcomeReporter) ReportValidationWarning(path string, err error) error {
	return r.report(path, err, TypeValue, SeverityWarning)
}

func (r *OutcomeReporter) report(path string, err error, t Type, severity Severity) error {
	if r == nil || r.outcome == nil {
		return ErrNilOutcome
	}
	r.outcome.Append(Issue{
		Path:        path,
		Code:        codeOf(err),
		Type:        t,
		Severity:    severity,
		Diagnostics: diagnosticsOf(err),
	})
	return nil
}

func codeOf(err error) string {
	var sc statusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	return ""
}

func diagnosticsOf(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// FailFast returns a Reporter that hands every error back to the caller,
// which aborts the operation on the first one. Warnings are ignored.
func FailFast() Reporter {
	return failFast{}
}

type failFast struct{}

func (failFast) ReportConversionError(_ string, err error) error {
	return errOrGeneric(err)
}

func (failFast) ReportValidationError(_ string, err error) error {
	return errOrGeneric(err)
}

func (failFast) ReportValidationWarning(string, error) error {
	return nil
}

func errOrGeneric(err error) error {
	if err == nil {
		return errors.New("issue: unspecified error")
	}
	return err
}

// Discard returns a Reporter that drops everything.
func Discard() Reporter {
	return discard{}
}

type discard struct{}

func (discard) ReportConversionError(string, error) error   { return nil }
func (discard) ReportValidationError(string, error) error   { return nil }
func (discard) ReportValidationWarning(string, error) error { return nil }

var (
	_ Reporter = (*OutcomeReporter)(nil)
	_ Reporter = failFast{}
	_ Reporter = discard{}
)
