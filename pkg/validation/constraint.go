package validation

import (
	"github.com/gofhir/fhirpath"

	"github.com/gofhir/fhirjson/pkg/element"
	"github.com/gofhir/fhirjson/pkg/issue"
	"github.com/gofhir/fhirjson/pkg/printer"
	"github.com/gofhir/fhirjson/pkg/schema"
)

// constraints evaluates the invariants of the resource type against the
// standard JSON rendering of rec.
func (v *Validator) constraints(rec *element.Complex, t *schema.Type, out *[]issue.Issue) {
	data, err := v.printer.Marshal(rec, printer.Format{})
	if err != nil {
		v.log.Warn("cannot render %s for invariants: %v", rec.Type, err)
		return
	}

	for _, c := range t.Constraints {
		if c.Expression == "" {
			continue
		}

		expr, err := v.exprs.GetOrLoad(c.Expression, func() (*fhirpath.Expression, error) {
			return fhirpath.Compile(c.Expression)
		})
		if err != nil {
			*out = append(*out, newIssue(issue.DiagConstraintCompileError, issue.SeverityWarning, t.Name, map[string]any{
				"key":   c.Key,
				"error": err.Error(),
			}))
			continue
		}

		result, err := expr.Evaluate(data)
		if err != nil {
			*out = append(*out, newIssue(issue.DiagConstraintEvalError, issue.SeverityWarning, t.Name, map[string]any{
				"key":   c.Key,
				"error": err.Error(),
			}))
			continue
		}

		if passed(result) {
			continue
		}
		severity := issue.SeverityWarning
		if c.Severity == "error" {
			severity = issue.SeverityError
		}
		human := c.Human
		if human == "" {
			human = c.Expression
		}
		*out = append(*out, newIssue(issue.DiagConstraintFailed, severity, t.Name, map[string]any{
			"key":   c.Key,
			"human": human,
		}))
	}
}

// passed treats an empty result, or one that is not a boolean, as a pass.
func passed(result fhirpath.Collection) bool {
	if result.Empty() {
		return true
	}
	b, err := result.ToBoolean()
	if err != nil {
		return true
	}
	return b
}
