package validation

import (
	"github.com/gofhir/fhirjson/pkg/element"
	"github.com/gofhir/fhirjson/pkg/issue"
	"github.com/gofhir/fhirjson/pkg/schema"
	"github.com/gofhir/fhirjson/pool"
)

// checkCardinality compares the item count of one field with its declared
// min..max. Choice fields are reported under their "[x]" name.
func checkCardinality(f *schema.Field, val *element.Value, parent string, out *[]issue.Issue) {
	count := 0
	if val != nil {
		count = len(val.Items)
	}

	name := f.JSONKey
	if f.Kind == schema.KindChoice {
		name += "[x]"
	}

	if count < f.Card.Min {
		*out = append(*out, newIssue(issue.DiagCardinalityMin, issue.SeverityError, pool.Child(parent, name), map[string]any{
			"path":  pool.Child(parent, name),
			"min":   f.Card.Min,
			"count": count,
		}))
	}
	if f.Card.Max != schema.Unbounded && count > f.Card.Max {
		*out = append(*out, newIssue(issue.DiagCardinalityMax, issue.SeverityError, pool.Child(parent, name), map[string]any{
			"path":  pool.Child(parent, name),
			"max":   f.Card.Max,
			"count": count,
		}))
	}
}
