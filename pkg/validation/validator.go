// Package validation checks merged records against their schema tables.
//
// Three checks run over a record: element cardinality, the lexical rules of
// string-based primitive types, and the FHIRPath invariants declared on the
// resource type. Findings are returned as issues; the record is never
// modified.
package validation

import (
	"github.com/gofhir/fhirpath"
	"github.com/gofhir/fhirpath/funcs"

	"github.com/gofhir/fhirjson/cache"
	"github.com/gofhir/fhirjson/pkg/element"
	"github.com/gofhir/fhirjson/pkg/issue"
	"github.com/gofhir/fhirjson/pkg/logger"
	"github.com/gofhir/fhirjson/pkg/printer"
	"github.com/gofhir/fhirjson/pkg/schema"
	"github.com/gofhir/fhirjson/pool"
)

func init() {
	// Invariants such as dom-3 call trace(); keep it quiet.
	funcs.SetTraceLogger(funcs.NullTraceLogger{})
}

// Options selects the checks a Validator runs.
type Options struct {
	// SkipCardinality disables min/max checks.
	SkipCardinality bool

	// SkipFormats disables lexical checks of string-based primitives.
	SkipFormats bool

	// SkipConstraints disables FHIRPath invariants.
	SkipConstraints bool

	// ExpressionCacheSize bounds the compiled-expression cache.
	ExpressionCacheSize int
}

// Validator checks records. It is safe for concurrent use.
type Validator struct {
	reg     *schema.Registry
	printer *printer.Printer
	exprs   *cache.Cache[string, *fhirpath.Expression]
	opts    Options
	log     *logger.Logger
}

// New creates a Validator over reg (the built-in R4 tables when nil).
func New(reg *schema.Registry, opts Options, log *logger.Logger) *Validator {
	if reg == nil {
		reg = schema.R4()
	}
	if log == nil {
		log = logger.Default().Named("validation")
	}
	return &Validator{
		reg:     reg,
		printer: printer.New(reg),
		exprs:   cache.New[string, *fhirpath.Expression](opts.ExpressionCacheSize),
		opts:    opts,
		log:     log,
	}
}

// CacheStats returns the compiled-expression cache counters.
func (v *Validator) CacheStats() cache.Stats {
	return v.exprs.Stats()
}

// Validate returns the findings for rec. A record whose type is not a
// registered resource yields no findings.
func (v *Validator) Validate(rec *element.Complex) []issue.Issue {
	if rec == nil {
		return nil
	}
	t, err := v.reg.Resource(rec.Type)
	if err != nil {
		v.log.Debug("skipping validation: %v", err)
		return nil
	}

	var issues []issue.Issue
	if !v.opts.SkipCardinality || !v.opts.SkipFormats {
		v.walk(rec, t, rec.Type, &issues)
	}
	if !v.opts.SkipConstraints && len(t.Constraints) > 0 {
		v.constraints(rec, t, &issues)
	}
	return issues
}

// walk visits every field of c in declaration order.
func (v *Validator) walk(c *element.Complex, t *schema.Type, path string, out *[]issue.Issue) {
	for i := range t.Fields {
		f := &t.Fields[i]
		val := c.Get(f.Name)
		if !v.opts.SkipCardinality {
			checkCardinality(f, val, path, out)
		}
		if val == nil {
			continue
		}

		typeCode := f.Type
		key := f.JSONKey
		if f.Kind == schema.KindChoice {
			b, ok := f.BranchByType(val.Branch)
			if !ok {
				continue
			}
			typeCode = b.Type
			key += b.Suffix
		}
		fieldPath := pool.Child(path, key)
		compPath := pool.Companion(path, key)

		for j, n := range val.Items {
			itemPath, itemComp := fieldPath, compPath
			if f.Card.Repeated() {
				itemPath, itemComp = pool.Item(fieldPath, j), pool.Item(compPath, j)
			}
			switch n := n.(type) {
			case *element.Primitive:
				if !v.opts.SkipFormats {
					checkFormat(typeCode, n, itemPath, out)
				}
				extPath := pool.Child(itemComp, "extension")
				for k, ext := range n.Extension {
					v.nested(ext, "Extension", pool.Item(extPath, k), out)
				}
			case *element.Complex:
				v.nested(n, typeCode, itemPath, out)
			}
		}
	}
}

func (v *Validator) nested(c *element.Complex, typeCode, path string, out *[]issue.Issue) {
	if c == nil {
		return
	}
	t, ok := v.reg.Lookup(typeCode)
	if !ok {
		return
	}
	v.walk(c, t, path, out)
}

// newIssue builds a finding whose type comes from the diagnostic template.
func newIssue(id issue.DiagnosticID, severity issue.Severity, path string, params map[string]any) issue.Issue {
	t := issue.TypeValue
	if tmpl, ok := issue.GetDiagnosticTemplate(id); ok {
		t = tmpl.Type
	}
	return issue.Issue{
		Path:        path,
		Code:        string(id),
		Type:        t,
		Severity:    severity,
		Diagnostics: issue.FormatDiagnostic(id, params),
	}
}
