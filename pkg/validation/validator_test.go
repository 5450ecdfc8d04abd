package validation

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gofhir/fhirjson/pkg/element"
	"github.com/gofhir/fhirjson/pkg/issue"
	"github.com/gofhir/fhirjson/pkg/logger"
	"github.com/gofhir/fhirjson/pkg/schema"
)

func field(name, typeCode string, min, max int) schema.Field {
	return schema.Field{Name: name, JSONKey: name, Kind: schema.KindPrimitive, Type: typeCode, Card: schema.Cardinality{Min: min, Max: max}}
}

func widgetRegistry() *schema.Registry {
	widget := schema.NewType("Widget", true,
		field("id", "id", 0, 1),
		field("name", "string", 1, 1),
		field("tag", "code", 0, schema.Unbounded),
		field("count", "positiveInt", 0, 1),
		field("limit", "string", 0, 2),
		schema.Field{
			Name: "value", JSONKey: "value", Kind: schema.KindChoice,
			Card:     schema.Cardinality{Min: 0, Max: 1},
			Branches: []schema.Branch{schema.NewBranch("string"), schema.NewBranch("uuid")},
		},
	)
	widget.Constraints = []schema.Constraint{
		{Key: "wid-1", Severity: "error", Human: "A widget needs a tag", Expression: "tag.exists()"},
		{Key: "wid-2", Severity: "warning", Expression: "count.exists()"},
		{Key: "wid-3", Severity: "error", Expression: "tag.where("},
		{Key: "wid-4", Severity: "error"},
	}
	reg := schema.NewRegistry()
	reg.Register(widget)
	return reg
}

func str(typeCode, s string) *element.Primitive {
	return element.NewPrimitive(typeCode, element.String(s))
}

type finding struct {
	Path     string
	Code     string
	Severity issue.Severity
}

func findings(issues []issue.Issue) []finding {
	out := make([]finding, len(issues))
	for i, iss := range issues {
		out[i] = finding{Path: iss.Path, Code: iss.Code, Severity: iss.Severity}
	}
	return out
}

func TestStructuralChecks(t *testing.T) {
	v := New(widgetRegistry(), Options{SkipConstraints: true}, logger.Nop())

	rec := element.NewComplex("Widget")
	rec.Set("id", str("id", "has space"))
	rec.Append("tag", str("code", "ok"), str("code", "two  spaces"))
	rec.Set("count", element.NewPrimitive("positiveInt", element.Integer(0)))
	rec.Append("limit", str("string", "a"), str("string", "b"), str("string", "c"))
	rec.SetChoice("value", "uuid", str("uuid", "not-a-uuid"))

	want := []finding{
		{"Widget.id", string(issue.DiagTypeInvalidFormat), issue.SeverityError},
		{"Widget.name", string(issue.DiagCardinalityMin), issue.SeverityError},
		{"Widget.tag[1]", string(issue.DiagTypeInvalidFormat), issue.SeverityError},
		{"Widget.count", string(issue.DiagTypeInvalidFormat), issue.SeverityError},
		{"Widget.limit", string(issue.DiagCardinalityMax), issue.SeverityError},
		{"Widget.valueUuid", string(issue.DiagTypeInvalidFormat), issue.SeverityError},
	}
	got := v.Validate(rec)
	if diff := cmp.Diff(want, findings(got)); diff != "" {
		t.Errorf("Validate() mismatch (-want +got):\n%s", diff)
	}
	if got[1].Type != issue.TypeRequired {
		t.Errorf("cardinality issue type = %q; want %q", got[1].Type, issue.TypeRequired)
	}
}

func TestValidRecordHasNoStructuralFindings(t *testing.T) {
	v := New(widgetRegistry(), Options{SkipConstraints: true}, logger.Nop())

	rec := element.NewComplex("Widget")
	rec.Set("id", str("id", "w-1"))
	rec.Set("name", str("string", "gear"))
	rec.Append("tag", str("code", "spare part"))
	rec.Set("count", element.NewPrimitive("positiveInt", element.Integer(3)))
	rec.SetChoice("value", "uuid", str("uuid", "urn:uuid:c757873d-ec9a-4326-a141-556f43239520"))

	if got := v.Validate(rec); len(got) != 0 {
		t.Errorf("Validate() = %v; want no issues", got)
	}
}

func TestConstraints(t *testing.T) {
	v := New(widgetRegistry(), Options{SkipCardinality: true, SkipFormats: true}, logger.Nop())

	rec := element.NewComplex("Widget")
	rec.Set("name", str("string", "gear"))

	want := []finding{
		{"Widget", string(issue.DiagConstraintFailed), issue.SeverityError},
		{"Widget", string(issue.DiagConstraintFailed), issue.SeverityWarning},
		{"Widget", string(issue.DiagConstraintCompileError), issue.SeverityWarning},
	}
	got := v.Validate(rec)
	if diff := cmp.Diff(want, findings(got)); diff != "" {
		t.Fatalf("Validate() mismatch (-want +got):\n%s", diff)
	}
	if want := "Constraint failed: wid-1: 'A widget needs a tag'"; got[0].Diagnostics != want {
		t.Errorf("Diagnostics = %q; want %q", got[0].Diagnostics, want)
	}

	rec.Append("tag", str("code", "x"))
	rec.Set("count", element.NewPrimitive("positiveInt", element.Integer(1)))
	want = want[2:]
	if diff := cmp.Diff(want, findings(v.Validate(rec))); diff != "" {
		t.Errorf("Validate() after fix mismatch (-want +got):\n%s", diff)
	}

	if s := v.CacheStats(); s.Size != 2 || s.Hits < 2 {
		t.Errorf("CacheStats() = %+v; want 2 cached expressions reused", s)
	}
}

func TestNestedPaths(t *testing.T) {
	v := New(nil, Options{SkipConstraints: true}, logger.Nop())

	ident := element.NewComplex("Identifier")
	ident.Set("system", str("uri", "not a uri"))

	ext := element.NewComplex("Extension")
	ext.Set("url", str("uri", "http://example.org/x"))
	birth := &element.Primitive{Type: "date", Extension: []*element.Complex{ext}}

	rec := element.NewComplex("Patient")
	rec.Append("identifier", element.NewComplex("Identifier"), ident)
	rec.Set("birthDate", birth)

	want := []finding{
		{"Patient.identifier[1].system", string(issue.DiagTypeInvalidFormat), issue.SeverityError},
	}
	if diff := cmp.Diff(want, findings(v.Validate(rec))); diff != "" {
		t.Errorf("Validate() mismatch (-want +got):\n%s", diff)
	}

	ext.Clear("url")
	want = []finding{
		{"Patient.identifier[1].system", string(issue.DiagTypeInvalidFormat), issue.SeverityError},
		{"Patient._birthDate.extension[0].url", string(issue.DiagCardinalityMin), issue.SeverityError},
	}
	if diff := cmp.Diff(want, findings(v.Validate(rec))); diff != "" {
		t.Errorf("Validate() mismatch (-want +got):\n%s", diff)
	}
}

func TestUnknownTypeIsSkipped(t *testing.T) {
	v := New(nil, Options{}, logger.Nop())
	if got := v.Validate(element.NewComplex("HumanName")); got != nil {
		t.Errorf("Validate(HumanName) = %v; want nil", got)
	}
	if got := v.Validate(nil); got != nil {
		t.Errorf("Validate(nil) = %v; want nil", got)
	}
}
