package merge

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/gofhir/fhirjson/pkg/element"
	"github.com/gofhir/fhirjson/pkg/issue"
	"github.com/gofhir/fhirjson/pkg/logger"
	"github.com/gofhir/fhirjson/pkg/sanitize"
)

func newMerger(v Validator) *Merger {
	return New(nil, v, logger.Nop())
}

// mergeJSON merges doc into a fresh record of type typ and returns the
// record and the collected issues.
func mergeJSON(t *testing.T, typ, doc string) (*element.Complex, *issue.Outcome) {
	t.Helper()
	rec := element.NewComplex(typ)
	out := issue.NewOutcome()
	if err := newMerger(nil).MergeInto([]byte(doc), rec, nil, nil, false, issue.NewOutcomeReporter(out)); err != nil {
		t.Fatalf("MergeInto(%s) = %v", doc, err)
	}
	return rec, out
}

type finding struct {
	Path     string
	Code     string
	Type     issue.Type
	Severity issue.Severity
}

func findings(out *issue.Outcome) []finding {
	var fs []finding
	for _, iss := range out.Issues() {
		fs = append(fs, finding{iss.Path, iss.Code, iss.Type, iss.Severity})
	}
	return fs
}

func conversion(path string, id issue.DiagnosticID) finding {
	return finding{path, string(id), issue.TypeStructure, issue.SeverityError}
}

func str(typeCode, s string) *element.Primitive {
	return element.NewPrimitive(typeCode, element.String(s))
}

func TestMergeValidPatient(t *testing.T) {
	rec, out := mergeJSON(t, "Patient", `{
		"resourceType": "Patient",
		"id": "p1",
		"active": true,
		"name": [{"family": "Chalmers", "given": ["Peter", "James"]}],
		"gender": "male",
		"multipleBirthInteger": 2
	}`)
	if out.Len() != 0 {
		t.Fatalf("issues = %v; want none", out.Issues())
	}

	name := element.NewComplex("HumanName")
	name.Set("family", str("string", "Chalmers"))
	name.Append("given", str("string", "Peter"), str("string", "James"))

	want := element.NewComplex("Patient")
	want.Set("id", str("id", "p1"))
	want.Set("active", element.NewPrimitive("boolean", element.Boolean(true)))
	want.Append("name", name)
	want.Set("gender", str("code", "male"))
	want.SetChoice("multipleBirth", "integer", element.NewPrimitive("integer", element.Integer(2)))

	if diff := cmp.Diff(want, rec); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestUnknownFieldReportedOnce(t *testing.T) {
	rec, out := mergeJSON(t, "Patient", `{"resourceType":"Patient","bogusField":"x","gender":"female"}`)

	want := []finding{conversion("Patient.bogusField", issue.DiagUnknownElement)}
	if diff := cmp.Diff(want, findings(out)); diff != "" {
		t.Errorf("issues mismatch (-want +got):\n%s", diff)
	}
	if !rec.Has("gender") {
		t.Error("gender was not kept")
	}
	if rec.Has("bogusField") {
		t.Error("bogusField was kept")
	}
}

func TestConversionIssues(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want []finding
	}{
		{
			name: "choice branch of wrong JSON type",
			doc:  `{"resourceType":"Patient","multipleBirthBoolean":5}`,
			want: []finding{conversion("Patient.multipleBirthBoolean", issue.DiagChoiceTypeMismatch)},
		},
		{
			name: "unknown choice suffix",
			doc:  `{"resourceType":"Patient","deceasedString":"yes"}`,
			want: []finding{conversion("Patient.deceasedString", issue.DiagChoiceTypeUnknown)},
		},
		{
			name: "two branches of one choice",
			doc:  `{"resourceType":"Patient","deceasedBoolean":true,"deceasedDateTime":"2020-01-01"}`,
			want: []finding{conversion("Patient.deceasedDateTime", issue.DiagChoiceMultiple)},
		},
		{
			name: "wrong JSON type",
			doc:  `{"resourceType":"Patient","active":"yes","name":{"family":"x"}}`,
			want: []finding{
				conversion("Patient.active", issue.DiagWrongJSONType),
				conversion("Patient.name", issue.DiagWrongJSONType),
			},
		},
		{
			name: "invalid lexical form",
			doc:  `{"resourceType":"Patient","birthDate":"1970-13-01"}`,
			want: []finding{conversion("Patient.birthDate", issue.DiagInvalidPrimitive)},
		},
		{
			name: "null values",
			doc:  `{"resourceType":"Patient","gender":null,"name":[null]}`,
			want: []finding{
				conversion("Patient.name[0]", issue.DiagNullValue),
				conversion("Patient.gender", issue.DiagNullValue),
			},
		},
		{
			name: "companion on complex field",
			doc:  `{"resourceType":"Patient","_maritalStatus":{"id":"m"}}`,
			want: []finding{conversion("Patient._maritalStatus", issue.DiagCompanionOnComplex)},
		},
		{
			name: "companion with unexpected key",
			doc:  `{"resourceType":"Patient","gender":"male","_gender":{"value":"x"}}`,
			want: []finding{conversion("Patient._gender.value", issue.DiagCompanionInvalid)},
		},
		{
			name: "duplicate keys",
			doc:  `{"resourceType":"Patient","name":[{"given":["a","b"],"given":["c"]}],"active":true,"active":false}`,
			want: []finding{
				conversion("Patient.name[0].given", issue.DiagDuplicateKey),
				conversion("Patient.active", issue.DiagDuplicateKey),
			},
		},
		{
			name: "unknown nested field",
			doc:  `{"resourceType":"Patient","name":[{"family":"x","nickname":"y"}]}`,
			want: []finding{conversion("Patient.name[0].nickname", issue.DiagUnknownElement)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, out := mergeJSON(t, "Patient", tt.doc)
			if diff := cmp.Diff(tt.want, findings(out)); diff != "" {
				t.Errorf("issues mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDuplicateKeyKeepsLastValue(t *testing.T) {
	rec, out := mergeJSON(t, "Patient", `{"resourceType":"Patient","name":[{"text":"x"},{"family":"a","family":"b"}],"gender":"other"}`)
	want := []finding{conversion("Patient.name[1].family", issue.DiagDuplicateKey)}
	if diff := cmp.Diff(want, findings(out)); diff != "" {
		t.Errorf("issues mismatch (-want +got):\n%s", diff)
	}
	names := rec.List("name")
	if len(names) != 2 {
		t.Fatalf("got %d names; want 2", len(names))
	}
	family := names[1].(*element.Complex).First("family").(*element.Primitive).Value
	if family != element.String("b") {
		t.Errorf("family = %v; want b", family)
	}
}

func TestChoiceMismatchDropsField(t *testing.T) {
	rec, _ := mergeJSON(t, "Patient", `{"resourceType":"Patient","multipleBirthBoolean":5,"deceasedBoolean":false,"deceasedDateTime":"2020"}`)
	if rec.Has("multipleBirth") {
		t.Error("multipleBirth was kept")
	}
	branch, _, ok := rec.Choice("deceased")
	if !ok || branch != "boolean" {
		t.Errorf("Choice(deceased) = %q, %v; want boolean", branch, ok)
	}
}

func TestCompanions(t *testing.T) {
	rec, out := mergeJSON(t, "Patient", `{
		"resourceType": "Patient",
		"birthDate": "1970-01-01",
		"_birthDate": {"id": "b1", "extension": [{"url": "http://example.org/tob", "valueString": "08:00"}]},
		"name": [{"given": ["A", null], "_given": [null, {"id": "g2"}]}]
	}`)
	if out.Len() != 0 {
		t.Fatalf("issues = %v; want none", out.Issues())
	}

	birth := rec.First("birthDate").(*element.Primitive)
	if birth.ID != "b1" || len(birth.Extension) != 1 || birth.Value == nil {
		t.Fatalf("birthDate = %+v; want value, id b1 and one extension", birth)
	}
	if branch, _, _ := birth.Extension[0].Choice("value"); branch != "string" {
		t.Errorf("extension branch = %q; want string", branch)
	}

	given := rec.First("name").(*element.Complex).List("given")
	if len(given) != 2 {
		t.Fatalf("len(given) = %d; want 2", len(given))
	}
	second := given[1].(*element.Primitive)
	if second.Value != nil || second.ID != "g2" {
		t.Errorf("given[1] = %+v; want no value and id g2", second)
	}
}

func TestCompanionLengthMismatch(t *testing.T) {
	rec, out := mergeJSON(t, "Patient", `{"resourceType":"Patient","name":[{"given":["A","B"],"_given":[{"id":"x"}]}]}`)

	want := []finding{conversion("Patient.name[0]._given", issue.DiagExtensionLengthMismatch)}
	if diff := cmp.Diff(want, findings(out)); diff != "" {
		t.Errorf("issues mismatch (-want +got):\n%s", diff)
	}
	given := rec.First("name").(*element.Complex).List("given")
	if len(given) != 2 {
		t.Fatalf("len(given) = %d; want 2", len(given))
	}
	if id := given[0].(*element.Primitive).ID; id != "x" {
		t.Errorf("given[0].ID = %q; want x", id)
	}
}

func TestTimezoneDefault(t *testing.T) {
	est := time.FixedZone("EST", -5*60*60)
	rec := element.NewComplex("Observation")
	doc := `{"resourceType":"Observation","status":"final","code":{"text":"t"},
		"effectiveDateTime":"2020-01-01T10:00:00","issued":"2020-01-01T10:00:00Z"}`
	if err := newMerger(nil).MergeInto([]byte(doc), rec, est, nil, false, nil); err != nil {
		t.Fatalf("MergeInto() = %v", err)
	}

	_, n, _ := rec.Choice("effective")
	eff := n.(*element.Primitive).Value.(element.Temporal)
	if want := time.Date(2020, 1, 1, 10, 0, 0, 0, est); !eff.Time.Equal(want) {
		t.Errorf("effective = %v; want %v", eff.Time, want)
	}
	if eff.Zone != "EST" {
		t.Errorf("effective zone = %q; want EST", eff.Zone)
	}
	if got, want := eff.String(), "2020-01-01T10:00:00-05:00"; got != want {
		t.Errorf("effective = %q; want %q", got, want)
	}

	issued := rec.First("issued").(*element.Primitive).Value.(element.Temporal)
	if want := time.Date(2020, 1, 1, 10, 0, 0, 0, time.UTC); !issued.Time.Equal(want) {
		t.Errorf("issued = %v; want %v", issued.Time, want)
	}
}

func TestSkippedWallClockIsReported(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("zone database unavailable: %v", err)
	}
	rec := element.NewComplex("Patient")
	out := issue.NewOutcome()
	doc := `{"resourceType":"Patient","active":true,"deceasedDateTime":"2020-03-08T02:30:00"}`
	if err := newMerger(nil).MergeInto([]byte(doc), rec, ny, nil, false, issue.NewOutcomeReporter(out)); err != nil {
		t.Fatalf("MergeInto() = %v", err)
	}
	want := []finding{conversion("Patient.deceasedDateTime", issue.DiagInvalidPrimitive)}
	if diff := cmp.Diff(want, findings(out)); diff != "" {
		t.Errorf("issues mismatch (-want +got):\n%s", diff)
	}
	if rec.Has("deceased") {
		t.Error("deceased was kept; want it dropped")
	}
}

func TestFatalErrorsLeaveTargetUntouched(t *testing.T) {
	tests := []struct {
		name   string
		target string
		doc    string
		check  func(error) bool
	}{
		{"malformed", "Patient", `{`, func(err error) bool {
			var pe *ParseError
			return errors.As(err, &pe)
		}},
		{"empty", "Patient", ``, func(err error) bool {
			var pe *ParseError
			return errors.As(err, &pe)
		}},
		{"trailing data", "Patient", `{"resourceType":"Patient"} {}`, func(err error) bool {
			var pe *ParseError
			return errors.As(err, &pe)
		}},
		{"wrong resource type", "Patient", `{"resourceType":"Observation"}`, func(err error) bool {
			return errors.Is(err, ErrWrongResourceType)
		}},
		{"missing resource type", "Patient", `{"gender":"male"}`, func(err error) bool {
			return errors.Is(err, ErrMissingResourceType)
		}},
		{"not an object", "Patient", `[1,2]`, func(err error) bool {
			return errors.Is(err, ErrNotObject)
		}},
		{"unknown target type", "Widget", `{"resourceType":"Widget"}`, func(err error) bool {
			return errors.Is(err, ErrUnknownResourceType)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := element.NewComplex(tt.target)
			rec.Set("gender", str("code", "other"))
			out := issue.NewOutcome()

			err := newMerger(nil).MergeInto([]byte(tt.doc), rec, nil, nil, true, issue.NewOutcomeReporter(out))
			if err == nil || !tt.check(err) || !IsFatal(err) {
				t.Fatalf("MergeInto() = %v; want fatal %s error", err, tt.name)
			}
			if got := rec.Names(); len(got) != 1 || got[0] != "gender" {
				t.Errorf("target fields = %v; want [gender]", got)
			}
			if out.Len() != 0 {
				t.Errorf("issues = %v; want none", out.Issues())
			}
		})
	}
}

func TestFailFastAborts(t *testing.T) {
	rec := element.NewComplex("Patient")
	err := newMerger(nil).MergeInto([]byte(`{"resourceType":"Patient","gender":"male","bogus":1}`), rec, nil, nil, false, issue.FailFast())

	var de *issue.DiagnosticError
	if !errors.As(err, &de) || de.ID != issue.DiagUnknownElement {
		t.Fatalf("MergeInto() = %v; want UNKNOWN_ELEMENT", err)
	}
	if IsFatal(err) {
		t.Error("IsFatal() = true for a reporter error")
	}
	if !rec.Empty() {
		t.Errorf("target fields = %v; want none", rec.Names())
	}
}

func TestMergeIntoPopulatedRecord(t *testing.T) {
	rec := element.NewComplex("Patient")
	m := newMerger(nil)
	docs := []string{
		`{"resourceType":"Patient","gender":"male","name":[{"family":"A"}]}`,
		`{"resourceType":"Patient","gender":"female","name":[{"family":"B"}]}`,
	}
	for _, doc := range docs {
		if err := m.MergeInto([]byte(doc), rec, nil, nil, false, nil); err != nil {
			t.Fatalf("MergeInto(%s) = %v", doc, err)
		}
	}

	if g := rec.First("gender").(*element.Primitive).Value; g.String() != "female" {
		t.Errorf("gender = %q; want female", g)
	}
	if n := len(rec.List("name")); n != 2 {
		t.Errorf("len(name) = %d; want 2", n)
	}
}

func TestSanitizerRuns(t *testing.T) {
	rec := element.NewComplex("Patient")
	doc := "\xEF\xBB\xBF{\"resourceType\":\"Patient\",\"gender\":\"male\"}"
	if err := newMerger(nil).MergeInto([]byte(doc), rec, nil, sanitize.StripBOM, false, nil); err != nil {
		t.Fatalf("MergeInto() = %v", err)
	}
	if !rec.Has("gender") {
		t.Error("gender was not merged")
	}
}

type stubValidator struct {
	calls  int
	issues []issue.Issue
}

func (s *stubValidator) Validate(*element.Complex) []issue.Issue {
	s.calls++
	return s.issues
}

func TestValidationForwarding(t *testing.T) {
	stub := &stubValidator{issues: []issue.Issue{
		{Path: "Patient.gender", Code: "CARDINALITY_MIN", Type: issue.TypeRequired, Severity: issue.SeverityError, Diagnostics: "missing"},
		{Path: "Patient", Code: "CONSTRAINT_FAILED", Type: issue.TypeInvariant, Severity: issue.SeverityWarning, Diagnostics: "advice"},
	}}
	m := newMerger(stub)
	doc := []byte(`{"resourceType":"Patient","active":true}`)

	rec := element.NewComplex("Patient")
	if err := m.MergeInto(doc, rec, nil, nil, false, nil); err != nil || stub.calls != 0 {
		t.Fatalf("MergeInto(validate=false) = %v with %d validator calls; want nil, 0", err, stub.calls)
	}

	out := issue.NewOutcome()
	if err := m.MergeInto(doc, rec, nil, nil, true, issue.NewOutcomeReporter(out)); err != nil {
		t.Fatalf("MergeInto() = %v", err)
	}
	want := []finding{
		{"Patient.gender", "CARDINALITY_MIN", issue.TypeValue, issue.SeverityError},
		{"Patient", "CONSTRAINT_FAILED", issue.TypeValue, issue.SeverityWarning},
	}
	if diff := cmp.Diff(want, findings(out)); diff != "" {
		t.Errorf("issues mismatch (-want +got):\n%s", diff)
	}

	fresh := element.NewComplex("Patient")
	if err := m.MergeInto(doc, fresh, nil, nil, true, issue.FailFast()); err == nil {
		t.Fatal("MergeInto(FailFast) = nil; want validation error")
	}
	if !fresh.Empty() {
		t.Errorf("target fields = %v; want none", fresh.Names())
	}
}
