package printer

import (
	"errors"
	"sort"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"

	"github.com/gofhir/fhirjson/pkg/element"
)

func str(typeCode, s string) *element.Primitive {
	return element.NewPrimitive(typeCode, element.String(s))
}

func observation() *element.Complex {
	status := str("code", "final")
	status.ID = "s1"

	code := element.NewComplex("CodeableConcept")
	code.Set("text", str("string", "BP"))

	qty := element.NewComplex("Quantity")
	qty.Set("value", element.NewPrimitive("decimal", element.MustDecimal("120.0")))
	qty.Set("unit", str("string", "mmHg"))

	obs := element.NewComplex("Observation")
	obs.Set("status", status)
	obs.Set("code", code)
	obs.SetChoice("value", "Quantity", qty)
	return obs
}

func TestPrintShapes(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		want   string
	}{
		{
			name: "standard compact",
			want: `{"resourceType":"Observation","status":"final","_status":{"id":"s1"},"code":{"text":"BP"},"valueQuantity":{"value":120.0,"unit":"mmHg"}}`,
		},
		{
			name:   "analytics compact",
			format: Format{Analytics: true},
			want:   `{"resourceType":"Observation","status":"final","code":{"text":"BP"},"value":{"quantity":{"value":120.0,"unit":"mmHg"}}}`,
		},
		{
			name:   "standard pretty",
			format: Format{Pretty: true},
			want: `{
  "resourceType": "Observation",
  "status": "final",
  "_status": {
    "id": "s1"
  },
  "code": {
    "text": "BP"
  },
  "valueQuantity": {
    "value": 120.0,
    "unit": "mmHg"
  }
}`,
		},
		{
			name:   "analytics pretty",
			format: Format{Pretty: true, Analytics: true},
			want: `{
  "resourceType": "Observation",
  "status": "final",
  "code": {
    "text": "BP"
  },
  "value": {
    "quantity": {
      "value": 120.0,
      "unit": "mmHg"
    }
  }
}`,
		},
	}
	p := New(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Print(observation(), tt.format)
			if err != nil {
				t.Fatalf("Print() = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Print() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPrintRepeatedPrimitives(t *testing.T) {
	second := &element.Primitive{Type: "string", ID: "g2"}
	name := element.NewComplex("HumanName")
	name.Append("given", str("string", "A"), second)
	name.Append("prefix", &element.Primitive{Type: "string", ID: "p"})

	pat := element.NewComplex("Patient")
	pat.Append("name", name)

	tests := []struct {
		format Format
		want   string
	}{
		{Format{}, `{"resourceType":"Patient","name":[{"given":["A",null],"_given":[null,{"id":"g2"}],"_prefix":[{"id":"p"}]}]}`},
		{Format{Analytics: true}, `{"resourceType":"Patient","name":[{"given":["A",null]}]}`},
	}
	for _, tt := range tests {
		got, err := New(nil).Print(pat, tt.format)
		if err != nil {
			t.Fatalf("Print(%+v) = %v", tt.format, err)
		}
		if got != tt.want {
			t.Errorf("Print(%+v) = %s; want %s", tt.format, got, tt.want)
		}
	}
}

func TestAnalyticsKeySetIsStable(t *testing.T) {
	a := observation()
	b := observation()
	b.SetChoice("value", "string", str("string", "high"))

	keys := func(rec *element.Complex) []string {
		out, err := New(nil).Marshal(rec, Format{Analytics: true})
		if err != nil {
			t.Fatalf("Marshal() = %v", err)
		}
		var m map[string]any
		if err := json.Unmarshal(out, &m); err != nil {
			t.Fatalf("Unmarshal(%s) = %v", out, err)
		}
		names := make([]string, 0, len(m))
		for k := range m {
			names = append(names, k)
		}
		sort.Strings(names)
		return names
	}
	if diff := cmp.Diff(keys(a), keys(b)); diff != "" {
		t.Errorf("analytics keys differ by branch (-a +b):\n%s", diff)
	}
}

func TestPrintPrimitive(t *testing.T) {
	withID := element.NewPrimitive("boolean", element.Boolean(true))
	withID.ID = "x"

	ext := element.NewComplex("Extension")
	ext.Set("url", str("uri", "http://example.org/e"))
	ext.SetChoice("value", "integer", element.NewPrimitive("integer", element.Integer(4)))

	tests := []struct {
		name string
		prim *element.Primitive
		want string
	}{
		{"string", str("code", "final"), `"final"`},
		{"escaped", str("string", "a\"b<c>"), `"a\"b<c>"`},
		{"decimal", element.NewPrimitive("decimal", element.MustDecimal("1.50")), `1.50`},
		{"integer", element.NewPrimitive("integer", element.Integer(-3)), `-3`},
		{"with companion", withID, `{"value":true,"_value":{"id":"x"}}`},
		{"companion only", &element.Primitive{Type: "string", Extension: []*element.Complex{ext}},
			`{"_value":{"extension":[{"url":"http://example.org/e","valueInteger":4}]}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := New(nil).PrintPrimitive(tt.prim)
			if err != nil {
				t.Fatalf("PrintPrimitive() = %v", err)
			}
			if got != tt.want {
				t.Errorf("PrintPrimitive() = %s; want %s", got, tt.want)
			}
		})
	}
}

func TestSchemaViolations(t *testing.T) {
	tests := []struct {
		name  string
		build func() *element.Complex
	}{
		{"nil record", func() *element.Complex { return nil }},
		{"not a resource", func() *element.Complex { return element.NewComplex("HumanName") }},
		{"unknown field", func() *element.Complex {
			c := observation()
			c.Set("bogus", str("string", "x"))
			return c
		}},
		{"two items in a singular field", func() *element.Complex {
			c := observation()
			c.Append("status", str("code", "final"))
			return c
		}},
		{"complex node in a primitive field", func() *element.Complex {
			c := observation()
			c.Set("status", element.NewComplex("Coding"))
			return c
		}},
		{"value of the wrong class", func() *element.Complex {
			c := observation()
			c.Set("status", element.NewPrimitive("code", element.Boolean(true)))
			return c
		}},
		{"undeclared choice branch", func() *element.Complex {
			c := observation()
			c.SetChoice("value", "Address", element.NewComplex("Address"))
			return c
		}},
		{"node type differs from declaration", func() *element.Complex {
			c := observation()
			c.Set("code", element.NewComplex("Coding"))
			return c
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(nil).Print(tt.build(), Format{})
			if !errors.Is(err, ErrSchemaViolation) {
				t.Errorf("Print() = %v; want ErrSchemaViolation", err)
			}
		})
	}
}
