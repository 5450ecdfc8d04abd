// Package printer writes typed records as FHIR JSON.
//
// Two shapes are supported. The standard shape is the FHIR wire format:
// choice fields carry their type suffix and primitives carry "_key"
// companions. The analytics shape gives every resource type a fixed key set:
// choice fields sit under their base key as {"<type>": value} and primitive
// companions are left out.
package printer

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strconv"

	json "github.com/goccy/go-json"

	"github.com/gofhir/fhirjson/pkg/element"
	"github.com/gofhir/fhirjson/pkg/schema"
	"github.com/gofhir/fhirjson/pool"
)

// ErrSchemaViolation is wrapped by every error caused by a record that does
// not match its own schema.
var ErrSchemaViolation = errors.New("record does not match its schema")

// Format selects the output shape.
type Format struct {
	Pretty    bool
	Analytics bool
}

// Printer serialises records. It is safe for concurrent use.
type Printer struct {
	reg *schema.Registry
}

// New creates a Printer. A nil registry selects the built-in R4 tables.
func New(reg *schema.Registry) *Printer {
	if reg == nil {
		reg = schema.R4()
	}
	return &Printer{reg: reg}
}

// Print renders rec in the given format.
func (p *Printer) Print(rec *element.Complex, f Format) (string, error) {
	b, err := p.Marshal(rec, f)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Marshal renders rec in the given format and returns a fresh byte slice.
func (p *Printer) Marshal(rec *element.Complex, f Format) ([]byte, error) {
	if rec == nil {
		return nil, fmt.Errorf("%w: nil record", ErrSchemaViolation)
	}
	t, err := p.reg.Resource(rec.Type)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}

	buf := pool.AcquireBuffer()
	defer pool.ReleaseBuffer(buf)

	e := &encoder{reg: p.reg, buf: buf, analytics: f.Analytics}
	buf.WriteString(`{"resourceType":`)
	e.string(rec.Type)
	if err := e.fields(rec, t, rec.Type, false); err != nil {
		return nil, err
	}
	buf.WriteByte('}')

	return finish(buf, f.Pretty)
}

// PrintPrimitive renders one primitive. Without an id or extensions it is the
// bare JSON literal; otherwise {"value":..., "_value":{...}}.
func (p *Printer) PrintPrimitive(prim *element.Primitive) (string, error) {
	if prim == nil {
		return "", fmt.Errorf("%w: nil primitive", ErrSchemaViolation)
	}
	buf := pool.AcquireBuffer()
	defer pool.ReleaseBuffer(buf)

	e := &encoder{reg: p.reg, buf: buf}
	if !prim.HasCompanion() {
		if err := e.literal(prim, prim.Type, "value"); err != nil {
			return "", err
		}
		return buf.String(), nil
	}

	buf.WriteByte('{')
	first := true
	if prim.Value != nil {
		e.key(&first, "value")
		if err := e.literal(prim, prim.Type, "value"); err != nil {
			return "", err
		}
	}
	e.key(&first, "_value")
	if err := e.companion(prim, "_value"); err != nil {
		return "", err
	}
	buf.WriteByte('}')
	return buf.String(), nil
}

func finish(buf *bytes.Buffer, pretty bool) ([]byte, error) {
	if !pretty {
		return append([]byte(nil), buf.Bytes()...), nil
	}
	var out bytes.Buffer
	if err := json.Indent(&out, buf.Bytes(), "", "  "); err != nil {
		return nil, fmt.Errorf("indent: %w", err)
	}
	return out.Bytes(), nil
}

type encoder struct {
	reg       *schema.Registry
	buf       *bytes.Buffer
	analytics bool
}

// key writes a member name, preceded by a comma unless it is the first.
func (e *encoder) key(first *bool, name string) {
	if !*first {
		e.buf.WriteByte(',')
	}
	*first = false
	e.buf.WriteByte('"')
	e.buf.WriteString(name)
	e.buf.WriteString(`":`)
}

func (e *encoder) string(s string) {
	b, err := json.MarshalNoEscape(s)
	if err != nil {
		b = []byte(strconv.Quote(s))
	}
	e.buf.Write(b)
}

func violation(path, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrSchemaViolation, path, fmt.Sprintf(format, args...))
}

// object writes {...} for a complex node.
func (e *encoder) object(c *element.Complex, typeCode, path string) error {
	t, ok := e.reg.Lookup(typeCode)
	if !ok {
		return violation(path, "no schema for type %s", typeCode)
	}
	if c.Type != typeCode {
		return violation(path, "node of type %s where %s is declared", c.Type, typeCode)
	}
	e.buf.WriteByte('{')
	if err := e.fields(c, t, path, true); err != nil {
		return err
	}
	e.buf.WriteByte('}')
	return nil
}

// fields writes the members of c in declaration order. When first is false a
// member has already been written to the enclosing object.
func (e *encoder) fields(c *element.Complex, t *schema.Type, path string, first bool) error {
	if err := checkNames(c, t, path); err != nil {
		return err
	}
	for i := range t.Fields {
		f := &t.Fields[i]
		v := c.Fields[f.Name]
		if v == nil || len(v.Items) == 0 {
			continue
		}
		fieldPath := pool.Child(path, f.Name)
		if !f.Card.Repeated() && len(v.Items) > 1 {
			return violation(fieldPath, "%d items in a singular field", len(v.Items))
		}

		var err error
		switch f.Kind {
		case schema.KindChoice:
			err = e.choice(&first, f, v, fieldPath)
		case schema.KindPrimitive:
			err = e.primitiveMember(&first, f.JSONKey, f.Type, v.Items, f.Card.Repeated(), fieldPath)
		default:
			err = e.complexMember(&first, f.JSONKey, f.Type, v.Items, f.Card.Repeated(), fieldPath)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func checkNames(c *element.Complex, t *schema.Type, path string) error {
	var unknown []string
	for name := range c.Fields {
		if _, ok := t.Field(name); !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return violation(path, "unknown field %q on %s", unknown[0], t.Name)
}

func (e *encoder) choice(first *bool, f *schema.Field, v *element.Value, path string) error {
	b, ok := f.BranchByType(v.Branch)
	if !ok {
		return violation(path, "%q is not a branch of %s[x]", v.Branch, f.Name)
	}
	if !e.analytics {
		key := f.JSONKey + b.Suffix
		if b.Primitive() {
			return e.primitiveMember(first, key, b.Type, v.Items, false, path)
		}
		return e.complexMember(first, key, b.Type, v.Items, false, path)
	}

	e.key(first, f.JSONKey)
	e.buf.WriteByte('{')
	inner := true
	var err error
	if b.Primitive() {
		err = e.primitiveMember(&inner, schema.AnalyticsKey(b.Type), b.Type, v.Items, false, path)
	} else {
		err = e.complexMember(&inner, schema.AnalyticsKey(b.Type), b.Type, v.Items, false, path)
	}
	e.buf.WriteByte('}')
	return err
}

func (e *encoder) complexMember(first *bool, key, typeCode string, items []element.Node, repeated bool, path string) error {
	e.key(first, key)
	if !repeated {
		c, ok := items[0].(*element.Complex)
		if !ok || c == nil {
			return violation(path, "primitive node in a %s field", typeCode)
		}
		return e.object(c, typeCode, path)
	}

	e.buf.WriteByte('[')
	for i, n := range items {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		c, ok := n.(*element.Complex)
		if !ok || c == nil {
			return violation(pool.Item(path, i), "primitive node in a %s field", typeCode)
		}
		if err := e.object(c, typeCode, pool.Item(path, i)); err != nil {
			return err
		}
	}
	e.buf.WriteByte(']')
	return nil
}

func (e *encoder) primitiveMember(first *bool, key, typeCode string, items []element.Node, repeated bool, path string) error {
	prims := make([]*element.Primitive, len(items))
	for i, n := range items {
		p, ok := n.(*element.Primitive)
		if !ok || p == nil {
			return violation(path, "complex node in a %s field", typeCode)
		}
		prims[i] = p
	}

	if !repeated {
		p := prims[0]
		if p.Value != nil {
			e.key(first, key)
			if err := e.literal(p, typeCode, path); err != nil {
				return err
			}
		}
		if p.HasCompanion() && !e.analytics {
			e.key(first, "_"+key)
			return e.companion(p, pool.Companion(path, key))
		}
		return nil
	}

	hasValue, hasCompanion := false, false
	for _, p := range prims {
		hasValue = hasValue || p.Value != nil
		hasCompanion = hasCompanion || p.HasCompanion()
	}
	if hasValue {
		e.key(first, key)
		e.buf.WriteByte('[')
		for i, p := range prims {
			if i > 0 {
				e.buf.WriteByte(',')
			}
			if p.Value == nil {
				e.buf.WriteString("null")
				continue
			}
			if err := e.literal(p, typeCode, pool.Item(path, i)); err != nil {
				return err
			}
		}
		e.buf.WriteByte(']')
	}
	if hasCompanion && !e.analytics {
		e.key(first, "_"+key)
		e.buf.WriteByte('[')
		for i, p := range prims {
			if i > 0 {
				e.buf.WriteByte(',')
			}
			if !p.HasCompanion() {
				e.buf.WriteString("null")
				continue
			}
			if err := e.companion(p, pool.Item(pool.Companion(path, key), i)); err != nil {
				return err
			}
		}
		e.buf.WriteByte(']')
	}
	return nil
}

// companion writes {"id":..., "extension":[...]}.
func (e *encoder) companion(p *element.Primitive, path string) error {
	e.buf.WriteByte('{')
	first := true
	if p.ID != "" {
		e.key(&first, "id")
		e.string(p.ID)
	}
	if len(p.Extension) > 0 {
		e.key(&first, "extension")
		e.buf.WriteByte('[')
		for i, ext := range p.Extension {
			if i > 0 {
				e.buf.WriteByte(',')
			}
			if ext == nil {
				return violation(pool.Item(path, i), "nil extension")
			}
			if err := e.object(ext, "Extension", pool.Item(pool.Child(path, "extension"), i)); err != nil {
				return err
			}
		}
		e.buf.WriteByte(']')
	}
	e.buf.WriteByte('}')
	return nil
}

// literal writes the JSON literal of a primitive value declared as typeCode.
func (e *encoder) literal(p *element.Primitive, typeCode, path string) error {
	class, ok := schema.ClassOf(typeCode)
	if !ok {
		return violation(path, "%s is not a primitive type", typeCode)
	}
	if p.Value == nil {
		e.buf.WriteString("null")
		return nil
	}

	switch v := p.Value.(type) {
	case element.Boolean:
		if class == schema.ClassBoolean {
			e.buf.WriteString(strconv.FormatBool(bool(v)))
			return nil
		}
	case element.Integer:
		if class == schema.ClassInteger {
			e.buf.WriteString(strconv.FormatInt(int64(v), 10))
			return nil
		}
	case element.Decimal:
		if class == schema.ClassDecimal {
			e.buf.WriteString(v.String())
			return nil
		}
	case element.String:
		if class == schema.ClassString {
			e.string(string(v))
			return nil
		}
	case element.Temporal:
		if class == schema.ClassTemporal {
			e.string(v.String())
			return nil
		}
	}
	return violation(path, "%T value for a %s element", p.Value, typeCode)
}
