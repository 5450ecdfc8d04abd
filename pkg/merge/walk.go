package merge

import (
	"fmt"
	"sort"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/gofhir/fhirjson/pkg/element"
	"github.com/gofhir/fhirjson/pkg/issue"
	"github.com/gofhir/fhirjson/pkg/schema"
	"github.com/gofhir/fhirjson/pool"
)

// walker holds the state of one merge. Every method that can report returns
// the Reporter's error so a failing Reporter stops the walk.
type walker struct {
	reg *schema.Registry
	loc *time.Location
	rep issue.Reporter
}

// site locates one JSON key during the walk.
type site struct {
	key      string
	path     string
	compPath string
	choice   bool
}

func (w *walker) drop(path string, id issue.DiagnosticID, params map[string]any) error {
	return w.rep.ReportConversionError(path, issue.NewError(id, params))
}

// object merges the members of obj into dst, which is described by t.
// Declared fields are visited in declaration order; keys left over are
// reported in sorted order.
func (w *walker) object(obj map[string]any, t *schema.Type, dst *element.Complex, path string, root bool) error {
	consumed := make(map[string]bool, len(obj))
	if root {
		consumed["resourceType"] = true
	}

	for i := range t.Fields {
		f := &t.Fields[i]
		if f.Kind == schema.KindChoice {
			if err := w.choice(obj, f, dst, path, consumed); err != nil {
				return err
			}
			continue
		}

		val, hasVal := obj[f.JSONKey]
		comp, hasComp := obj["_"+f.JSONKey]
		if !hasVal && !hasComp {
			continue
		}
		markConsumed(consumed, f.JSONKey, hasVal, hasComp)

		s := site{key: f.JSONKey, path: pool.Child(path, f.JSONKey), compPath: pool.Companion(path, f.JSONKey)}
		if err := w.member(dst, f, f.Type, "", s, val, hasVal, comp, hasComp); err != nil {
			return err
		}
	}

	if len(consumed) == len(obj) {
		return nil
	}
	leftover := make([]string, 0, len(obj)-len(consumed))
	for key := range obj {
		if !consumed[key] {
			leftover = append(leftover, key)
		}
	}
	sort.Strings(leftover)
	for _, key := range leftover {
		if err := w.unknown(t, key, path); err != nil {
			return err
		}
	}
	return nil
}

func markConsumed(consumed map[string]bool, key string, hasVal, hasComp bool) {
	if hasVal {
		consumed[key] = true
	}
	if hasComp {
		consumed["_"+key] = true
	}
}

func (w *walker) unknown(t *schema.Type, key, parent string) error {
	path := pool.Child(parent, key)
	if f, suffix, ok := t.ChoiceFor(strings.TrimPrefix(key, "_")); ok {
		return w.drop(path, issue.DiagChoiceTypeUnknown, map[string]any{
			"element": f.Name + "[x]",
			"suffix":  suffix,
			"allowed": f.AllowedTypes(),
		})
	}
	return w.drop(path, issue.DiagUnknownElement, map[string]any{"element": key, "type": t.Name})
}

// choice merges the first populated branch of a choice field. Further
// branches are reported and dropped.
func (w *walker) choice(obj map[string]any, f *schema.Field, dst *element.Complex, path string, consumed map[string]bool) error {
	selected := ""
	for _, b := range f.Branches {
		key := f.JSONKey + b.Suffix
		val, hasVal := obj[key]
		comp, hasComp := obj["_"+key]
		if !hasVal && !hasComp {
			continue
		}
		markConsumed(consumed, key, hasVal, hasComp)

		s := site{key: key, path: pool.Child(path, key), compPath: pool.Companion(path, key), choice: true}
		if selected != "" {
			err := w.drop(s.path, issue.DiagChoiceMultiple, map[string]any{
				"element":  f.Name + "[x]",
				"existing": selected,
				"key":      key,
			})
			if err != nil {
				return err
			}
			continue
		}
		if err := w.member(dst, f, b.Type, b.Type, s, val, hasVal, comp, hasComp); err != nil {
			return err
		}
		if dst.Has(f.Name) {
			selected = key
		}
	}
	return nil
}

// member merges one key and its "_key" companion into field f of dst.
// typeCode is the field type, or the branch type for choices.
func (w *walker) member(dst *element.Complex, f *schema.Field, typeCode, branch string, s site, val any, hasVal bool, comp any, hasComp bool) error {
	if schema.IsPrimitive(typeCode) {
		if f.Card.Repeated() {
			return w.primitiveList(dst, f, typeCode, s, val, hasVal, comp, hasComp)
		}
		p, ok, err := w.primitive(typeCode, s, val, hasVal, comp, hasComp && comp != nil)
		if err != nil || !ok {
			return err
		}
		store(dst, f, branch, p)
		return nil
	}

	if hasComp {
		err := w.drop(s.compPath, issue.DiagCompanionOnComplex, map[string]any{"element": "_" + s.key})
		if err != nil {
			return err
		}
	}
	if !hasVal {
		return nil
	}
	if f.Card.Repeated() {
		return w.complexList(dst, f, typeCode, s, val)
	}

	c, ok, err := w.complex(typeCode, s, val)
	if err != nil || !ok {
		return err
	}
	store(dst, f, branch, c)
	return nil
}

func store(dst *element.Complex, f *schema.Field, branch string, n element.Node) {
	switch {
	case branch != "":
		dst.SetChoice(f.Name, branch, n)
	case f.Card.Repeated():
		dst.Append(f.Name, n)
	default:
		dst.Set(f.Name, n)
	}
}

// complex merges one JSON object as a node of typeCode.
func (w *walker) complex(typeCode string, s site, val any) (*element.Complex, bool, error) {
	obj, ok := val.(map[string]any)
	if !ok {
		if val == nil {
			return nil, false, w.drop(s.path, issue.DiagNullValue, map[string]any{"element": s.key})
		}
		return nil, false, w.mismatch(s, typeCode, schema.JSONObject, val)
	}
	t, ok := w.reg.Lookup(typeCode)
	if !ok {
		return nil, false, w.rep.ReportConversionError(s.path, fmt.Errorf("no schema for type %s", typeCode))
	}
	c := element.NewComplex(typeCode)
	if err := w.object(obj, t, c, s.path, false); err != nil {
		return nil, false, err
	}
	return c, true, nil
}

func (w *walker) complexList(dst *element.Complex, f *schema.Field, typeCode string, s site, val any) error {
	arr, ok := val.([]any)
	if !ok {
		return w.mismatch(s, typeCode, schema.JSONArray, val)
	}
	for i, item := range arr {
		is := site{key: s.key, path: pool.Item(s.path, i)}
		c, ok, err := w.complex(typeCode, is, item)
		if err != nil {
			return err
		}
		if ok {
			dst.Append(f.Name, c)
		}
	}
	return nil
}

// primitive builds one primitive from its value and companion. It returns
// false when nothing is left to keep.
func (w *walker) primitive(typeCode string, s site, val any, hasVal bool, comp any, hasComp bool) (*element.Primitive, bool, error) {
	p := &element.Primitive{Type: typeCode}
	if hasComp {
		if err := w.companion(p, s, comp); err != nil {
			return nil, false, err
		}
	}
	if !hasVal {
		return p, p.HasCompanion(), nil
	}
	if val == nil {
		if p.HasCompanion() {
			return p, true, nil
		}
		return nil, false, w.drop(s.path, issue.DiagNullValue, map[string]any{"element": s.key})
	}

	v, err := w.value(typeCode, s, val)
	if err != nil || v == nil {
		return nil, false, err
	}
	p.Value = v
	return p, true, nil
}

// primitiveList pairs a value array with its companion array by index.
// On a length mismatch every value is kept and surplus companions are
// dropped.
func (w *walker) primitiveList(dst *element.Complex, f *schema.Field, typeCode string, s site, val any, hasVal bool, comp any, hasComp bool) error {
	var vals, comps []any
	if hasVal {
		arr, ok := val.([]any)
		if !ok {
			return w.mismatch(s, typeCode, schema.JSONArray, val)
		}
		vals = arr
	}
	if hasComp && comp != nil {
		arr, ok := comp.([]any)
		if !ok {
			err := w.drop(s.compPath, issue.DiagCompanionInvalid, map[string]any{
				"element": "_" + s.key,
				"error":   "expected an array, found " + jsonTypeOf(comp).String(),
			})
			if err != nil {
				return err
			}
		}
		comps = arr
	}

	count := len(vals)
	if !hasVal {
		count = len(comps)
	} else if comps != nil && len(comps) != len(vals) {
		err := w.drop(s.compPath, issue.DiagExtensionLengthMismatch, map[string]any{
			"element":    s.key,
			"values":     len(vals),
			"companions": len(comps),
		})
		if err != nil {
			return err
		}
	}

	for i := 0; i < count; i++ {
		is := site{key: s.key, path: pool.Item(s.path, i), compPath: pool.Item(s.compPath, i)}
		var v, c any
		hv := i < len(vals)
		if hv {
			v = vals[i]
		}
		if i < len(comps) {
			c = comps[i]
		}
		if !hv && c == nil {
			if err := w.drop(is.compPath, issue.DiagNullValue, map[string]any{"element": "_" + s.key}); err != nil {
				return err
			}
			continue
		}
		p, ok, err := w.primitive(typeCode, is, v, hv, c, c != nil)
		if err != nil {
			return err
		}
		if ok {
			dst.Append(f.Name, p)
		}
	}
	return nil
}

// companion applies a "_key" object to p. Only id and extension are allowed.
func (w *walker) companion(p *element.Primitive, s site, comp any) error {
	obj, ok := comp.(map[string]any)
	if !ok {
		return w.drop(s.compPath, issue.DiagCompanionInvalid, map[string]any{
			"element": "_" + s.key,
			"error":   "expected an object, found " + jsonTypeOf(comp).String(),
		})
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		raw := obj[k]
		path := pool.Child(s.compPath, k)
		switch k {
		case "id":
			id, ok := raw.(string)
			if !ok {
				if err := w.mismatch(site{key: k, path: path}, "string", schema.JSONString, raw); err != nil {
					return err
				}
				continue
			}
			p.ID = id
		case "extension":
			arr, ok := raw.([]any)
			if !ok {
				if err := w.mismatch(site{key: k, path: path}, "Extension", schema.JSONArray, raw); err != nil {
					return err
				}
				continue
			}
			for i, item := range arr {
				c, ok, err := w.complex("Extension", site{key: k, path: pool.Item(path, i)}, item)
				if err != nil {
					return err
				}
				if ok {
					p.Extension = append(p.Extension, c)
				}
			}
		default:
			err := w.drop(path, issue.DiagCompanionInvalid, map[string]any{
				"element": "_" + s.key,
				"error":   fmt.Sprintf("unexpected key %q", k),
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// value converts a JSON scalar into a typed primitive value. Problems are
// reported and yield a nil value.
func (w *walker) value(typeCode string, s site, raw any) (element.PrimitiveValue, error) {
	want := schema.JSONTypeOf(typeCode)
	if got := jsonTypeOf(raw); got != want {
		return nil, w.mismatch(s, typeCode, want, raw)
	}

	class, _ := schema.ClassOf(typeCode)
	var (
		v   element.PrimitiveValue
		err error
		lex string
	)
	switch class {
	case schema.ClassBoolean:
		v = element.Boolean(raw.(bool))
	case schema.ClassInteger:
		lex = raw.(json.Number).String()
		v, err = element.ParseInteger(lex)
	case schema.ClassDecimal:
		lex = raw.(json.Number).String()
		v, err = element.ParseDecimal(lex)
	case schema.ClassTemporal:
		lex = raw.(string)
		v, err = element.ParseTemporal(schema.NormalizeSystemType(typeCode), lex, w.loc)
	default:
		v = element.String(raw.(string))
	}
	if err != nil {
		return nil, w.rep.ReportConversionError(s.path, issue.Wrap(issue.DiagInvalidPrimitive, err, map[string]any{
			"type":  typeCode,
			"value": lex,
		}))
	}
	return v, nil
}

// mismatch reports a JSON value of the wrong kind. Inside a choice branch it
// is reported as a branch mismatch.
func (w *walker) mismatch(s site, typeCode string, want schema.JSONType, raw any) error {
	if s.choice {
		return w.drop(s.path, issue.DiagChoiceTypeMismatch, map[string]any{
			"element":  s.key,
			"expected": want.String(),
			"type":     typeCode,
			"actual":   jsonTypeOf(raw).String(),
		})
	}
	return w.drop(s.path, issue.DiagWrongJSONType, map[string]any{
		"element":  s.key,
		"expected": want.String(),
		"actual":   jsonTypeOf(raw).String(),
	})
}

func jsonTypeOf(v any) schema.JSONType {
	switch v.(type) {
	case nil:
		return schema.JSONNull
	case bool:
		return schema.JSONBoolean
	case json.Number:
		return schema.JSONNumber
	case string:
		return schema.JSONString
	case []any:
		return schema.JSONArray
	default:
		return schema.JSONObject
	}
}
