package schema

import (
	"fmt"
	"strings"

	"github.com/gofhir/fhir/r4"
)

// baseURL prefixes the canonical URL of every core type definition.
const baseURL = "http://hl7.org/fhir/StructureDefinition/"

// FromStructureDefinitions builds a registry from the snapshots of
// specialisation StructureDefinitions. Profiles, logical models, primitive
// type definitions and abstract types are skipped.
func FromStructureDefinitions(sds []*r4.StructureDefinition) (*Registry, error) {
	reg := NewRegistry()
	for _, sd := range sds {
		types, err := TypesFromStructureDefinition(sd)
		if err != nil {
			return nil, err
		}
		reg.Register(types...)
	}
	return reg, nil
}

// IsBaseDefinition reports whether sd is the core definition of its type,
// e.g. .../StructureDefinition/Patient and not a profile on Patient.
func IsBaseDefinition(sd *r4.StructureDefinition) bool {
	typeName := deref(sd.Type)
	return typeName != "" && deref(sd.Url) == baseURL+typeName
}

// TypesFromStructureDefinition converts one StructureDefinition into its type
// table plus one table per backbone element. It returns nil for definitions
// that do not describe a concrete resource or complex type.
func TypesFromStructureDefinition(sd *r4.StructureDefinition) ([]*Type, error) {
	if sd == nil || sd.Snapshot == nil || sd.Kind == nil || !IsBaseDefinition(sd) {
		return nil, nil
	}
	kind := string(*sd.Kind)
	if kind != "resource" && kind != "complex-type" {
		return nil, nil
	}
	if sd.Abstract != nil && *sd.Abstract {
		return nil, nil
	}

	b := &sdBuilder{
		root:     deref(sd.Type),
		elements: sd.Snapshot.Element,
		parents:  make(map[string]bool),
		tables:   make(map[string]*Type),
	}
	for i := range b.elements {
		path := deref(b.elements[i].Path)
		if dot := strings.LastIndexByte(path, '.'); dot > 0 {
			b.parents[path[:dot]] = true
		}
	}
	if err := b.build(kind == "resource"); err != nil {
		return nil, fmt.Errorf("schema: %s: %w", b.root, err)
	}
	return b.order, nil
}

type sdBuilder struct {
	root     string
	elements []r4.ElementDefinition
	parents  map[string]bool
	tables   map[string]*Type
	order    []*Type
}

func (b *sdBuilder) table(path string, resource bool) *Type {
	if t, ok := b.tables[path]; ok {
		return t
	}
	t := &Type{Name: path, Resource: resource}
	b.tables[path] = t
	b.order = append(b.order, t)
	return t
}

func (b *sdBuilder) build(resource bool) error {
	root := b.table(b.root, resource)

	for i := range b.elements {
		ed := &b.elements[i]
		path := deref(ed.Path)
		if path == b.root {
			root.Constraints = constraintsOf(ed.Constraint)
			continue
		}
		// Slices refine an element that is already present.
		if ed.SliceName != nil || strings.Contains(deref(ed.Id), ":") {
			continue
		}
		dot := strings.LastIndexByte(path, '.')
		if dot < 0 {
			continue
		}
		owner, ok := b.tables[path[:dot]]
		if !ok {
			continue
		}

		field, keep, err := b.field(ed, path, path[dot+1:])
		if err != nil {
			return err
		}
		if keep {
			owner.Fields = append(owner.Fields, field)
		}
	}

	for _, t := range b.order {
		t.index()
	}
	return nil
}

func (b *sdBuilder) field(ed *r4.ElementDefinition, path, name string) (Field, bool, error) {
	card := Cardinality{Min: 0, Max: 1}
	if ed.Min != nil {
		card.Min = int(*ed.Min)
	}
	if ed.Max != nil {
		max, err := ParseMax(*ed.Max)
		if err != nil {
			return Field{}, false, fmt.Errorf("%s: %w", path, err)
		}
		card.Max = max
	}
	if card.Max == 0 {
		return Field{}, false, nil
	}

	if base, ok := strings.CutSuffix(name, "[x]"); ok {
		f := Field{Name: base, JSONKey: base, Kind: KindChoice, Card: card}
		for _, t := range ed.Type {
			code := NormalizeSystemType(deref(t.Code))
			if code == "" {
				continue
			}
			if _, dup := f.BranchByType(code); !dup {
				f.Branches = append(f.Branches, NewBranch(code))
			}
		}
		return f, len(f.Branches) > 0, nil
	}

	f := Field{Name: name, JSONKey: name, Card: card}

	if ref := deref(ed.ContentReference); ref != "" {
		f.Kind = KindComplex
		f.Type = strings.TrimPrefix(ref, "#")
		return f, true, nil
	}
	if name == "extension" || name == "modifierExtension" {
		f.Kind = KindExtension
		f.Type = "Extension"
		return f, true, nil
	}
	if len(ed.Type) == 0 {
		return Field{}, false, nil
	}

	code := NormalizeSystemType(deref(ed.Type[0].Code))
	switch {
	case b.parents[path]:
		// BackboneElement or Element with inline children.
		b.table(path, false)
		f.Kind = KindComplex
		f.Type = path
	case code == "Resource":
		// contained and Bundle.entry.resource carry whole resources.
		return Field{}, false, nil
	case IsPrimitive(code):
		f.Kind = KindPrimitive
		f.Type = code
	default:
		f.Kind = KindComplex
		f.Type = code
	}
	return f, true, nil
}

func constraintsOf(cs []r4.ElementDefinitionConstraint) []Constraint {
	var out []Constraint
	for i := range cs {
		c := &cs[i]
		if deref(c.Expression) == "" {
			continue
		}
		severity := ""
		if c.Severity != nil {
			severity = string(*c.Severity)
		}
		out = append(out, Constraint{
			Key:        deref(c.Key),
			Severity:   severity,
			Human:      deref(c.Human),
			Expression: deref(c.Expression),
		})
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
