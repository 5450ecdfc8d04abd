// Package schema holds the descriptor tables that drive the merger, printer
// and validator. A table lists, per type, each field's name, JSON key, kind,
// cardinality and choice branches. The walkers consult only these tables.
package schema

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Kind is the closed set of field kinds.
type Kind uint8

// Field kinds.
const (
	KindPrimitive Kind = iota + 1
	KindComplex
	KindChoice
	KindExtension
)

func (k Kind) String() string {
	switch k {
	case KindPrimitive:
		return "primitive"
	case KindComplex:
		return "complex"
	case KindChoice:
		return "choice"
	case KindExtension:
		return "extension"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Unbounded is the Max of a "*" cardinality.
const Unbounded = -1

// Cardinality is a min..max pair.
type Cardinality struct {
	Min int
	Max int
}

// Repeated reports whether the field is encoded as a JSON array.
func (c Cardinality) Repeated() bool {
	return c.Max == Unbounded || c.Max > 1
}

// Required reports whether at least one value must be present.
func (c Cardinality) Required() bool {
	return c.Min > 0
}

func (c Cardinality) String() string {
	if c.Max == Unbounded {
		return strconv.Itoa(c.Min) + "..*"
	}
	return strconv.Itoa(c.Min) + ".." + strconv.Itoa(c.Max)
}

// ParseMax parses an ElementDefinition max ("*" or a number).
func ParseMax(max string) (int, error) {
	if max == "*" {
		return Unbounded, nil
	}
	n, err := strconv.Atoi(max)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid max cardinality %q", max)
	}
	return n, nil
}

// Branch is one allowed type of a choice field.
type Branch struct {
	Type   string
	Suffix string
}

// NewBranch creates a Branch with the standard JSON suffix for typeCode.
func NewBranch(typeCode string) Branch {
	return Branch{Type: typeCode, Suffix: ChoiceSuffix(typeCode)}
}

// Primitive reports whether the branch type is a primitive.
func (b Branch) Primitive() bool {
	return IsPrimitive(b.Type)
}

// Field describes one element of a type.
type Field struct {
	// Name is the element name; for choices it is the base name ("value").
	Name string

	// JSONKey is the wire key; for choices it is the base the suffix is appended to.
	JSONKey string

	Kind Kind

	// Type is the element type code. Unused for choices.
	Type string

	Card Cardinality

	// Branches lists the allowed types of a choice field in declaration order.
	Branches []Branch
}

// BranchBySuffix finds the branch whose suffix is suffix.
func (f *Field) BranchBySuffix(suffix string) (Branch, bool) {
	for _, b := range f.Branches {
		if b.Suffix == suffix {
			return b, true
		}
	}
	return Branch{}, false
}

// BranchByType finds the branch for typeCode.
func (f *Field) BranchByType(typeCode string) (Branch, bool) {
	for _, b := range f.Branches {
		if b.Type == typeCode {
			return b, true
		}
	}
	return Branch{}, false
}

// AllowedTypes returns the branch type codes joined for messages.
func (f *Field) AllowedTypes() string {
	names := make([]string, len(f.Branches))
	for i, b := range f.Branches {
		names[i] = b.Type
	}
	return strings.Join(names, ", ")
}

// Constraint is a FHIRPath invariant declared on a type.
type Constraint struct {
	Key        string
	Severity   string
	Human      string
	Expression string
}

// Type is the descriptor table for one resource, datatype or backbone element.
type Type struct {
	Name        string
	Resource    bool
	Fields      []Field
	Constraints []Constraint

	byName map[string]int
	byKey  map[string]keyRef
}

// keyRef locates a JSON key: the field index and, for choices, the branch index.
type keyRef struct {
	field  int
	branch int
}

// NewType builds a type and its key index.
func NewType(name string, resource bool, fields ...Field) *Type {
	t := &Type{Name: name, Resource: resource, Fields: fields}
	t.index()
	return t
}

func (t *Type) index() {
	t.byName = make(map[string]int, len(t.Fields))
	t.byKey = make(map[string]keyRef, len(t.Fields))
	for i := range t.Fields {
		f := &t.Fields[i]
		t.byName[f.Name] = i
		if f.Kind == KindChoice {
			for j, b := range f.Branches {
				t.byKey[f.JSONKey+b.Suffix] = keyRef{field: i, branch: j}
			}
			continue
		}
		t.byKey[f.JSONKey] = keyRef{field: i, branch: -1}
	}
}

// Field returns the field named name.
func (t *Type) Field(name string) (*Field, bool) {
	i, ok := t.byName[name]
	if !ok {
		return nil, false
	}
	return &t.Fields[i], true
}

// Lookup resolves a JSON key to its field. For choice keys the selected
// branch is returned as well.
func (t *Type) Lookup(key string) (*Field, Branch, bool) {
	ref, ok := t.byKey[key]
	if !ok {
		return nil, Branch{}, false
	}
	f := &t.Fields[ref.field]
	if ref.branch < 0 {
		return f, Branch{}, true
	}
	return f, f.Branches[ref.branch], true
}

// ChoiceFor returns the choice field whose base key prefixes key followed by
// an upper-case letter, e.g. "valueFoo" -> value[x]. It is used to tell an
// unknown choice branch apart from an unknown element.
func (t *Type) ChoiceFor(key string) (*Field, string, bool) {
	for i := range t.Fields {
		f := &t.Fields[i]
		if f.Kind != KindChoice || !strings.HasPrefix(key, f.JSONKey) {
			continue
		}
		suffix := key[len(f.JSONKey):]
		if suffix != "" && suffix[0] >= 'A' && suffix[0] <= 'Z' {
			return f, suffix, true
		}
	}
	return nil, "", false
}

// ErrUnknownType is returned when a type is not registered.
var ErrUnknownType = errors.New("schema: unknown type")

// Registry holds the descriptor tables of one FHIR version.
// It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	types map[string]*Type
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]*Type)}
}

// Register adds types. Registering a name twice replaces the earlier table.
func (r *Registry) Register(types ...*Type) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range types {
		if t.byKey == nil {
			t.index()
		}
		r.types[t.Name] = t
	}
}

// Lookup returns the table for a type name.
func (r *Registry) Lookup(name string) (*Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[name]
	return t, ok
}

// Resource returns the table for a resource type.
func (r *Registry) Resource(name string) (*Type, error) {
	t, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, name)
	}
	if !t.Resource {
		return nil, fmt.Errorf("schema: %q is not a resource type", name)
	}
	return t, nil
}

// Fields returns the field descriptors of a resource type.
func (r *Registry) Fields(resourceType string) ([]Field, error) {
	t, err := r.Resource(resourceType)
	if err != nil {
		return nil, err
	}
	return t.Fields, nil
}

// Names returns the registered type names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for n := range r.types {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered types.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.types)
}

// ElementType returns the type table a complex, extension or complex-branch
// value is walked with.
func (r *Registry) ElementType(typeCode string) (*Type, error) {
	t, ok := r.Lookup(typeCode)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typeCode)
	}
	return t, nil
}

// Check verifies that every referenced non-primitive type is registered.
func (r *Registry) Check() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var missing []string
	seen := make(map[string]bool)
	need := func(owner, code string) {
		if IsPrimitive(code) || seen[code] {
			return
		}
		if _, ok := r.types[code]; !ok {
			seen[code] = true
			missing = append(missing, owner+" -> "+code)
		}
	}
	for _, t := range r.types {
		for _, f := range t.Fields {
			switch f.Kind {
			case KindChoice:
				if len(f.Branches) == 0 {
					missing = append(missing, t.Name+"."+f.Name+" -> (no branches)")
				}
				for _, b := range f.Branches {
					need(t.Name+"."+f.Name, b.Type)
				}
			default:
				need(t.Name+"."+f.Name, f.Type)
			}
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: %s", ErrUnknownType, strings.Join(missing, "; "))
	}
	return nil
}
