// Package element defines the typed record tree produced by the merger and
// consumed by the printer and validator.
//
// A record is a *Complex whose fields hold *Complex or *Primitive nodes. The
// tree carries no schema of its own; the type name on each complex node
// selects the descriptor table that interprets it.
package element

import "sort"

// Node is a *Complex or a *Primitive.
type Node interface {
	node()
}

// Value is the content of one field. Singular fields hold at most one item.
type Value struct {
	// Branch is the selected type code of a choice field, empty otherwise.
	Branch string
	Items  []Node
}

// Complex is a resource, datatype or backbone element instance.
type Complex struct {
	Type   string
	Fields map[string]*Value
}

func (*Complex) node() {}

// NewComplex creates an empty node of the given type.
func NewComplex(typeName string) *Complex {
	return &Complex{Type: typeName, Fields: make(map[string]*Value)}
}

// Get returns the value of a field, or nil when it is absent.
func (c *Complex) Get(name string) *Value {
	if c == nil {
		return nil
	}
	return c.Fields[name]
}

// Has reports whether the field holds at least one item.
func (c *Complex) Has(name string) bool {
	v := c.Get(name)
	return v != nil && len(v.Items) > 0
}

// First returns the first item of a field, or nil.
func (c *Complex) First(name string) Node {
	v := c.Get(name)
	if v == nil || len(v.Items) == 0 {
		return nil
	}
	return v.Items[0]
}

// List returns the items of a field.
func (c *Complex) List(name string) []Node {
	if v := c.Get(name); v != nil {
		return v.Items
	}
	return nil
}

// Set replaces a singular field.
func (c *Complex) Set(name string, n Node) {
	c.ensure()
	c.Fields[name] = &Value{Items: []Node{n}}
}

// Append adds items to a repeated field.
func (c *Complex) Append(name string, nodes ...Node) {
	c.ensure()
	v, ok := c.Fields[name]
	if !ok {
		v = &Value{}
		c.Fields[name] = v
	}
	v.Items = append(v.Items, nodes...)
}

// SetChoice populates a choice field with the given branch.
func (c *Complex) SetChoice(name, branch string, n Node) {
	c.ensure()
	c.Fields[name] = &Value{Branch: branch, Items: []Node{n}}
}

// Choice returns the selected branch and node of a choice field.
func (c *Complex) Choice(name string) (string, Node, bool) {
	v := c.Get(name)
	if v == nil || len(v.Items) == 0 {
		return "", nil, false
	}
	return v.Branch, v.Items[0], true
}

// Clear removes a field.
func (c *Complex) Clear(name string) {
	if c != nil {
		delete(c.Fields, name)
	}
}

// Empty reports whether no field holds an item.
func (c *Complex) Empty() bool {
	if c == nil {
		return true
	}
	for _, v := range c.Fields {
		if len(v.Items) > 0 {
			return false
		}
	}
	return true
}

// Names returns the populated field names, sorted.
func (c *Complex) Names() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.Fields))
	for name, v := range c.Fields {
		if len(v.Items) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// MergeFrom moves the fields of src into c. Fields for which repeated
// returns true are appended; all others are overwritten.
func (c *Complex) MergeFrom(src *Complex, repeated func(name string) bool) {
	if src == nil {
		return
	}
	c.ensure()
	for name, v := range src.Fields {
		if len(v.Items) == 0 {
			continue
		}
		if repeated(name) {
			c.Append(name, v.Items...)
			continue
		}
		c.Fields[name] = &Value{Branch: v.Branch, Items: append([]Node(nil), v.Items...)}
	}
}

func (c *Complex) ensure() {
	if c.Fields == nil {
		c.Fields = make(map[string]*Value)
	}
}
