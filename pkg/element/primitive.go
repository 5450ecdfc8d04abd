package element

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/cockroachdb/apd/v3"
)

// Primitive is a primitive element: an optional value plus the id and
// extensions carried by its "_key" companion.
type Primitive struct {
	Type      string
	ID        string
	Extension []*Complex
	Value     PrimitiveValue
}

func (*Primitive) node() {}

// NewPrimitive creates a primitive with a value and no companion data.
func NewPrimitive(typeCode string, v PrimitiveValue) *Primitive {
	return &Primitive{Type: typeCode, Value: v}
}

// HasCompanion reports whether the primitive carries an id or extensions.
func (p *Primitive) HasCompanion() bool {
	return p.ID != "" || len(p.Extension) > 0
}

// PrimitiveValue is one of Boolean, Integer, Decimal, String or Temporal.
type PrimitiveValue interface {
	isPrimitiveValue()
	String() string
}

// Boolean is a boolean value.
type Boolean bool

// Integer is an integer, positiveInt or unsignedInt value.
type Integer int64

// String is the value of every string-like primitive.
type String string

func (Boolean) isPrimitiveValue()  {}
func (Integer) isPrimitiveValue()  {}
func (String) isPrimitiveValue()   {}
func (Decimal) isPrimitiveValue()  {}
func (Temporal) isPrimitiveValue() {}

func (b Boolean) String() string { return strconv.FormatBool(bool(b)) }
func (i Integer) String() string { return strconv.FormatInt(int64(i), 10) }
func (s String) String() string  { return string(s) }

// ErrIntegerRange is returned for integers outside the signed 32-bit range.
var ErrIntegerRange = errors.New("integer out of 32-bit range")

// ParseInteger parses the lexical form of an R4 integer.
func ParseInteger(s string) (Integer, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	if n < math.MinInt32 || n > math.MaxInt32 {
		return 0, ErrIntegerRange
	}
	return Integer(n), nil
}

// Decimal is an exact decimal that keeps the precision it was written with,
// so 1.50 and 1.5 are different values.
type Decimal struct {
	d    apd.Decimal
	text string
}

// ParseDecimal parses a JSON number into a Decimal.
func ParseDecimal(s string) (Decimal, error) {
	d, _, err := apd.NewFromString(s)
	if err != nil {
		return Decimal{}, fmt.Errorf("not a decimal: %q", s)
	}
	if d.Form != apd.Finite {
		return Decimal{}, fmt.Errorf("not a finite decimal: %q", s)
	}
	return Decimal{d: *d, text: s}, nil
}

// MustDecimal is ParseDecimal for literals known to be valid.
func MustDecimal(s string) Decimal {
	d, err := ParseDecimal(s)
	if err != nil {
		panic(err)
	}
	return d
}

// String returns the literal the decimal was parsed from. A zero Decimal
// prints in plain notation.
func (d Decimal) String() string {
	if d.text != "" {
		return d.text
	}
	return d.d.Text('f')
}

// Apd returns a copy of the underlying apd value.
func (d Decimal) Apd() *apd.Decimal {
	return new(apd.Decimal).Set(&d.d)
}

// Equal reports whether both decimals have the same value and exponent.
func (d Decimal) Equal(o Decimal) bool {
	return d.d.Cmp(&o.d) == 0 && d.d.Exponent == o.d.Exponent
}
