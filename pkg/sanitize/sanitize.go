// Package sanitize provides idempotent transforms applied to raw JSON text
// before it is parsed. Each one tolerates a known quirk of some data source.
package sanitize

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
)

// Sanitizer rewrites raw input. Implementations must be idempotent:
// Sanitize(Sanitize(x)) == Sanitize(x).
type Sanitizer interface {
	Sanitize(raw []byte) ([]byte, error)
}

// Func adapts a function to the Sanitizer interface.
type Func func(raw []byte) ([]byte, error)

// Sanitize calls f.
func (f Func) Sanitize(raw []byte) ([]byte, error) { return f(raw) }

// PassThrough returns its input unchanged.
var PassThrough Sanitizer = Func(func(raw []byte) ([]byte, error) { return raw, nil })

var bom = []byte{0xEF, 0xBB, 0xBF}

// StripBOM removes leading UTF-8 byte order marks.
var StripBOM Sanitizer = Func(func(raw []byte) ([]byte, error) {
	for bytes.HasPrefix(raw, bom) {
		raw = raw[len(bom):]
	}
	return raw, nil
})

// EscapeControlCharacters escapes raw C0 control characters found inside
// string literals as \u00XX. Some exporters write literal tabs and newlines
// into narrative text, which strict parsers reject.
var EscapeControlCharacters Sanitizer = Func(escapeControlCharacters)

const hexDigits = "0123456789abcdef"

func escapeControlCharacters(raw []byte) ([]byte, error) {
	var (
		out      []byte
		inString bool
		escaped  bool
	)
	for i, c := range raw {
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString && c < 0x20:
			if out == nil {
				out = make([]byte, 0, len(raw)+16)
				out = append(out, raw[:i]...)
			}
			out = append(out, '\\', 'u', '0', '0', hexDigits[c>>4], hexDigits[c&0xF])
			continue
		}
		if out != nil {
			out = append(out, c)
		}
	}
	if out == nil {
		return raw, nil
	}
	return out, nil
}

// Chain applies sanitizers in order. A chain of idempotent sanitizers is
// idempotent when no later step re-enables an earlier one, which holds for
// the sanitizers in this package.
func Chain(steps ...Sanitizer) Sanitizer {
	return Func(func(raw []byte) ([]byte, error) {
		var err error
		for _, s := range steps {
			if raw, err = s.Sanitize(raw); err != nil {
				return nil, err
			}
		}
		return raw, nil
	})
}

var byName = map[string]Sanitizer{
	"passthrough":     PassThrough,
	"strip-bom":       StripBOM,
	"escape-controls": EscapeControlCharacters,
}

// Names lists the names accepted by ByName.
func Names() []string {
	names := make([]string, 0, len(byName))
	for n := range byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ByName resolves a sanitizer by name. Several names may be joined with
// commas; they are chained in the given order.
func ByName(spec string) (Sanitizer, error) {
	var steps []Sanitizer
	for _, name := range strings.Split(spec, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		s, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("sanitize: unknown sanitizer %q (known: %s)", name, strings.Join(Names(), ", "))
		}
		steps = append(steps, s)
	}
	switch len(steps) {
	case 0:
		return PassThrough, nil
	case 1:
		return steps[0], nil
	default:
		return Chain(steps...), nil
	}
}
