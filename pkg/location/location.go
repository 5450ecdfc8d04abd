// Package location maps issue paths back to line and column positions in
// the JSON text they were reported for.
package location

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Position is a 1-based line and column.
type Position struct {
	Line   int
	Column int
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// step is one path segment: a member key, or an array index when index >= 0.
type step struct {
	key   string
	index int
}

var errNotFound = errors.New("path not found")

// Find returns the position of the member or array item named by path, e.g.
// "Patient.name[0]._given[1]". The leading type name is skipped. Paths that
// do not name a JSON location, such as "Observation.value[x]", are not found.
func Find(src []byte, path string) (Position, bool) {
	steps, ok := parsePath(path)
	if !ok || len(src) == 0 {
		return Position{}, false
	}
	dec := json.NewDecoder(bytes.NewReader(src))
	off, err := seek(dec, steps)
	if err != nil {
		return Position{}, false
	}
	return position(src, skipSeparators(src, off)), true
}

func parsePath(path string) ([]step, bool) {
	_, rest, found := strings.Cut(path, ".")
	if !found || rest == "" {
		return nil, false
	}

	var steps []step
	for _, seg := range strings.Split(rest, ".") {
		name, idx, hasIndex := strings.Cut(seg, "[")
		if name == "" {
			return nil, false
		}
		steps = append(steps, step{key: name, index: -1})
		for hasIndex {
			var n string
			n, idx, _ = strings.Cut(idx, "]")
			i, err := strconv.Atoi(n)
			if err != nil || i < 0 {
				return nil, false
			}
			steps = append(steps, step{index: i})
			if idx == "" {
				break
			}
			if idx[0] != '[' {
				return nil, false
			}
			idx = idx[1:]
		}
	}
	return steps, true
}

// seek descends one container per step and returns the offset at which the
// last step's key or item begins.
func seek(dec *json.Decoder, steps []step) (int64, error) {
	for i, st := range steps {
		last := i == len(steps)-1
		tok, err := dec.Token()
		if err != nil {
			return 0, err
		}
		delim, _ := tok.(json.Delim)

		if st.index < 0 {
			if delim != '{' {
				return 0, errNotFound
			}
			off, err := member(dec, st.key)
			if err != nil {
				return 0, err
			}
			if last {
				return off, nil
			}
			continue
		}

		if delim != '[' {
			return 0, errNotFound
		}
		off, err := item(dec, st.index)
		if err != nil {
			return 0, err
		}
		if last {
			return off, nil
		}
	}
	return 0, errNotFound
}

// member advances past the key of the named member of the current object.
func member(dec *json.Decoder, key string) (int64, error) {
	for dec.More() {
		off := dec.InputOffset()
		tok, err := dec.Token()
		if err != nil {
			return 0, err
		}
		if k, ok := tok.(string); ok && k == key {
			return off, nil
		}
		if err := skipValue(dec); err != nil {
			return 0, err
		}
	}
	return 0, errNotFound
}

// item advances to the start of the i-th element of the current array.
func item(dec *json.Decoder, i int) (int64, error) {
	for n := 0; dec.More(); n++ {
		off := dec.InputOffset()
		if n == i {
			return off, nil
		}
		if err := skipValue(dec); err != nil {
			return 0, err
		}
	}
	return 0, errNotFound
}

func skipValue(dec *json.Decoder) error {
	depth := 0
	for {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		switch tok {
		case json.Delim('{'), json.Delim('['):
			depth++
		case json.Delim('}'), json.Delim(']'):
			depth--
		}
		if depth == 0 {
			return nil
		}
	}
}

// skipSeparators moves off past whitespace, commas and colons so it lands
// on the token itself.
func skipSeparators(src []byte, off int64) int {
	i := int(off)
	for i < len(src) {
		switch src[i] {
		case ' ', '\t', '\r', '\n', ',', ':':
			i++
		default:
			return i
		}
	}
	return i
}

func position(src []byte, off int) Position {
	p := Position{Line: 1, Column: 1}
	for i := 0; i < off && i < len(src); i++ {
		if src[i] == '\n' {
			p.Line++
			p.Column = 1
		} else {
			p.Column++
		}
	}
	return p
}
