package merge

import (
	"bytes"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/gofhir/fhirjson/pool"
)

// duplicate is a member whose key repeats an earlier key of the same object.
// Decoding keeps only the last value of such a key.
type duplicate struct {
	path string
	key  string
}

type scope struct {
	path  string
	keys  map[string]bool
	index int
	key   string
	inKey bool
}

// duplicateKeys lists repeated object keys in document order. Paths are
// spelled the way the walker spells them, rooted at root.
func duplicateKeys(text []byte, root string) ([]duplicate, error) {
	dec := json.NewDecoder(bytes.NewReader(text))
	dec.UseNumber()

	var (
		stack []*scope
		dups  []duplicate
	)
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}

		var top *scope
		if len(stack) > 0 {
			top = stack[len(stack)-1]
		}
		if d, ok := tok.(json.Delim); ok && (d == '}' || d == ']') {
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return dups, nil
			}
			continue
		}

		if top != nil && top.keys != nil && top.inKey {
			key, ok := tok.(string)
			if !ok {
				return nil, fmt.Errorf("object key is %T", tok)
			}
			if top.keys[key] {
				dups = append(dups, duplicate{path: pool.Child(top.path, key), key: key})
			}
			top.keys[key] = true
			top.key, top.inKey = key, false
			continue
		}

		path := root
		switch {
		case top == nil:
		case top.keys != nil:
			path = pool.Child(top.path, top.key)
			top.inKey = true
		default:
			path = pool.Item(top.path, top.index)
			top.index++
		}
		switch tok {
		case json.Delim('{'):
			stack = append(stack, &scope{path: path, keys: map[string]bool{}, inKey: true})
		case json.Delim('['):
			stack = append(stack, &scope{path: path})
		}
	}
}
