package validation

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/gofhir/fhirjson/pkg/element"
	"github.com/gofhir/fhirjson/pkg/issue"
)

// Value regexes from the R4 primitive type definitions.
var formats = map[string]*regexp.Regexp{
	"id":           regexp.MustCompile(`^[A-Za-z0-9\-\.]{1,64}$`),
	"code":         regexp.MustCompile(`^[^\s]+(\s[^\s]+)*$`),
	"uri":          regexp.MustCompile(`^\S*$`),
	"url":          regexp.MustCompile(`^\S*$`),
	"canonical":    regexp.MustCompile(`^\S*$`),
	"oid":          regexp.MustCompile(`^urn:oid:[0-2](\.(0|[1-9][0-9]*))+$`),
	"uuid":         regexp.MustCompile(`^urn:uuid:[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`),
	"base64Binary": regexp.MustCompile(`^(\s*([0-9a-zA-Z\+/=]){4}\s*)+$`),
}

// checkFormat applies the lexical rules of typeCode to one primitive value.
// Temporal and numeric syntax is already enforced by the merge.
func checkFormat(typeCode string, p *element.Primitive, path string, out *[]issue.Issue) {
	if p == nil || p.Value == nil {
		return
	}

	switch v := p.Value.(type) {
	case element.String:
		s := string(v)
		if s == "" || strings.TrimSpace(s) == "" {
			invalid(typeCode, s, path, out)
			return
		}
		if re, ok := formats[typeCode]; ok && !re.MatchString(s) {
			invalid(typeCode, s, path, out)
		}
	case element.Integer:
		switch {
		case typeCode == "positiveInt" && v < 1:
			invalid(typeCode, strconv.FormatInt(int64(v), 10), path, out)
		case typeCode == "unsignedInt" && v < 0:
			invalid(typeCode, strconv.FormatInt(int64(v), 10), path, out)
		}
	}
}

func invalid(typeCode, value, path string, out *[]issue.Issue) {
	*out = append(*out, newIssue(issue.DiagTypeInvalidFormat, issue.SeverityError, path, map[string]any{
		"value": truncate(value),
		"type":  typeCode,
	}))
}

func truncate(value string) string {
	if len(value) > 50 {
		return value[:47] + "..."
	}
	return value
}
