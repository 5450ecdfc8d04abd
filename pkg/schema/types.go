package schema

import "github.com/iancoleman/strcase"

// Class groups primitive type codes by the Go value that represents them.
type Class uint8

// Primitive value classes.
const (
	ClassBoolean Class = iota + 1
	ClassInteger
	ClassDecimal
	ClassString
	ClassTemporal
)

// JSONType is the JSON value kind a primitive is encoded as.
type JSONType uint8

// JSON value kinds.
const (
	JSONString JSONType = iota + 1
	JSONNumber
	JSONBoolean
	JSONObject
	JSONArray
	JSONNull
)

func (j JSONType) String() string {
	switch j {
	case JSONString:
		return "string"
	case JSONNumber:
		return "number"
	case JSONBoolean:
		return "boolean"
	case JSONObject:
		return "object"
	case JSONArray:
		return "array"
	case JSONNull:
		return "null"
	default:
		return "unknown"
	}
}

// SystemTypeMapping maps FHIRPath system types to FHIR primitive types.
// StructureDefinitions use these for the value of primitive elements
// and for Element.id and Extension.url.
var SystemTypeMapping = map[string]string{
	"http://hl7.org/fhirpath/System.String":   "string",
	"http://hl7.org/fhirpath/System.Boolean":  "boolean",
	"http://hl7.org/fhirpath/System.Integer":  "integer",
	"http://hl7.org/fhirpath/System.Decimal":  "decimal",
	"http://hl7.org/fhirpath/System.DateTime": "dateTime",
	"http://hl7.org/fhirpath/System.Time":     "time",
	"http://hl7.org/fhirpath/System.Date":     "date",
}

// primitiveClasses lists every R4 primitive type code.
var primitiveClasses = map[string]Class{
	"boolean":      ClassBoolean,
	"integer":      ClassInteger,
	"positiveInt":  ClassInteger,
	"unsignedInt":  ClassInteger,
	"decimal":      ClassDecimal,
	"string":       ClassString,
	"uri":          ClassString,
	"url":          ClassString,
	"canonical":    ClassString,
	"code":         ClassString,
	"oid":          ClassString,
	"id":           ClassString,
	"uuid":         ClassString,
	"markdown":     ClassString,
	"base64Binary": ClassString,
	"xhtml":        ClassString,
	"date":         ClassTemporal,
	"dateTime":     ClassTemporal,
	"instant":      ClassTemporal,
	"time":         ClassTemporal,
}

// NormalizeSystemType converts a FHIRPath system type URL to a FHIR primitive type.
// Any other code is returned unchanged.
func NormalizeSystemType(typeCode string) string {
	if normalized, ok := SystemTypeMapping[typeCode]; ok {
		return normalized
	}
	return typeCode
}

// IsPrimitive returns true if the type code is a FHIR primitive type.
func IsPrimitive(typeCode string) bool {
	_, ok := primitiveClasses[NormalizeSystemType(typeCode)]
	return ok
}

// ClassOf returns the value class of a primitive type code.
func ClassOf(typeCode string) (Class, bool) {
	c, ok := primitiveClasses[NormalizeSystemType(typeCode)]
	return c, ok
}

// JSONTypeOf returns the JSON kind that encodes typeCode. Complex types are objects.
func JSONTypeOf(typeCode string) JSONType {
	c, ok := ClassOf(typeCode)
	if !ok {
		return JSONObject
	}
	switch c {
	case ClassBoolean:
		return JSONBoolean
	case ClassInteger, ClassDecimal:
		return JSONNumber
	default:
		return JSONString
	}
}

// ChoiceSuffix returns the JSON key suffix for a choice branch of the given type,
// e.g. "dateTime" -> "DateTime", "CodeableConcept" -> "CodeableConcept".
func ChoiceSuffix(typeCode string) string {
	return strcase.ToCamel(typeCode)
}

// AnalyticsKey returns the key used for a choice branch in the analytics shape,
// e.g. "CodeableConcept" -> "codeableConcept".
func AnalyticsKey(typeCode string) string {
	return strcase.ToLowerCamel(typeCode)
}
