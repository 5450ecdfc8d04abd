package fhirjson

import (
	"github.com/gofhir/fhirjson/pkg/element"
	"github.com/gofhir/fhirjson/pkg/printer"
)

// ErrSchemaViolation is wrapped by print errors caused by a record that does
// not match its schema.
var ErrSchemaViolation = printer.ErrSchemaViolation

// Print renders rec in one of the four output shapes.
func (p *Parser) Print(rec *element.Complex, pretty, analytics bool) (string, error) {
	s, err := p.printer.Print(rec, printer.Format{Pretty: pretty, Analytics: analytics})
	if p.opts.Metrics != nil {
		p.opts.Metrics.RecordPrint(err)
	}
	return s, err
}

// PrintPrimitive renders one primitive value.
func (p *Parser) PrintPrimitive(prim *element.Primitive) (string, error) {
	s, err := p.printer.PrintPrimitive(prim)
	if p.opts.Metrics != nil {
		p.opts.Metrics.RecordPrint(err)
	}
	return s, err
}

// Print renders rec with the built-in R4 tables.
func Print(rec *element.Complex, pretty, analytics bool) (string, error) {
	return std().Print(rec, pretty, analytics)
}

// ToJSONString renders rec as compact FHIR JSON.
func ToJSONString(rec *element.Complex) (string, error) {
	return Print(rec, false, false)
}

// ToPrettyJSONString renders rec as FHIR JSON indented by two spaces.
func ToPrettyJSONString(rec *element.Complex) (string, error) {
	return Print(rec, true, false)
}

// ToJSONStringForAnalytics renders rec in the compact analytics shape.
func ToJSONStringForAnalytics(rec *element.Complex) (string, error) {
	return Print(rec, false, true)
}

// ToPrettyJSONStringForAnalytics renders rec in the indented analytics shape.
func ToPrettyJSONStringForAnalytics(rec *element.Complex) (string, error) {
	return Print(rec, true, true)
}

// PrintPrimitive renders one primitive value: a bare JSON literal, or
// {"value":...,"_value":{...}} when it carries an id or extensions.
func PrintPrimitive(prim *element.Primitive) (string, error) {
	return std().PrintPrimitive(prim)
}
