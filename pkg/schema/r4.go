package schema

import "sync"

var (
	r4Once     sync.Once
	r4Registry *Registry
)

// R4 returns the built-in R4 tables. The registry is built once and shared.
func R4() *Registry {
	r4Once.Do(func() {
		r4Registry = NewRegistry()
		r4Registry.Register(r4Datatypes()...)
		r4Registry.Register(r4Patient()...)
		r4Registry.Register(r4Observation()...)
	})
	return r4Registry
}

const many = Unbounded

func prim(name, typeCode string, min, max int) Field {
	return Field{Name: name, JSONKey: name, Kind: KindPrimitive, Type: typeCode, Card: Cardinality{min, max}}
}

func cplx(name, typeCode string, min, max int) Field {
	return Field{Name: name, JSONKey: name, Kind: KindComplex, Type: typeCode, Card: Cardinality{min, max}}
}

func choice(name string, min int, types ...string) Field {
	f := Field{Name: name, JSONKey: name, Kind: KindChoice, Card: Cardinality{min, 1}}
	for _, t := range types {
		f.Branches = append(f.Branches, NewBranch(t))
	}
	return f
}

func ext(name string) Field {
	return Field{Name: name, JSONKey: name, Kind: KindExtension, Type: "Extension", Card: Cardinality{0, many}}
}

// element prefixes the Element fields shared by every datatype.
func element(fields ...Field) []Field {
	return append([]Field{prim("id", "string", 0, 1), ext("extension")}, fields...)
}

// backbone prefixes the BackboneElement fields.
func backbone(fields ...Field) []Field {
	return append([]Field{prim("id", "string", 0, 1), ext("extension"), ext("modifierExtension")}, fields...)
}

// domainResource prefixes the DomainResource fields. contained is not modelled.
func domainResource(fields ...Field) []Field {
	return append([]Field{
		prim("id", "id", 0, 1),
		cplx("meta", "Meta", 0, 1),
		prim("implicitRules", "uri", 0, 1),
		prim("language", "code", 0, 1),
		cplx("text", "Narrative", 0, 1),
		ext("extension"),
		ext("modifierExtension"),
	}, fields...)
}

// extensionValueTypes lists the Extension.value[x] types that have tables.
var extensionValueTypes = []string{
	"base64Binary", "boolean", "canonical", "code", "date", "dateTime", "decimal",
	"id", "instant", "integer", "markdown", "oid", "positiveInt", "string", "time",
	"unsignedInt", "uri", "url", "uuid",
	"Address", "Attachment", "CodeableConcept", "Coding", "ContactPoint", "HumanName",
	"Identifier", "Period", "Quantity", "Range", "Ratio", "Reference", "SampledData", "Meta",
}

func r4Datatypes() []*Type {
	return []*Type{
		NewType("Extension", false, element(
			prim("url", "uri", 1, 1),
			choice("value", 0, extensionValueTypes...),
		)...),
		NewType("Meta", false, element(
			prim("versionId", "id", 0, 1),
			prim("lastUpdated", "instant", 0, 1),
			prim("source", "uri", 0, 1),
			prim("profile", "canonical", 0, many),
			cplx("security", "Coding", 0, many),
			cplx("tag", "Coding", 0, many),
		)...),
		NewType("Narrative", false, element(
			prim("status", "code", 1, 1),
			prim("div", "xhtml", 1, 1),
		)...),
		NewType("Identifier", false, element(
			prim("use", "code", 0, 1),
			cplx("type", "CodeableConcept", 0, 1),
			prim("system", "uri", 0, 1),
			prim("value", "string", 0, 1),
			cplx("period", "Period", 0, 1),
			cplx("assigner", "Reference", 0, 1),
		)...),
		NewType("HumanName", false, element(
			prim("use", "code", 0, 1),
			prim("text", "string", 0, 1),
			prim("family", "string", 0, 1),
			prim("given", "string", 0, many),
			prim("prefix", "string", 0, many),
			prim("suffix", "string", 0, many),
			cplx("period", "Period", 0, 1),
		)...),
		NewType("ContactPoint", false, element(
			prim("system", "code", 0, 1),
			prim("value", "string", 0, 1),
			prim("use", "code", 0, 1),
			prim("rank", "positiveInt", 0, 1),
			cplx("period", "Period", 0, 1),
		)...),
		NewType("Address", false, element(
			prim("use", "code", 0, 1),
			prim("type", "code", 0, 1),
			prim("text", "string", 0, 1),
			prim("line", "string", 0, many),
			prim("city", "string", 0, 1),
			prim("district", "string", 0, 1),
			prim("state", "string", 0, 1),
			prim("postalCode", "string", 0, 1),
			prim("country", "string", 0, 1),
			cplx("period", "Period", 0, 1),
		)...),
		NewType("Period", false, element(
			prim("start", "dateTime", 0, 1),
			prim("end", "dateTime", 0, 1),
		)...),
		NewType("Coding", false, element(
			prim("system", "uri", 0, 1),
			prim("version", "string", 0, 1),
			prim("code", "code", 0, 1),
			prim("display", "string", 0, 1),
			prim("userSelected", "boolean", 0, 1),
		)...),
		NewType("CodeableConcept", false, element(
			cplx("coding", "Coding", 0, many),
			prim("text", "string", 0, 1),
		)...),
		NewType("Reference", false, element(
			prim("reference", "string", 0, 1),
			prim("type", "uri", 0, 1),
			cplx("identifier", "Identifier", 0, 1),
			prim("display", "string", 0, 1),
		)...),
		NewType("Quantity", false, element(
			prim("value", "decimal", 0, 1),
			prim("comparator", "code", 0, 1),
			prim("unit", "string", 0, 1),
			prim("system", "uri", 0, 1),
			prim("code", "code", 0, 1),
		)...),
		NewType("Range", false, element(
			cplx("low", "Quantity", 0, 1),
			cplx("high", "Quantity", 0, 1),
		)...),
		NewType("Ratio", false, element(
			cplx("numerator", "Quantity", 0, 1),
			cplx("denominator", "Quantity", 0, 1),
		)...),
		NewType("Attachment", false, element(
			prim("contentType", "code", 0, 1),
			prim("language", "code", 0, 1),
			prim("data", "base64Binary", 0, 1),
			prim("url", "url", 0, 1),
			prim("size", "unsignedInt", 0, 1),
			prim("hash", "base64Binary", 0, 1),
			prim("title", "string", 0, 1),
			prim("creation", "dateTime", 0, 1),
		)...),
		NewType("SampledData", false, element(
			cplx("origin", "Quantity", 1, 1),
			prim("period", "decimal", 1, 1),
			prim("factor", "decimal", 0, 1),
			prim("lowerLimit", "decimal", 0, 1),
			prim("upperLimit", "decimal", 0, 1),
			prim("dimensions", "positiveInt", 1, 1),
			prim("data", "string", 0, 1),
		)...),
	}
}

func r4Patient() []*Type {
	return []*Type{
		NewType("Patient", true, domainResource(
			cplx("identifier", "Identifier", 0, many),
			prim("active", "boolean", 0, 1),
			cplx("name", "HumanName", 0, many),
			cplx("telecom", "ContactPoint", 0, many),
			prim("gender", "code", 0, 1),
			prim("birthDate", "date", 0, 1),
			choice("deceased", 0, "boolean", "dateTime"),
			cplx("address", "Address", 0, many),
			cplx("maritalStatus", "CodeableConcept", 0, 1),
			choice("multipleBirth", 0, "boolean", "integer"),
			cplx("photo", "Attachment", 0, many),
			cplx("contact", "Patient.contact", 0, many),
			cplx("communication", "Patient.communication", 0, many),
			cplx("generalPractitioner", "Reference", 0, many),
			cplx("managingOrganization", "Reference", 0, 1),
			cplx("link", "Patient.link", 0, many),
		)...),
		NewType("Patient.contact", false, backbone(
			cplx("relationship", "CodeableConcept", 0, many),
			cplx("name", "HumanName", 0, 1),
			cplx("telecom", "ContactPoint", 0, many),
			cplx("address", "Address", 0, 1),
			prim("gender", "code", 0, 1),
			cplx("organization", "Reference", 0, 1),
			cplx("period", "Period", 0, 1),
		)...),
		NewType("Patient.communication", false, backbone(
			cplx("language", "CodeableConcept", 1, 1),
			prim("preferred", "boolean", 0, 1),
		)...),
		NewType("Patient.link", false, backbone(
			cplx("other", "Reference", 1, 1),
			prim("type", "code", 1, 1),
		)...),
	}
}

var observationValueTypes = []string{
	"Quantity", "CodeableConcept", "string", "boolean", "integer", "Range",
	"Ratio", "SampledData", "time", "dateTime", "Period",
}

func r4Observation() []*Type {
	obs := NewType("Observation", true, domainResource(
		cplx("identifier", "Identifier", 0, many),
		cplx("basedOn", "Reference", 0, many),
		cplx("partOf", "Reference", 0, many),
		prim("status", "code", 1, 1),
		cplx("category", "CodeableConcept", 0, many),
		cplx("code", "CodeableConcept", 1, 1),
		cplx("subject", "Reference", 0, 1),
		cplx("focus", "Reference", 0, many),
		cplx("encounter", "Reference", 0, 1),
		choice("effective", 0, "dateTime", "Period", "instant"),
		prim("issued", "instant", 0, 1),
		cplx("performer", "Reference", 0, many),
		choice("value", 0, observationValueTypes...),
		cplx("dataAbsentReason", "CodeableConcept", 0, 1),
		cplx("interpretation", "CodeableConcept", 0, many),
		cplx("bodySite", "CodeableConcept", 0, 1),
		cplx("method", "CodeableConcept", 0, 1),
		cplx("specimen", "Reference", 0, 1),
		cplx("device", "Reference", 0, 1),
		cplx("referenceRange", "Observation.referenceRange", 0, many),
		cplx("hasMember", "Reference", 0, many),
		cplx("derivedFrom", "Reference", 0, many),
		cplx("component", "Observation.component", 0, many),
	)...)
	obs.Constraints = []Constraint{{
		Key:        "obs-6",
		Severity:   "error",
		Human:      "dataAbsentReason SHALL only be present if Observation.value[x] is not present",
		Expression: "dataAbsentReason.empty() or value.empty()",
	}}

	return []*Type{
		obs,
		NewType("Observation.referenceRange", false, backbone(
			cplx("low", "Quantity", 0, 1),
			cplx("high", "Quantity", 0, 1),
			cplx("type", "CodeableConcept", 0, 1),
			cplx("appliesTo", "CodeableConcept", 0, many),
			cplx("age", "Range", 0, 1),
			prim("text", "string", 0, 1),
		)...),
		NewType("Observation.component", false, backbone(
			cplx("code", "CodeableConcept", 1, 1),
			choice("value", 0, observationValueTypes...),
			cplx("dataAbsentReason", "CodeableConcept", 0, 1),
			cplx("interpretation", "CodeableConcept", 0, many),
			cplx("referenceRange", "Observation.referenceRange", 0, many),
		)...),
	}
}
