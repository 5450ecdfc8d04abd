// Package fhirjson converts between FHIR R4 JSON and typed records.
//
// Reading merges a JSON document into a record of a known resource type.
// Input that cannot be represented is dropped and reported through an
// issue Reporter; only malformed JSON and a resourceType that does not fit
// the target stop the merge.
//
// # Quick Start
//
//	outcome := fhirjson.NewOutcome()
//	rec, err := fhirjson.Unmarshal(data, "Patient", fhirjson.NewOutcomeReporter(outcome))
//	if err != nil {
//	    log.Fatal(err) // *ParseError or *SchemaMismatchError
//	}
//	for _, iss := range outcome.Issues() {
//	    fmt.Println(iss.Path, iss.Diagnostics)
//	}
//
//	out, err := fhirjson.ToPrettyJSONString(rec)
//
// # Output Shapes
//
// ToJSONString and ToPrettyJSONString write the FHIR wire format.
// ToJSONStringForAnalytics and ToPrettyJSONStringForAnalytics write a shape
// whose key set is the same for every instance of a type: choice fields sit
// under their base key and primitive extensions are left out.
//
// # Functional Options
//
//	p, err := fhirjson.NewParser(
//	    fhirjson.WithTimezone("Europe/Paris"),
//	    fhirjson.WithSanitizer(sanitize.StripBOM),
//	    fhirjson.WithRegistry(reg),
//	)
//
// # Batches
//
// Parser.ParseBatch converts many documents on a worker pool, giving each
// document its own Outcome.
package fhirjson
