package fhirjson

// FHIRVersion is the FHIR release whose JSON format is implemented.
const FHIRVersion = "4.0.1"

// Version is the library version.
const Version = "0.1.0"
