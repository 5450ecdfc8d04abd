package issue

import (
	"fmt"
	"strings"
)

// DiagnosticID identifies a specific diagnostic message. It doubles as the
// machine-readable status code recorded in Issue.Code.
type DiagnosticID string

// Diagnostic IDs raised while merging JSON into a record.
const (
	DiagUnknownElement          DiagnosticID = "UNKNOWN_ELEMENT"
	DiagChoiceTypeUnknown       DiagnosticID = "CHOICE_TYPE_UNKNOWN"
	DiagChoiceTypeMismatch      DiagnosticID = "CHOICE_TYPE_MISMATCH"
	DiagChoiceMultiple          DiagnosticID = "CHOICE_MULTIPLE_BRANCHES"
	DiagWrongJSONType           DiagnosticID = "WRONG_JSON_TYPE"
	DiagInvalidPrimitive        DiagnosticID = "INVALID_PRIMITIVE"
	DiagNullValue               DiagnosticID = "NULL_VALUE"
	DiagCompanionInvalid        DiagnosticID = "EXTENSION_COMPANION_INVALID"
	DiagCompanionOnComplex      DiagnosticID = "EXTENSION_COMPANION_ON_COMPLEX"
	DiagExtensionLengthMismatch DiagnosticID = "EXTENSION_LENGTH_MISMATCH"
	DiagDuplicateKey            DiagnosticID = "DUPLICATE_KEY"
)

// Diagnostic IDs raised by validators.
const (
	DiagCardinalityMin         DiagnosticID = "CARDINALITY_MIN"
	DiagCardinalityMax         DiagnosticID = "CARDINALITY_MAX"
	DiagTypeInvalidFormat      DiagnosticID = "TYPE_INVALID_FORMAT"
	DiagConstraintFailed       DiagnosticID = "CONSTRAINT_FAILED"
	DiagConstraintCompileError DiagnosticID = "CONSTRAINT_COMPILE_ERROR"
	DiagConstraintEvalError    DiagnosticID = "CONSTRAINT_EVAL_ERROR"
)

// DiagnosticTemplate defines the structure for a diagnostic message.
type DiagnosticTemplate struct {
	ID       DiagnosticID
	Type     Type
	Template string
}

// diagnosticTemplates maps diagnostic IDs to their templates.
// Templates use {placeholder} syntax for variable substitution.
var diagnosticTemplates = map[DiagnosticID]DiagnosticTemplate{
	DiagUnknownElement: {
		Type:     TypeStructure,
		Template: "Unrecognized element '{element}' in {type}; value dropped",
	},
	DiagChoiceTypeUnknown: {
		Type:     TypeStructure,
		Template: "Choice element '{element}' has no branch of type '{suffix}' (allowed: {allowed})",
	},
	DiagChoiceTypeMismatch: {
		Type:     TypeStructure,
		Template: "Choice element '{element}' expects a JSON {expected} for type {type}, found {actual}",
	},
	DiagChoiceMultiple: {
		Type:     TypeStructure,
		Template: "Choice element '{element}' already populated by '{existing}'; '{key}' dropped",
	},
	DiagWrongJSONType: {
		Type:     TypeStructure,
		Template: "Element '{element}' expects a JSON {expected}, found {actual}",
	},
	DiagInvalidPrimitive: {
		Type:     TypeStructure,
		Template: "Invalid {type} value '{value}': {error}",
	},
	DiagNullValue: {
		Type:     TypeStructure,
		Template: "Element '{element}' is null with no extension companion",
	},
	DiagCompanionInvalid: {
		Type:     TypeStructure,
		Template: "Extension companion '{element}' is invalid: {error}",
	},
	DiagCompanionOnComplex: {
		Type:     TypeStructure,
		Template: "Extension companion '{element}' is only allowed on primitive elements",
	},
	DiagExtensionLengthMismatch: {
		Type:     TypeStructure,
		Template: "Element '{element}' has {values} values but {companions} extension companions",
	},
	DiagDuplicateKey: {
		Type:     TypeStructure,
		Template: "Key '{element}' appears more than once; earlier value dropped",
	},

	DiagCardinalityMin: {
		Type:     TypeRequired,
		Template: "Minimum cardinality of '{path}' is {min}, but found {count}",
	},
	DiagCardinalityMax: {
		Type:     TypeValue,
		Template: "Maximum cardinality of '{path}' is {max}, but found {count}",
	},
	DiagTypeInvalidFormat: {
		Type:     TypeValue,
		Template: "The value '{value}' is not a valid {type}",
	},
	DiagConstraintFailed: {
		Type:     TypeInvariant,
		Template: "Constraint failed: {key}: '{human}'",
	},
	DiagConstraintCompileError: {
		Type:     TypeProcessing,
		Template: "Constraint {key} could not be compiled: {error}",
	},
	DiagConstraintEvalError: {
		Type:     TypeProcessing,
		Template: "Constraint {key} could not be evaluated: {error}",
	},
}

// FormatDiagnostic formats a diagnostic message with the given parameters.
func FormatDiagnostic(id DiagnosticID, params map[string]any) string {
	tmpl, ok := diagnosticTemplates[id]
	if !ok {
		return string(id)
	}
	return formatTemplate(tmpl.Template, params)
}

// GetDiagnosticTemplate returns the template for a diagnostic ID.
func GetDiagnosticTemplate(id DiagnosticID) (DiagnosticTemplate, bool) {
	tmpl, ok := diagnosticTemplates[id]
	if ok {
		tmpl.ID = id
	}
	return tmpl, ok
}

// formatTemplate replaces {placeholder} with values from params.
func formatTemplate(template string, params map[string]any) string {
	result := template
	for key, value := range params {
		placeholder := "{" + key + "}"
		result = strings.ReplaceAll(result, placeholder, fmt.Sprint(value))
	}
	return result
}

// DiagnosticError is an error carrying a diagnostic ID. Reporters copy the ID
// into Issue.Code.
type DiagnosticError struct {
	ID      DiagnosticID
	Message string
	Err     error
}

// NewError builds a DiagnosticError from a template.
func NewError(id DiagnosticID, params map[string]any) *DiagnosticError {
	return &DiagnosticError{ID: id, Message: FormatDiagnostic(id, params)}
}

// Wrap builds a DiagnosticError from a template and keeps err as its cause.
// The cause is available to the template as {error}.
func Wrap(id DiagnosticID, err error, params map[string]any) *DiagnosticError {
	if params == nil {
		params = make(map[string]any, 1)
	}
	if err != nil {
		params["error"] = err.Error()
	}
	return &DiagnosticError{ID: id, Message: FormatDiagnostic(id, params), Err: err}
}

func (e *DiagnosticError) Error() string {
	return e.Message
}

func (e *DiagnosticError) Unwrap() error {
	return e.Err
}

// StatusCode returns the diagnostic ID.
func (e *DiagnosticError) StatusCode() string {
	return string(e.ID)
}
