// Package services implements the workflow engine: transition validation,
// status progression, the verification gate, cascades, and the
// orchestrator that composes them.
package services

// ValidationKind discriminates the validator's result variants.
type ValidationKind string

const (
	ValidationValid    ValidationKind = "valid"
	ValidationAdvisory ValidationKind = "valid_with_advisory"
	ValidationInvalid  ValidationKind = "invalid"
)

// ValidationResult is the sum type returned by the status validator:
// Valid, ValidWithAdvisory(message), or Invalid(reason, suggestions).
type ValidationResult struct {
	Kind        ValidationKind `json:"kind"`
	Advisory    string         `json:"advisory,omitempty"`
	Reason      string         `json:"reason,omitempty"`
	Suggestions []string       `json:"suggestions,omitempty"`
}

// Valid returns the plain success variant.
func Valid() ValidationResult {
	return ValidationResult{Kind: ValidationValid}
}

// ValidWithAdvisory returns a success carrying a non-blocking message.
func ValidWithAdvisory(message string) ValidationResult {
	return ValidationResult{Kind: ValidationAdvisory, Advisory: message}
}

// Invalid returns the failure variant with an actionable reason.
func Invalid(reason string, suggestions ...string) ValidationResult {
	return ValidationResult{Kind: ValidationInvalid, Reason: reason, Suggestions: suggestions}
}

// OK reports whether the result permits the operation.
func (r ValidationResult) OK() bool {
	return r.Kind != ValidationInvalid
}

// withAdvisory attaches a carried advisory to an otherwise plain Valid.
func (r ValidationResult) withAdvisory(advisory string) ValidationResult {
	if r.Kind == ValidationValid && advisory != "" {
		return ValidWithAdvisory(advisory)
	}
	return r
}
