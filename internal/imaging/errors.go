package imaging

import "fmt"

// ErrorKind classifies validation failures so callers can return a
// specific, actionable reason without string matching.
type ErrorKind int

const (
	KindEmpty ErrorKind = iota + 1
	KindUnrecognized
	KindDimensionCeiling
	KindDecodeFailure
	KindMalformed
)

func (k ErrorKind) String() string {
	switch k {
	case KindEmpty:
		return "empty_input"
	case KindUnrecognized:
		return "unrecognized_signature"
	case KindDimensionCeiling:
		return "dimension_ceiling_exceeded"
	case KindDecodeFailure:
		return "decode_failure"
	case KindMalformed:
		return "malformed_container"
	default:
		return "unknown"
	}
}

// ValidationError is returned for any rejected upload. Rejection is
// always fail-closed: no sanitized output accompanies an error.
type ValidationError struct {
	Kind   ErrorKind
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("image validation failed (%s): %s", e.Kind, e.Reason)
}

func newValidationError(kind ErrorKind, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}
