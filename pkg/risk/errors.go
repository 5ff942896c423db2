package risk

import "fmt"

// ConfigurationError reports a missing external resource such as the
// engine jar or the Java runtime.
type ConfigurationError struct {
	Resource string
	Detail   string
}

func (e *ConfigurationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s not available", e.Resource)
	}
	return fmt.Sprintf("%s not available: %s", e.Resource, e.Detail)
}

// ExternalProcessError reports a non-zero exit of the scoring engine.
// Stderr is kept verbatim.
type ExternalProcessError struct {
	ExitCode int
	Stderr   string
}

func (e *ExternalProcessError) Error() string {
	msg := e.Stderr
	if msg == "" {
		msg = "Unknown error"
	}
	return fmt.Sprintf("scorer error: %s", msg)
}

// ParseError reports engine output that does not follow the expected format.
type ParseError struct {
	Raw    string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unexpected scorer output (%s): %s", e.Reason, e.Raw)
}

// UnmappedValueError is returned by NormalizeStrict for a categorical value
// outside the engine's vocabulary.
type UnmappedValueError struct {
	Field string
	Value string
}

func (e *UnmappedValueError) Error() string {
	return fmt.Sprintf("unsupported %s value: %q", e.Field, e.Value)
}

// MissingFieldError reports a request without one of the engine columns.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field: %s", e.Field)
}
