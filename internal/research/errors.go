package research

import "fmt"

// GenerationErrorKind classifies failures of a generation step.
type GenerationErrorKind string

const (
	// GenerationTimeout means the backend did not answer in time.
	GenerationTimeout GenerationErrorKind = "timeout"
	// GenerationUpstream means the backend answered with an error.
	GenerationUpstream GenerationErrorKind = "upstream_failure"
	// GenerationMalformed means the output could not be used for the role,
	// even after the parser's permissive fallback.
	GenerationMalformed GenerationErrorKind = "malformed_output"
)

// GenerationError is fatal to the task that triggered it.
type GenerationError struct {
	Kind GenerationErrorKind
	Role AgentRole
	Err  error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s generation %s: %v", e.Role, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s generation %s", e.Role, e.Kind)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// IsGenerationTimeout reports whether err is a generation timeout.
func IsGenerationTimeout(err error) bool {
	ge, ok := err.(*GenerationError)
	return ok && ge.Kind == GenerationTimeout
}
