package pipeline

import (
	"errors"
	"fmt"
)

// GraphErrorCode categorizes graph construction failures.
type GraphErrorCode string

const (
	// ErrCodeNoProducer indicates a consumed artifact has no producing
	// task and is not an externally supplied input.
	ErrCodeNoProducer GraphErrorCode = "NO_PRODUCER"

	// ErrCodeDuplicateProducer indicates two tasks declare the same
	// output artifact.
	ErrCodeDuplicateProducer GraphErrorCode = "DUPLICATE_PRODUCER"

	// ErrCodeCycle indicates the artifact wiring produced a cycle
	// (topological sort failed).
	ErrCodeCycle GraphErrorCode = "CYCLE"

	// ErrCodeDuplicateTask indicates two templates instantiated the
	// same task ID.
	ErrCodeDuplicateTask GraphErrorCode = "DUPLICATE_TASK"
)

// GraphError represents a malformed dependency topology. Graph errors
// are fatal: the pipeline aborts before any task runs.
type GraphError struct {
	Code     GraphErrorCode
	Message  string
	TaskID   string
	Artifact string
}

func (e *GraphError) Error() string {
	switch {
	case e.TaskID != "" && e.Artifact != "":
		return fmt.Sprintf("%s: %s (task=%s, artifact=%s)", e.Code, e.Message, e.TaskID, e.Artifact)
	case e.TaskID != "":
		return fmt.Sprintf("%s: %s (task=%s)", e.Code, e.Message, e.TaskID)
	case e.Artifact != "":
		return fmt.Sprintf("%s: %s (artifact=%s)", e.Code, e.Message, e.Artifact)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsGraphError reports whether err is (or wraps) a GraphError.
func IsGraphError(err error) bool {
	var ge *GraphError
	return errors.As(err, &ge)
}
