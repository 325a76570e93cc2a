package runtime

import (
	"errors"
	"fmt"
)

// Sentinels matched by errors.Is against the typed errors below.
var (
	ErrConfiguration  = errors.New("loop configuration error")
	ErrShape          = errors.New("loop shape error")
	ErrInnerExecution = errors.New("step function failed")

	errMissingOutput    = errors.New("step function left an output slot empty")
	errMissingCondition = errors.New("step function left the condition slot empty")
)

// pushOutHint is attached to shape errors of lazily sized outputs whose
// shape changes between iterations.
const pushOutHint = "an output of the step function changed shape after the first iteration; " +
	"this usually comes from a push-out optimization applied to the step function, " +
	"rebuild it with that optimization excluded so every iteration returns the same shape"

// ConfigurationError reports an invalid layout or call argument detected
// before any buffer work.
type ConfigurationError struct {
	Msg string
	Err error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *ConfigurationError) Unwrap() error        { return e.Err }
func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// ShapeError reports an array whose shape cannot serve its stream.
type ShapeError struct {
	Kind  string // stream category, e.g. "sequence" or "nit_sot"
	Index int    // stream index within its category
	Shape []int
	Msg   string
	Hint  string
}

func (e *ShapeError) Error() string {
	msg := fmt.Sprintf("%s %d with shape %v: %s", e.Kind, e.Index, e.Shape, e.Msg)
	if e.Hint != "" {
		msg += " (" + e.Hint + ")"
	}
	return msg
}

func (e *ShapeError) Is(target error) bool { return target == ErrShape }

// InnerExecutionError wraps a failure raised by the step function. The
// original error is preserved for errors.As and errors.Unwrap.
type InnerExecutionError struct {
	Iteration int
	Err       error
	Stack     []byte
}

func (e *InnerExecutionError) Error() string {
	return fmt.Sprintf("step function failed at iteration %d: %v", e.Iteration, e.Err)
}

func (e *InnerExecutionError) Unwrap() error        { return e.Err }
func (e *InnerExecutionError) Is(target error) bool { return target == ErrInnerExecution }

// PanicError carries a value recovered from a panicking step function.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap exposes the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

func configErrorf(format string, args ...any) error {
	return &ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}
