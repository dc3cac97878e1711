package stack

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidHandler reports malformed construction arguments.
	ErrInvalidHandler = errors.New("stack: invalid handler")
	// ErrDuplicateName reports a name collision inside one stack.
	ErrDuplicateName = errors.New("stack: duplicate handler name")
	// ErrHandlerNotFound is returned by InsertBefore/InsertAfter.
	ErrHandlerNotFound = errors.New("stack: handler not found")
	// ErrContinuationUsed is returned when a turn's next is called twice.
	ErrContinuationUsed = errors.New("stack: continuation already used")
	// ErrContinuationClosed is returned by Context.Next once the dispatch has unwound.
	ErrContinuationClosed = errors.New("stack: continuation closed")
)

// LookupError is raised when a name-based body cannot be resolved against
// the dispatch receiver.
type LookupError struct {
	Name     string
	Receiver string
	Reason   string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("stack: cannot resolve handler %q on %s: %s", e.Name, e.Receiver, e.Reason)
}

// FaultError wraps a non-error value recovered from a panicking handler.
type FaultError struct {
	Value any
}

func (e *FaultError) Error() string { return fmt.Sprintf("stack: handler panic: %v", e.Value) }

// PuntError marks an error raised by the terminal continuation. It travels
// back up through every enclosing turn without being offered to any later
// handler.
type PuntError struct {
	Err error
}

func (e *PuntError) Error() string        { return e.Err.Error() }
func (e *PuntError) Unwrap() error        { return e.Err }
func (e *PuntError) DoNotReprocess() bool { return true }

// UnhandledError is returned by Dispatch when a pending error reaches the end
// of the chain and no OnDone continuation is configured.
type UnhandledError struct {
	Err error
}

func (e *UnhandledError) Error() string        { return "stack: unhandled error: " + e.Err.Error() }
func (e *UnhandledError) Unwrap() error        { return e.Err }
func (e *UnhandledError) DoNotReprocess() bool { return true }

// IsDoNotReprocess reports whether err carries the do-not-reprocess marker.
func IsDoNotReprocess(err error) bool {
	var m interface{ DoNotReprocess() bool }
	return errors.As(err, &m) && m.DoNotReprocess()
}

func asError(v any) error {
	if err, ok := v.(error); ok {
		return err
	}
	return &FaultError{Value: v}
}
