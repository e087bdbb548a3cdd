package vm

import "fmt"

// VMError is a runtime error raised by bytecode. It is surfaced to user
// code as an Error object (msg + captured stack trace) and is catchable
// via CTCH; it never escapes Process.Run as a Go error.
type VMError struct {
	Msg   string
	Trace []StackLine
}

func (e *VMError) Error() string { return e.Msg }

// StackLine is one frame of a trace captured when a VMError is raised,
// built by walking the context stack at raise time.
type StackLine struct {
	Module string
	Line   int
	Text   string
}

// Errorf constructs a VMError with no trace; the trace is filled in by
// raise as the error is recorded against the raising task.
func Errorf(format string, args ...interface{}) *VMError {
	return &VMError{Msg: fmt.Sprintf(format, args...)}
}

// InternalError marks a VM assertion failure -- malformed bytecode that
// should never reach a running task. It terminates the owning task with a
// logged message rather than unwinding into user-catchable VM error
// handling, and never reaches .jv code.
type InternalError struct {
	Msg string
}

func (e *InternalError) Error() string { return "internal error: " + e.Msg }

func internalf(format string, args ...interface{}) *InternalError {
	return &InternalError{Msg: fmt.Sprintf(format, args...)}
}
