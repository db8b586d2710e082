package shellrpc

import (
	"errors"
	"fmt"
)

// Code is a stable machine-readable error kind.
type Code string

const (
	CodeInitFailure    Code = "initialization_failed"
	CodeInitTimeout    Code = "initialization_timeout"
	CodeInitDeath      Code = "initialization_death"
	CodeNoProcess      Code = "no_process"
	CodeNotAlive       Code = "not_alive"
	CodeShellDied      Code = "shell_died"
	CodeShellExited    Code = "shell_exited"
	CodeCommandTimeout Code = "command_timeout"
	CodeInterrupted    Code = "interrupted"
	CodeStreamCreation Code = "stream_creation_failed"
	CodePTYUnavailable Code = "pty_unavailable"
	CodeCleanup        Code = "cleanup_failed"
)

// Error couples a machine-readable code with a human message. Command
// level failures also carry whatever partial output was gathered before
// the fault, for diagnostics.
type Error struct {
	Code    Code
	Message string
	Partial *CommandResult
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

func wrapError(code Code, msg string, err error) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// CodeOf extracts the machine-readable code, or "" for foreign errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
