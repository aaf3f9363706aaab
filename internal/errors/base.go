// Package errors defines crmassist's error types. Each carries the exit code
// the CLI terminates with and, optionally, a context block explaining what
// the user can do about it.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// AppError is embedded by every typed error in this package
type AppError struct {
	Message  string
	Context  *ErrorContext
	Cause    error
	ExitCode ExitCode
}

func (e *AppError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return e.Message + ": " + e.Cause.Error()
}

func (e *AppError) Unwrap() error { return e.Cause }

func (e *AppError) exitCode() ExitCode { return e.ExitCode }

// GetUserMessage renders the message, its cause and the context block
func (e *AppError) GetUserMessage() string {
	var sb strings.Builder
	sb.WriteString("ERROR: " + e.Message)
	if e.Cause != nil {
		fmt.Fprintf(&sb, "\nCause: %v", e.Cause)
	}
	if e.Context != nil {
		sb.WriteString(e.Context.Format())
	}
	return sb.String()
}

func NewError(message string, code ExitCode) *AppError {
	return &AppError{Message: message, ExitCode: code}
}

// Wrap attaches message and code to cause; a nil cause yields nil
func Wrap(cause error, message string, code ExitCode) error {
	if cause == nil {
		return nil
	}
	return &AppError{Message: message, Cause: cause, ExitCode: code}
}

// ExitCodeOf returns the exit code carried by err, or ExitGeneralError
func ExitCodeOf(err error) ExitCode {
	if err == nil {
		return ExitSuccess
	}
	var coded interface{ exitCode() ExitCode }
	if stderrors.As(err, &coded) {
		return coded.exitCode()
	}
	return ExitGeneralError
}

// UserMessage returns the detailed message of the first application error
// in err's chain, and false when there is none
func UserMessage(err error) (string, bool) {
	var u interface{ GetUserMessage() string }
	if err != nil && stderrors.As(err, &u) {
		return u.GetUserMessage(), true
	}
	return "", false
}
