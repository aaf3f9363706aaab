// Package tools holds the typed registry of capabilities the model may invoke,
// the executor that binds vendor-neutral tool calls onto handlers, and the
// per-vendor framing of their results.
package tools

import (
	"context"

	"github.com/user/crmassist/internal/crm"
	"github.com/user/crmassist/internal/llmtypes"
	"github.com/user/crmassist/internal/logging"
)

// Category groups tools so callers can expose a subset
type Category string

const (
	CategorySearch Category = "search"
	CategoryCRM    Category = "crm"
)

// Needs declares which Env fields a handler uses. Fields not declared are
// left zero when the handler runs.
type Needs struct {
	Data         bool
	Conversation bool
	Logger       bool
}

// Env is the ambient context available to handlers
type Env struct {
	Data           crm.DataAccess
	ConversationID string
	Logger         *logging.Logger
}

// Handler runs a tool. Args holds only declared parameters, already
// validated and with defaults applied. Returning a Result passes it through
// unchanged; any other value becomes a successful result's output.
type Handler func(ctx context.Context, args Args, env Env) (any, error)

// Tool is a registered capability. Treat as immutable once registered.
type Tool struct {
	Name                 string
	Description          string
	Parameters           []llmtypes.Parameter
	Handler              Handler
	Category             Category
	RequiresConfirmation bool
	Needs                Needs
}

// Definition returns the vendor-neutral declaration of the tool
func (t Tool) Definition() llmtypes.ToolDefinition {
	return llmtypes.ToolDefinition{
		Name:        t.Name,
		Description: t.Description,
		Parameters:  t.Parameters,
	}
}

// Status is the outcome of one tool execution
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusPartial Status = "partial"
)

// Result is the outcome of one tool call. Error is set iff Status is not
// success, and Output is nil when Status is error.
type Result struct {
	Status   Status
	Output   any
	Error    string
	Metadata map[string]any
}

// Success builds a successful result
func Success(output any) Result {
	return Result{Status: StatusSuccess, Output: output}
}

// Failure builds an error result
func Failure(message string) Result {
	return Result{Status: StatusError, Error: message}
}

// Partial builds a result carrying usable output alongside a warning
func Partial(output any, message string) Result {
	return Result{Status: StatusPartial, Output: output, Error: message}
}

// Failed reports whether the call errored
func (r Result) Failed() bool {
	return r.Status == StatusError
}

// normalize enforces the Result invariants on handler-built values
func (r Result) normalize() Result {
	switch r.Status {
	case StatusSuccess:
		r.Error = ""
	case StatusError:
		r.Output = nil
		if r.Error == "" {
			r.Error = "tool failed"
		}
	case StatusPartial:
		if r.Error == "" {
			r.Error = "partial result"
		}
	default:
		r.Status = StatusSuccess
		r.Error = ""
	}
	return r
}

// Execution pairs a tool call with its result
type Execution struct {
	Call   llmtypes.ToolCall
	Result Result
}

// ExecutionResult is the ordered outcome of a batch of tool calls
type ExecutionResult struct {
	Executions []Execution
}

// HasErrors reports whether any call in the batch failed
func (r ExecutionResult) HasErrors() bool {
	for _, e := range r.Executions {
		if e.Result.Failed() {
			return true
		}
	}
	return false
}
