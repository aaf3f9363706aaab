package errors

import (
	"fmt"
)

// ToolExecutionError is raised inside the tool system when a handler fails.
// It never crosses the executor boundary; the executor turns it into a result.
type ToolExecutionError struct {
	*AppError
	Tool string
}

// NewToolExecutionError creates a new tool execution error
func NewToolExecutionError(toolName string, cause error) *ToolExecutionError {
	return &ToolExecutionError{
		AppError: &AppError{
			Message: fmt.Sprintf("Tool '%s' execution failed", toolName),
			Cause:   cause,
			Context: &ErrorContext{
				Operation: "Tool Execution",
				Component: toolName,
				Details: map[string]interface{}{
					"tool": toolName,
				},
				Recoverable: true,
			},
			ExitCode: ExitToolError,
		},
		Tool: toolName,
	}
}

// ToolArgumentError is raised when a tool call carries invalid arguments
type ToolArgumentError struct {
	*AppError
	Tool     string
	Argument string
}

// NewToolArgumentError creates a new argument validation error
func NewToolArgumentError(toolName, argument, reason string) *ToolArgumentError {
	return &ToolArgumentError{
		AppError: &AppError{
			Message: fmt.Sprintf("invalid argument '%s' for tool '%s': %s", argument, toolName, reason),
			Context: &ErrorContext{
				Operation: "Argument Validation",
				Component: toolName,
				Details: map[string]interface{}{
					"argument": argument,
					"reason":   reason,
				},
			},
			ExitCode: ExitValidationError,
		},
		Tool:     toolName,
		Argument: argument,
	}
}

// DuplicateToolError is raised when two tools share a name in one registry
type DuplicateToolError struct {
	*AppError
}

// NewDuplicateToolError creates a new duplicate registration error
func NewDuplicateToolError(toolName string) *DuplicateToolError {
	return &DuplicateToolError{
		AppError: &AppError{
			Message:  fmt.Sprintf("tool already registered: %s", toolName),
			ExitCode: ExitGeneralError,
		},
	}
}
