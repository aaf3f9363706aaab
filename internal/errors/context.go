package errors

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrorContext is the user-facing explanation attached to an AppError
type ErrorContext struct {
	Operation   string
	Component   string
	Details     map[string]interface{}
	Suggestions []string
	// Recoverable marks failures that may succeed if retried later
	Recoverable bool
	// RetryAfter is the vendor backoff hint; zero when the vendor sent none
	RetryAfter time.Duration
}

// Format renders the context as the indented block printed under an error
func (ec *ErrorContext) Format() string {
	var sb strings.Builder

	if what := ec.summary(); what != "" {
		fmt.Fprintf(&sb, "\nWhat happened:\n  %s\n", what)
	}

	if len(ec.Details) > 0 {
		keys := make([]string, 0, len(ec.Details))
		for k := range ec.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString("\nDetails:\n")
		for _, k := range keys {
			fmt.Fprintf(&sb, "  - %s: %v\n", k, ec.Details[k])
		}
	}

	if len(ec.Suggestions) > 0 {
		sb.WriteString("\nWhat you can do:\n")
		for i, s := range ec.Suggestions {
			fmt.Fprintf(&sb, "  %d. %s\n", i+1, s)
		}
	}

	switch {
	case ec.Recoverable && ec.RetryAfter > 0:
		fmt.Fprintf(&sb, "\nRecoverable: Yes (retry after %s)\n", ec.RetryAfter)
	case ec.Recoverable:
		sb.WriteString("\nRecoverable: Yes\n")
	}

	return sb.String()
}

func (ec *ErrorContext) summary() string {
	switch {
	case ec.Operation != "" && ec.Component != "":
		return fmt.Sprintf("%s failed in %s.", ec.Operation, ec.Component)
	case ec.Operation != "":
		return ec.Operation + " failed."
	case ec.Component != "":
		return "Failure in " + ec.Component + "."
	}
	return ""
}
