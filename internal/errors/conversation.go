package errors

import (
	"fmt"
)

// ConversationNotFoundError is raised when a conversation id is unknown to the store
type ConversationNotFoundError struct {
	*AppError
	ConversationID string
}

// NewConversationNotFoundError creates a new conversation not found error
func NewConversationNotFoundError(id string) *ConversationNotFoundError {
	return &ConversationNotFoundError{
		AppError: &AppError{
			Message: fmt.Sprintf("Conversation not found: %s", id),
			Context: &ErrorContext{
				Operation: "Loading conversation",
				Component: "Conversation Store",
				Details: map[string]interface{}{
					"conversation_id": id,
				},
				Suggestions: []string{
					"Run 'crmassist conversations new' to start a conversation",
					"Check that the store DSN points at the expected database",
				},
			},
			ExitCode: ExitStoreError,
		},
		ConversationID: id,
	}
}

// StoreError is raised when the conversation store fails
type StoreError struct {
	*AppError
}

// NewStoreError creates a new store error
func NewStoreError(operation string, cause error) *StoreError {
	return &StoreError{
		AppError: &AppError{
			Message: fmt.Sprintf("Conversation store failed during %s", operation),
			Cause:   cause,
			Context: &ErrorContext{
				Operation: operation,
				Component: "Conversation Store",
				Suggestions: []string{
					"Check the store.dsn setting",
					"Verify the database is reachable and migrated",
				},
			},
			ExitCode: ExitStoreError,
		},
	}
}
