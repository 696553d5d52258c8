package service

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConversationNotFound is returned for unknown or foreign conversations.
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrConversationArchived is returned when a turn targets an archived
	// conversation, including one archived while the turn was running.
	ErrConversationArchived = errors.New("conversation archived")
	// ErrAgentMismatch is returned when a turn names a different agent than
	// the conversation was started with.
	ErrAgentMismatch = errors.New("conversation belongs to another agent")
	// ErrInvalidRequest is matched by every ValidationError.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrAuditUnavailable is returned when no audit log is configured.
	ErrAuditUnavailable = errors.New("audit log unavailable")
)

// ValidationError lists request problems.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %s", strings.Join(e.Problems, "; "))
}

// Is matches ErrInvalidRequest.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidRequest
}
