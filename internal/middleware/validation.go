package middleware

import (
	"errors"
	"regexp"
)

var idRE = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]{0,127}$`)

// ValidateConversationID validates a conversation ID. Clients may bring their
// own ids, so any short token is accepted, not only uuids.
func ValidateConversationID(id string) error {
	if !idRE.MatchString(id) {
		return errors.New("invalid conversation ID format")
	}
	return nil
}

// ValidateAgentID validates an agent ID.
func ValidateAgentID(id string) error {
	if !idRE.MatchString(id) {
		return errors.New("invalid agent ID format")
	}
	return nil
}

// ValidateTenantID validates a tenant ID.
func ValidateTenantID(id string) error {
	if len(id) == 0 {
		return errors.New("tenant ID cannot be empty")
	}
	if len(id) > 64 {
		return errors.New("tenant ID exceeds maximum length")
	}
	return nil
}
