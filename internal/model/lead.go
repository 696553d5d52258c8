package model

import "time"

// Intent is the classified purpose of a single user message.
type Intent string

const (
	IntentQualification  Intent = "qualification"
	IntentEstimation     Intent = "estimation"
	IntentInformational  Intent = "informational"
	IntentGreeting       Intent = "greeting"
	IntentHandoffRequest Intent = "handoff_request"
)

// Valid reports whether i is a known intent.
func (i Intent) Valid() bool {
	switch i {
	case IntentQualification, IntentEstimation, IntentInformational, IntentGreeting, IntentHandoffRequest:
		return true
	}
	return false
}

// Lead is the finalized record emitted once a conversation qualifies.
type Lead struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	OrganizationID string     `json:"organization_id"`
	AgentID        string     `json:"agent_id"`
	UserID         string     `json:"user_id"`
	Source         string     `json:"source,omitempty"`
	BANT           BANTRecord `json:"bant"`
	Score          float64    `json:"score"`
	Tier           Tier       `json:"tier"`
	Breakdown      Breakdown  `json:"breakdown"`
	QualifiedAt    time.Time  `json:"qualified_at"`
}
