package model

import (
	"time"
)

// EventType represents the type of audit event.
type EventType string

const (
	EventTypeTurn      EventType = "turn"
	EventTypeStage     EventType = "stage_changed"
	EventTypeQualified EventType = "qualified"
	EventTypeHandoff   EventType = "handed_off"
	EventTypeArchived  EventType = "archived"
	EventTypeRestart   EventType = "restarted"
)

// TurnEvent is the audit record published for every history entry.
type TurnEvent struct {
	ConversationID string    `json:"conversation_id"`
	TenantID       string    `json:"tenant_id"`
	AgentID        string    `json:"agent_id"`
	Turn           Turn      `json:"turn"`
	Sequence       int       `json:"sequence"`
	CreatedAt      time.Time `json:"created_at"`
}

// ConversationEvent represents a lifecycle event in a conversation.
type ConversationEvent struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	TenantID       string         `json:"tenant_id"`
	Type           EventType      `json:"type"`
	From           Stage          `json:"from"`
	To             Stage          `json:"to"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}
