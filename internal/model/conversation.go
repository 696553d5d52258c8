// Package model defines data structures for the lead qualification engine.
package model

import (
	"fmt"
	"time"
)

// Stage is the questionnaire position of a conversation. Stages are ordered;
// a conversation only moves forward except on explicit restart.
type Stage int

const (
	StageGreeting Stage = iota
	StageAwaitingBudget
	StageAwaitingAuthority
	StageAwaitingNeed
	StageAwaitingTimeline
	StageAwaitingContact
	StageQualified
	StageHandedOff
)

var stageNames = [...]string{
	StageGreeting:          "greeting",
	StageAwaitingBudget:    "awaiting_budget",
	StageAwaitingAuthority: "awaiting_authority",
	StageAwaitingNeed:      "awaiting_need",
	StageAwaitingTimeline:  "awaiting_timeline",
	StageAwaitingContact:   "awaiting_contact",
	StageQualified:         "qualified",
	StageHandedOff:         "handed_off",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// MarshalText implements encoding.TextMarshaler.
func (s Stage) MarshalText() ([]byte, error) {
	if s < 0 || int(s) >= len(stageNames) {
		return nil, fmt.Errorf("unknown stage %d", int(s))
	}
	return []byte(stageNames[s]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Stage) UnmarshalText(b []byte) error {
	for i, name := range stageNames {
		if name == string(b) {
			*s = Stage(i)
			return nil
		}
	}
	return fmt.Errorf("unknown stage %q", string(b))
}

// IsTerminal reports whether the questionnaire has ended.
func (s Stage) IsTerminal() bool {
	return s == StageQualified || s == StageHandedOff
}

// IsMidFlow reports whether the conversation is waiting on a BANT answer.
func (s Stage) IsMidFlow() bool {
	return s >= StageAwaitingBudget && s <= StageAwaitingContact
}

// Field returns the BANT field the stage is waiting for.
func (s Stage) Field() (Field, bool) {
	if !s.IsMidFlow() {
		return 0, false
	}
	return Field(s - StageAwaitingBudget), true
}

// StageFor returns the stage that waits for a field.
func StageFor(f Field) Stage {
	return StageAwaitingBudget + Stage(f)
}

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Turn is one entry in a conversation's append-only history.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Intent    Intent    `json:"intent,omitempty"`
	Stage     Stage     `json:"stage"`
	CreatedAt time.Time `json:"created_at"`
}

// ConversationState is the per-conversation qualification progress.
type ConversationState struct {
	ID               string     `json:"id"`
	TenantID         string     `json:"tenant_id"`
	AgentID          string     `json:"agent_id"`
	UserID           string     `json:"user_id"`
	Source           string     `json:"source,omitempty"`
	Stage            Stage      `json:"stage"`
	BANT             BANTRecord `json:"bant"`
	ContactRequested bool       `json:"contact_requested,omitempty"`
	Score            Score      `json:"score"`
	History          []Turn     `json:"history"`
	Archived         bool       `json:"archived,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Clone returns a deep copy safe to mutate without touching the original.
func (c *ConversationState) Clone() *ConversationState {
	out := *c
	out.BANT = c.BANT.Clone()
	out.History = make([]Turn, len(c.History), len(c.History)+2)
	copy(out.History, c.History)
	return &out
}

// Window returns the last n turns of history.
func (c *ConversationState) Window(n int) []Turn {
	if n <= 0 || len(c.History) <= n {
		return c.History
	}
	return c.History[len(c.History)-n:]
}

// ConversationSummary is the read view returned by the conversation API.
type ConversationSummary struct {
	ID        string     `json:"id"`
	AgentID   string     `json:"agent_id"`
	UserID    string     `json:"user_id"`
	Stage     Stage      `json:"stage"`
	BANT      BANTRecord `json:"bant"`
	Score     Score      `json:"score"`
	Turns     int        `json:"turns"`
	Archived  bool       `json:"archived,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Summary builds the API view of a state.
func (c *ConversationState) Summary() ConversationSummary {
	return ConversationSummary{
		ID:        c.ID,
		AgentID:   c.AgentID,
		UserID:    c.UserID,
		Stage:     c.Stage,
		BANT:      c.BANT,
		Score:     c.Score,
		Turns:     len(c.History),
		Archived:  c.Archived,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}
