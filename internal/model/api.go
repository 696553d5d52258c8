package model

// ChatTurnRequest is the body of POST /api/v1/chat-turn.
type ChatTurnRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	AgentID        string `json:"agent_id"`
	UserID         string `json:"user_id"`
	Message        string `json:"message"`
	Source         string `json:"source,omitempty"`
	Restart        bool   `json:"restart,omitempty"`

	// TenantID is set from the authenticated principal, never from the body.
	TenantID string `json:"-"`
}

// ChatTurnResponse is returned for every processed turn.
type ChatTurnResponse struct {
	ConversationID string     `json:"conversation_id"`
	ResponseText   string     `json:"response_text"`
	Intent         Intent     `json:"intent"`
	Stage          Stage      `json:"stage"`
	BANT           BANTRecord `json:"bant"`
	Score          float64    `json:"score"`
	Tier           Tier       `json:"tier"`
	Breakdown      Breakdown  `json:"breakdown"`
	Qualified      bool       `json:"qualified"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}
