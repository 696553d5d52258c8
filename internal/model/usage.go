package model

import "time"

// OperationType tags what a model invocation was for.
type OperationType string

const (
	OpIntentClassification OperationType = "intent_classification"
	OpBANTExtraction       OperationType = "bant_extraction"
	OpContactExtraction    OperationType = "contact_extraction"
	OpPropertyExtraction   OperationType = "property_extraction"
	OpPaymentExtraction    OperationType = "payment_extraction"
	OpSemanticSearch       OperationType = "semantic_search"
	OpChatReply            OperationType = "chat_reply"
	OpBANTNormalization    OperationType = "bant_normalization"
)

// Usage is the token report for a single model invocation.
type Usage struct {
	InvocationID     string `json:"invocation_id"`
	Model            string `json:"model"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	Estimated        bool   `json:"estimated,omitempty"`
	Failed           bool   `json:"failed,omitempty"`
}

// TokenUsageRecord is one append-only ledger entry.
type TokenUsageRecord struct {
	ID               string        `json:"id"`
	CreatedAt        time.Time     `json:"created_at"`
	OperationType    OperationType `json:"operation_type"`
	Model            string        `json:"model"`
	PromptTokens     int           `json:"prompt_tokens"`
	CompletionTokens int           `json:"completion_tokens"`
	TotalTokens      int           `json:"total_tokens"`
	Estimated        bool          `json:"estimated,omitempty"`
	Failed           bool          `json:"failed,omitempty"`
	ConversationID   string        `json:"conversation_id,omitempty"`
	AgentID          string        `json:"agent_id,omitempty"`
}

// UsageBucket is one group of an aggregation.
type UsageBucket struct {
	Group            string `json:"group"`
	PromptTokens     int64  `json:"prompt_tokens"`
	CompletionTokens int64  `json:"completion_tokens"`
	TotalTokens      int64  `json:"total_tokens"`
	Count            int64  `json:"count"`
}

// UsageResponse is the response for usage analytics queries.
type UsageResponse struct {
	GroupBy     string        `json:"group_by"`
	From        time.Time     `json:"from"`
	To          time.Time     `json:"to"`
	Buckets     []UsageBucket `json:"buckets"`
	TotalTokens int64         `json:"total_tokens"`
	Count       int64         `json:"count"`
}
