package models

import "time"

// ReferencedDocument is a citation surfaced by the knowledge-search tool.
type ReferencedDocument struct {
	DocURL   string `json:"doc_url"`
	DocTitle string `json:"doc_title"`
}

// CacheEntry is one persisted turn of a conversation. Entries are never
// mutated after insert; within a conversation they are totally ordered by
// CreatedAt, a monotonic timestamp assigned by the cache backend at
// insert time (not by the caller).
type CacheEntry struct {
	Query               string               `json:"query"`
	Response            string               `json:"response"`
	Provider            string               `json:"provider"`
	Model               string               `json:"model"`
	StartedAt           time.Time            `json:"started_at"`
	CompletedAt         time.Time            `json:"completed_at"`
	CreatedAt           time.Time            `json:"created_at"`
	ReferencedDocuments []ReferencedDocument `json:"referenced_documents,omitempty"`
}

// ConversationData is the list-view projection returned by
// GET /v2/conversations.
type ConversationData struct {
	ConversationID      string `json:"conversation_id"`
	TopicSummary        string `json:"topic_summary,omitempty"`
	LastMessageTimestamp int64  `json:"last_message_timestamp"`
}

// UserConversation is the relational side-table row: the authoritative
// source for ownership checks and "last-used model/provider" hints.
type UserConversation struct {
	ID               string
	UserID           string
	LastUsedModel    string
	LastUsedProvider string
	TopicSummary     string
	LastMessageAt    time.Time
	MessageCount     int
}

// ToolCallSummary records one tool invocation observed during a turn.
type ToolCallSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Args     string `json:"args"`
	Response string `json:"response,omitempty"`
}

// TurnSummary is the in-memory aggregation of a single turn, built up as
// the upstream response (unary or streamed) is consumed.
type TurnSummary struct {
	LLMResponse string
	ToolCalls   []ToolCallSummary
}
