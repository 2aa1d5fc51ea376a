// Package streaming implements the streaming query handler (spec §4.J,
// Component J): the same per-turn setup as the unary handler, followed by
// an explicit SSE state machine that consumes the upstream's typed event
// stream and emits the gateway's own dialect, per the teacher's
// re-architecture note on tagged-variant dispatch rather than ad-hoc
// branching on string tags.
package streaming

// Kind is the closed set of SSE event kinds the gateway emits (spec §4.J,
// §6 "SSE dialect").
type Kind string

// The SSE event kinds, in the order the state machine guarantees.
const (
	KindStart        Kind = "start"
	KindToken        Kind = "token"
	KindToolCall     Kind = "tool_call"
	KindTurnComplete Kind = "turn_complete"
	KindHeartbeat    Kind = "heartbeat"
	KindError        Kind = "error"
	KindEnd          Kind = "end"
)

// Frame is one `data: <json>\n\n` line. Data.Token carries whatever
// payload the event kind needs (a bare string for token deltas, a
// structured object for tool_call/start/end) per spec §6's
// string-or-object token field.
type Frame struct {
	Event Kind      `json:"event"`
	Data  FrameData `json:"data"`
}

// FrameData is the inner envelope of every frame. Id is assigned by the
// Writer, strictly increasing starting at 0 (spec invariant 4).
type FrameData struct {
	ID    int    `json:"id"`
	Token any    `json:"token"`
	Role  string `json:"role,omitempty"`
}

// startPayload is the Token payload of the start event.
type startPayload struct {
	ConversationID string `json:"conversation_id"`
}

// toolCallArgs is the Token payload of a tool_execution step_complete
// call event.
type toolCallArgs struct {
	ToolName  string `json:"tool_name"`
	Arguments string `json:"arguments"`
}

// toolCallResponse is the Token payload of a tool_execution step_complete
// response event.
type toolCallResponse struct {
	ToolName string `json:"tool_name"`
	Response string `json:"response"`
}

// endPayload is the Token payload of the end event. Token
// counts are placeholders per spec §4.J ("placeholder quota/token
// fields") — the authoritative usage is recorded in the transcript/cache,
// not surfaced over the wire for a stream still in flight.
type endPayload struct {
	ReferencedDocuments []referencedDocumentDTO `json:"referenced_documents"`
	InputTokens         int                     `json:"input_tokens"`
	OutputTokens        int                     `json:"output_tokens"`
	AvailableQuotas     map[string]int          `json:"available_quotas"`
}

type referencedDocumentDTO struct {
	DocURL   string `json:"doc_url"`
	DocTitle string `json:"doc_title"`
}
