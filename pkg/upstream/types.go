// Package upstream defines the minimal DTO layer this gateway needs from
// the upstream agent/inference service, and a plain net/http client
// implementing it. Per the teacher's own re-architecture note on
// "duck-typed upstream objects", only the fields the gateway actually
// consumes are modeled here; everything else in the upstream's wire
// format is ignored by the JSON decoder rather than round-tripped.
package upstream

// Model describes one model the upstream exposes via models.list.
type Model struct {
	Identifier string `json:"identifier"`
	ProviderID string `json:"provider_id"`
	ModelType  string `json:"model_type"` // "llm" for inference-capable models
}

// IsLLM reports whether this model can serve inference turns.
func (m Model) IsLLM() bool { return m.ModelType == "llm" }

// Shield describes one safety shield exposed via shields.list.
type Shield struct {
	Identifier string `json:"identifier"`
}

// VectorDB describes one registered vector database.
type VectorDB struct {
	Identifier string `json:"identifier"`
}

// Provider describes one backing inference/storage provider.
type Provider struct {
	ProviderID   string `json:"provider_id"`
	ProviderType string `json:"provider_type"`
}

// Toolgroup is one entry of the toolgroups argument to a turn: either the
// built-in RAG knowledge-search toolgroup (with args) or a bare MCP
// toolgroup name.
type Toolgroup struct {
	Name string         `json:"toolgroup_id"`
	Args map[string]any `json:"args,omitempty"`
}

// RAGToolgroupName is the built-in toolgroup identifier for knowledge_search.
const RAGToolgroupName = "builtin::rag/knowledge_search"

// KnowledgeSearchToolName is the tool invoked by the RAG toolgroup, used to
// recognize which tool_execution step to harvest referenced documents from.
const KnowledgeSearchToolName = "knowledge_search"

// Agent is an upstream-side stateful conversational actor.
type Agent struct {
	AgentID string `json:"agent_id"`
}

// AgentCreateParams describes the instructions given to a new agent.
type AgentCreateParams struct {
	Model           string
	Instructions    string
	InputShields    []string
	OutputShields   []string
	ToolParser      string // "" for default, "granite" for the granite-family parser
	NoTools         bool
	ExtraHeaders    map[string]string
}

// Session is a turn container within an agent.
type Session struct {
	SessionID string `json:"session_id"`
}

// Message is one role/content pair in a turn's conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Document is an inline document attached to a turn (from Attachment).
type Document struct {
	Content     string `json:"content"`
	ContentType string `json:"mime_type"`
}

// CreateTurnParams is the input to CreateTurn/CreateTurnStreaming.
type CreateTurnParams struct {
	AgentID      string
	SessionID    string
	Messages     []Message
	Documents    []Document
	Toolgroups   []Toolgroup       // nil is distinct from empty: nil disables tool use entirely
	ExtraHeaders map[string]string // carries X-LlamaStack-Provider-Data, resolved by pkg/toolcomposer
}

// Usage reports token consumption for a completed turn.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// TurnResult is the outcome of a non-streaming CreateTurn call.
type TurnResult struct {
	OutputMessage Message      `json:"output_message"`
	Steps         []StepResult `json:"steps"`
	Usage         Usage        `json:"usage"`
}

// StepResult is one step (inference/tool_execution/shield_call) the
// upstream ran as part of a turn, in the shape the unary handler and the
// referenced-document parser need.
type StepResult struct {
	StepType        string             `json:"step_type"` // "inference" | "tool_execution" | "shield_call"
	ToolCalls       []ToolCallInfo     `json:"tool_calls,omitempty"`
	ToolResponses   []ToolResponseInfo `json:"tool_responses,omitempty"`
	ShieldViolation *ShieldViolation   `json:"violation,omitempty"`
}

// ToolCallInfo is one tool invocation the model requested.
type ToolCallInfo struct {
	CallID    string `json:"call_id"`
	ToolName  string `json:"tool_name"`
	Arguments string `json:"arguments"`
}

// ToolResponseInfo is the result of executing one tool call. Content holds
// the raw text content items the tool returned (e.g. knowledge_search's
// "Metadata: {...}" blocks), each scanned by pkg/docs.
type ToolResponseInfo struct {
	CallID   string   `json:"call_id"`
	ToolName string   `json:"tool_name"`
	Content  []string `json:"content"`
}

// ShieldViolation describes a safety shield rejection.
type ShieldViolation struct {
	Message       string `json:"user_message"`
	ViolationType string `json:"violation_type"`
}

// VersionInfo is the result of InspectVersion.
type VersionInfo struct {
	Version string `json:"version"`
}
