package upstream

// StreamChunk is one parsed line of the upstream's typed turn-event
// stream. It is a flattened, tagged-variant view (per the teacher's
// "dynamic dispatch via string tags" re-architecture note): Kind and
// StepType are the discriminants; only the fields relevant to that
// combination are populated. pkg/streaming switches on these to build
// the gateway's own SSE dialect.
type StreamChunk struct {
	Kind     ChunkKind
	StepType StepType // only set when Kind is one of the Step* kinds

	// ChunkKindTurnComplete
	TurnComplete *Message

	// ChunkKindStepProgress, StepTypeInference: text delta XOR tool-call delta
	TextDelta     string
	ToolCallDelta *ToolCallDelta

	// ChunkKindStepComplete, StepTypeShieldCall
	ShieldViolation *ShieldViolation

	// ChunkKindStepComplete, StepTypeToolExecution
	ToolCalls     []ToolCallInfo
	ToolResponses []ToolResponseInfo

	// ChunkKindError
	Err error
}

// ChunkKind discriminates the upstream event stream per spec §4.J's table.
type ChunkKind string

const (
	ChunkKindTurnStart          ChunkKind = "turn_start"
	ChunkKindTurnAwaitingInput  ChunkKind = "turn_awaiting_input"
	ChunkKindTurnComplete       ChunkKind = "turn_complete"
	ChunkKindStepStart          ChunkKind = "step_start"
	ChunkKindStepProgress       ChunkKind = "step_progress"
	ChunkKindStepComplete       ChunkKind = "step_complete"
	ChunkKindError              ChunkKind = "error"
	ChunkKindUnknown            ChunkKind = "unknown"
)

// StepType discriminates which kind of turn step a Step* chunk belongs to.
type StepType string

const (
	StepTypeInference     StepType = "inference"
	StepTypeToolExecution StepType = "tool_execution"
	StepTypeShieldCall    StepType = "shield_call"
)

// ToolCallDelta is an incremental tool-call fragment emitted during
// inference step_progress. Exactly one of Raw/Name is set, mirroring the
// upstream's string-or-object delta shape (spec §4.J).
type ToolCallDelta struct {
	Raw  string // set when the upstream sent a bare string delta
	Name string // set when the upstream sent an object delta
}
