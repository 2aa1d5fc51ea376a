package upstream

import "encoding/json"

// wireEvent is the raw shape of one line of the upstream's NDJSON turn
// stream: an envelope around a typed payload, discriminated by
// payload.event_type and (for step events) payload.step_type.
type wireEvent struct {
	Event struct {
		Payload wirePayload `json:"payload"`
	} `json:"event"`
}

type wirePayload struct {
	EventType string `json:"event_type"`
	StepType  string `json:"step_type"`

	Delta *wireDelta `json:"delta,omitempty"`

	StepDetails *struct {
		Violation     *ShieldViolation   `json:"violation,omitempty"`
		ToolCalls     []ToolCallInfo     `json:"tool_calls,omitempty"`
		ToolResponses []ToolResponseInfo `json:"tool_responses,omitempty"`
	} `json:"step_details,omitempty"`

	Turn *struct {
		OutputMessage Message `json:"output_message"`
	} `json:"turn,omitempty"`
}

// wireDelta is the inference step_progress delta: either a text delta or
// a tool-call delta that is itself either a bare string or an object
// carrying a tool name (spec §4.J: "tool_call delta (string)" vs
// "tool_call delta (object)").
type wireDelta struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ToolCall json.RawMessage `json:"tool_call,omitempty"`
}

func decodeWireChunk(line []byte) (StreamChunk, error) {
	var ev wireEvent
	if err := json.Unmarshal(line, &ev); err != nil {
		return StreamChunk{}, err
	}
	p := ev.Event.Payload

	chunk := StreamChunk{StepType: StepType(p.StepType)}

	switch p.EventType {
	case "turn_start":
		chunk.Kind = ChunkKindTurnStart
	case "turn_awaiting_input":
		chunk.Kind = ChunkKindTurnAwaitingInput
	case "turn_complete":
		chunk.Kind = ChunkKindTurnComplete
		if p.Turn != nil {
			msg := p.Turn.OutputMessage
			chunk.TurnComplete = &msg
		}
	case "step_start":
		chunk.Kind = ChunkKindStepStart
	case "step_progress":
		chunk.Kind = ChunkKindStepProgress
		if p.Delta != nil {
			switch p.Delta.Type {
			case "text":
				chunk.TextDelta = p.Delta.Text
			case "tool_call":
				chunk.ToolCallDelta = decodeToolCallDelta(p.Delta.ToolCall)
			}
		}
	case "step_complete":
		chunk.Kind = ChunkKindStepComplete
		if p.StepDetails != nil {
			chunk.ShieldViolation = p.StepDetails.Violation
			chunk.ToolCalls = p.StepDetails.ToolCalls
			chunk.ToolResponses = p.StepDetails.ToolResponses
		}
	default:
		chunk.Kind = ChunkKindUnknown
	}

	return chunk, nil
}

// decodeToolCallDelta distinguishes the upstream's string-vs-object
// tool_call delta shape: a bare JSON string yields Raw, an object yields
// Name extracted from its "tool_name" field.
func decodeToolCallDelta(raw json.RawMessage) *ToolCallDelta {
	if len(raw) == 0 {
		return nil
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return &ToolCallDelta{Raw: asString}
	}
	var asObject struct {
		ToolName string `json:"tool_name"`
	}
	if err := json.Unmarshal(raw, &asObject); err == nil {
		return &ToolCallDelta{Name: asObject.ToolName}
	}
	return nil
}
