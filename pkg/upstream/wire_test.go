package upstream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeWireChunkTextDelta(t *testing.T) {
	line := []byte(`{"event":{"payload":{"event_type":"step_progress","step_type":"inference","delta":{"type":"text","text":"he"}}}}`)
	chunk, err := decodeWireChunk(line)
	require.NoError(t, err)
	assert.Equal(t, ChunkKindStepProgress, chunk.Kind)
	assert.Equal(t, StepTypeInference, chunk.StepType)
	assert.Equal(t, "he", chunk.TextDelta)
}

func TestDecodeWireChunkToolCallDeltaString(t *testing.T) {
	line := []byte(`{"event":{"payload":{"event_type":"step_progress","step_type":"inference","delta":{"type":"tool_call","tool_call":"partial json"}}}}`)
	chunk, err := decodeWireChunk(line)
	require.NoError(t, err)
	require.NotNil(t, chunk.ToolCallDelta)
	assert.Equal(t, "partial json", chunk.ToolCallDelta.Raw)
}

func TestDecodeWireChunkToolCallDeltaObject(t *testing.T) {
	line := []byte(`{"event":{"payload":{"event_type":"step_progress","step_type":"inference","delta":{"type":"tool_call","tool_call":{"tool_name":"knowledge_search"}}}}}`)
	chunk, err := decodeWireChunk(line)
	require.NoError(t, err)
	require.NotNil(t, chunk.ToolCallDelta)
	assert.Equal(t, "knowledge_search", chunk.ToolCallDelta.Name)
}

func TestDecodeWireChunkShieldViolation(t *testing.T) {
	line := []byte(`{"event":{"payload":{"event_type":"step_complete","step_type":"shield_call","step_details":{"violation":{"user_message":"blocked","violation_type":"hate"}}}}}`)
	chunk, err := decodeWireChunk(line)
	require.NoError(t, err)
	assert.Equal(t, ChunkKindStepComplete, chunk.Kind)
	require.NotNil(t, chunk.ShieldViolation)
	assert.Equal(t, "blocked", chunk.ShieldViolation.Message)
}

func TestDecodeWireChunkShieldNoViolation(t *testing.T) {
	line := []byte(`{"event":{"payload":{"event_type":"step_complete","step_type":"shield_call","step_details":{}}}}`)
	chunk, err := decodeWireChunk(line)
	require.NoError(t, err)
	assert.Nil(t, chunk.ShieldViolation)
}

func TestDecodeWireChunkTurnComplete(t *testing.T) {
	line := []byte(`{"event":{"payload":{"event_type":"turn_complete","turn":{"output_message":{"role":"assistant","content":"hello"}}}}}`)
	chunk, err := decodeWireChunk(line)
	require.NoError(t, err)
	assert.Equal(t, ChunkKindTurnComplete, chunk.Kind)
	require.NotNil(t, chunk.TurnComplete)
	assert.Equal(t, "hello", chunk.TurnComplete.Content)
}

func TestDecodeWireChunkToolExecutionComplete(t *testing.T) {
	line := []byte(`{"event":{"payload":{"event_type":"step_complete","step_type":"tool_execution","step_details":{"tool_calls":[{"call_id":"1","tool_name":"knowledge_search","arguments":"{}"}],"tool_responses":[{"call_id":"1","tool_name":"knowledge_search","content":["result text"]}]}}}}`)
	chunk, err := decodeWireChunk(line)
	require.NoError(t, err)
	require.Len(t, chunk.ToolCalls, 1)
	require.Len(t, chunk.ToolResponses, 1)
	assert.Equal(t, "knowledge_search", chunk.ToolResponses[0].ToolName)
}
