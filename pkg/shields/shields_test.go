package shields

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyPartitionsByPrefix(t *testing.T) {
	input, output := Classify([]string{"inout_pii", "output_toxicity", "input_prompt_injection", "nemo_guard"})

	assert.Contains(t, input, "inout_pii")
	assert.Contains(t, output, "inout_pii")
	assert.Contains(t, output, "output_toxicity")
	assert.NotContains(t, input, "output_toxicity")
	assert.Contains(t, input, "input_prompt_injection")
	assert.Contains(t, input, "nemo_guard")
}

func TestClassifyEveryShieldAppearsInUnion(t *testing.T) {
	ids := []string{"inout_a", "output_b", "c", "d"}
	input, output := Classify(ids)

	union := map[string]bool{}
	for _, id := range input {
		union[id] = true
	}
	for _, id := range output {
		union[id] = true
	}
	for _, id := range ids {
		assert.True(t, union[id], "shield %s missing from input∪output", id)
	}
}

func TestClassifyEmptyReturnsEmptyNotNil(t *testing.T) {
	input, output := Classify(nil)
	assert.Empty(t, input)
	assert.Empty(t, output)
	assert.NotNil(t, input)
	assert.NotNil(t, output)
}
