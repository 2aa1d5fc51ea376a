package metrics

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Collector, labels map[string]string) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 16)
	c.Collect(ch)
	close(ch)
	for m := range ch {
		var pb dto.Metric
		require.NoError(t, m.Write(&pb))
		if !labelsMatch(pb.GetLabel(), labels) {
			continue
		}
		return pb.GetCounter().GetValue()
	}
	t.Fatalf("no metric matched labels %v", labels)
	return 0
}

func labelsMatch(pairs []*dto.LabelPair, want map[string]string) bool {
	if len(want) == 0 {
		return true
	}
	got := make(map[string]string, len(pairs))
	for _, p := range pairs {
		got[p.GetName()] = p.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

func TestInitRegistersExactlyOnce(t *testing.T) {
	reg1 := prometheus.NewRegistry()
	m1 := Init(reg1)

	reg2 := prometheus.NewRegistry()
	m2 := Init(reg2)

	require.Same(t, m1, m2)
}

func TestCallStartedIncrementsLabeledCounter(t *testing.T) {
	resetForTest()
	reg := prometheus.NewRegistry()
	m := Init(reg)

	m.CallStarted("vllm", "granite-3.0")
	require.Equal(t, float64(1), counterValue(t, m.LLMCallsTotal, map[string]string{"provider": "vllm", "model": "granite-3.0"}))
}

func TestTokensUsedSkipsZeroValues(t *testing.T) {
	resetForTest()
	reg := prometheus.NewRegistry()
	m := Init(reg)

	m.TokensUsed("vllm", "granite-3.0", 10, 0)
	require.Equal(t, float64(10), counterValue(t, m.LLMTokenSentTotal, map[string]string{"provider": "vllm", "model": "granite-3.0"}))
}

func TestShieldViolationIncrementsCounter(t *testing.T) {
	resetForTest()
	reg := prometheus.NewRegistry()
	m := Init(reg)

	m.ShieldViolation()
	require.Equal(t, float64(1), counterValue(t, m.LLMCallsValidationErrorsTotal, nil))
}

// resetForTest clears the package-level singleton so each test observes a
// fresh registration; production code never needs this since Init is
// called exactly once from Services construction.
func resetForTest() {
	initOnce = sync.Once{}
	instance = nil
}
