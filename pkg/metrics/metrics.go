// Package metrics holds the gateway's process-global Prometheus counters
// (spec §4.L, Component L). Registration happens exactly once, explicitly,
// from Services construction rather than lazily on first scrape — the
// idiomatic Go rendering of the spec's "first scrape triggers
// initialization exactly once" requirement.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every counter the gateway emits.
type Metrics struct {
	LLMCallsTotal                *prometheus.CounterVec
	LLMCallsFailuresTotal        prometheus.Counter
	LLMCallsValidationErrorsTotal prometheus.Counter
	LLMTokenSentTotal            *prometheus.CounterVec
	LLMTokenReceivedTotal        *prometheus.CounterVec
}

var (
	initOnce sync.Once
	instance *Metrics
)

// Init registers every counter against reg exactly once and returns the
// shared instance. Subsequent calls (with any registry) return the same
// instance without re-registering.
func Init(reg prometheus.Registerer) *Metrics {
	initOnce.Do(func() {
		instance = &Metrics{
			LLMCallsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "llm_calls_total",
					Help: "Total number of successful upstream turn starts.",
				},
				[]string{"provider", "model"},
			),
			LLMCallsFailuresTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "llm_calls_failures_total",
					Help: "Total number of upstream connection failures.",
				},
			),
			LLMCallsValidationErrorsTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "llm_calls_validation_errors_total",
					Help: "Total number of shield violations observed in turn steps.",
				},
			),
			LLMTokenSentTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "llm_token_sent_total",
					Help: "Total number of input tokens sent to the upstream.",
				},
				[]string{"provider", "model"},
			),
			LLMTokenReceivedTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "llm_token_received_total",
					Help: "Total number of output tokens received from the upstream.",
				},
				[]string{"provider", "model"},
			),
		}
		reg.MustRegister(
			instance.LLMCallsTotal,
			instance.LLMCallsFailuresTotal,
			instance.LLMCallsValidationErrorsTotal,
			instance.LLMTokenSentTotal,
			instance.LLMTokenReceivedTotal,
		)
	})
	return instance
}

// CallStarted records one successful turn start.
func (m *Metrics) CallStarted(provider, model string) {
	m.LLMCallsTotal.WithLabelValues(provider, model).Inc()
}

// CallFailed records one upstream connection failure.
func (m *Metrics) CallFailed() {
	m.LLMCallsFailuresTotal.Inc()
}

// ShieldViolation records one shield violation observed in a turn's steps.
func (m *Metrics) ShieldViolation() {
	m.LLMCallsValidationErrorsTotal.Inc()
}

// TokensUsed records the input/output token counts of a completed turn.
func (m *Metrics) TokensUsed(provider, model string, sent, received int) {
	if sent > 0 {
		m.LLMTokenSentTotal.WithLabelValues(provider, model).Add(float64(sent))
	}
	if received > 0 {
		m.LLMTokenReceivedTotal.WithLabelValues(provider, model).Add(float64(received))
	}
}
