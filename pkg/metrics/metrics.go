// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// LLMCallDuration tracks model gateway call duration.
	LLMCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_call_duration_seconds",
			Help:    "Model gateway call duration",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 15, 20, 30, 45, 60},
		},
		[]string{"model", "operation", "status"},
	)

	// LLMTokensTotal tracks total LLM tokens processed.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"model", "operation", "direction"},
	)

	// LedgerWritesTotal tracks token ledger writes by outcome.
	LedgerWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_writes_total",
			Help: "Token ledger writes by operation and outcome",
		},
		[]string{"operation", "status"},
	)

	// LedgerWriteFailures tracks ledger writes that must be reconciled.
	LedgerWriteFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_write_failures_total",
			Help: "Token ledger writes that failed and need reconciliation",
		},
		[]string{"operation"},
	)

	// TurnsTotal tracks processed chat turns by classified intent.
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_turns_total",
			Help: "Processed chat turns by intent and outcome",
		},
		[]string{"intent", "status"},
	)

	// StageTransitions tracks questionnaire stage changes.
	StageTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_stage_transitions_total",
			Help: "Conversation stage transitions",
		},
		[]string{"from", "to"},
	)

	// LeadsQualifiedTotal tracks finalized leads by tier.
	LeadsQualifiedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leads_qualified_total",
			Help: "Finalized leads by tier",
		},
		[]string{"agent_id", "tier"},
	)

	// ConversationsTotal tracks total conversations created.
	ConversationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversations_total",
			Help: "Total conversations created",
		},
		[]string{"agent_id"},
	)

	// ConfigRejectedTotal tracks scoring configurations rejected at load time.
	ConfigRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scoring_config_rejected_total",
			Help: "Scoring configurations rejected by validation",
		},
		[]string{"source"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordLLMCall records metrics for a single gateway invocation.
func RecordLLMCall(model, operation, status string, duration float64, tokensIn, tokensOut int) {
	LLMCallDuration.WithLabelValues(model, operation, status).Observe(duration)
	LLMTokensTotal.WithLabelValues(model, operation, "in").Add(float64(tokensIn))
	LLMTokensTotal.WithLabelValues(model, operation, "out").Add(float64(tokensOut))
}

// RecordLedgerWrite records the outcome of a ledger append.
func RecordLedgerWrite(operation string, err error) {
	if err != nil {
		LedgerWritesTotal.WithLabelValues(operation, "error").Inc()
		LedgerWriteFailures.WithLabelValues(operation).Inc()
		return
	}
	LedgerWritesTotal.WithLabelValues(operation, "ok").Inc()
}
