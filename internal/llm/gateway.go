package llm

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/marwie0904/leadify-RE-APP-sub004/internal/model"
	"github.com/marwie0904/leadify-RE-APP-sub004/pkg/logger"
	"github.com/marwie0904/leadify-RE-APP-sub004/pkg/metrics"
)

// ErrNoEmbedder is returned by Embed when no embedding provider is configured.
var ErrNoEmbedder = errors.New("no embedding provider configured")

// Recorder persists one usage record per invocation.
type Recorder interface {
	Record(ctx context.Context, usage model.Usage, op model.OperationType, conversationID, agentID string) (string, error)
}

// Scope ties an invocation to a conversation and agent. Both may be empty for
// system-level calls.
type Scope struct {
	ConversationID string
	AgentID        string
}

// Invocation is one metered model call.
type Invocation struct {
	Operation   model.OperationType
	System      string
	Prompt      string
	History     []ChatMessage
	Scope       Scope
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// Result is a successful invocation.
type Result struct {
	Text     string
	Usage    model.Usage
	RecordID string
}

// GatewayConfig configures a Gateway.
type GatewayConfig struct {
	Model          string
	EmbeddingModel string
	Timeout        time.Duration

	// BreakerFailures consecutive failures open the circuit for BreakerCooldown.
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// Gateway wraps a provider client. Every call it makes, successful or not,
// produces exactly one ledger record. It never retries.
type Gateway struct {
	client   Client
	embedder Embedder
	recorder Recorder
	breaker  *gobreaker.CircuitBreaker
	log      *logger.Logger
	tracer   trace.Tracer

	model          string
	embeddingModel string
	timeout        time.Duration
	newID          func() string
}

// NewGateway creates a gateway over client that records usage to recorder.
func NewGateway(client Client, recorder Recorder, log *logger.Logger, cfg GatewayConfig) *Gateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}
	if log == nil {
		log = logger.NewNop()
	}

	failures := cfg.BreakerFailures
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    client.Name(),
		Timeout: cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// Rejected requests say nothing about provider health.
			return classify(err) == KindBadRequest
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("provider circuit state changed",
				zap.String("provider", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	g := &Gateway{
		client:         client,
		recorder:       recorder,
		breaker:        breaker,
		log:            log,
		tracer:         otel.Tracer("github.com/marwie0904/leadify-RE-APP-sub004/internal/llm"),
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
		timeout:        cfg.Timeout,
		newID:          newInvocationID,
	}
	if e, ok := client.(Embedder); ok {
		g.embedder = e
	}
	return g
}

// WithEmbedder overrides the embedding provider.
func (g *Gateway) WithEmbedder(e Embedder) *Gateway {
	g.embedder = e
	return g
}

// Provider returns the completion provider name.
func (g *Gateway) Provider() string {
	return g.client.Name()
}

// Invoke runs one completion and records its usage.
func (g *Gateway) Invoke(ctx context.Context, inv Invocation) (*Result, error) {
	if inv.Operation == "" {
		return nil, errors.New("invocation operation is required")
	}
	modelName := inv.Model
	if modelName == "" {
		modelName = g.model
	}
	timeout := inv.Timeout
	if timeout <= 0 {
		timeout = g.timeout
	}

	ctx, span := g.tracer.Start(ctx, "llm."+string(inv.Operation), trace.WithAttributes(
		attribute.String("llm.provider", g.client.Name()),
		attribute.String("llm.operation", string(inv.Operation)),
		attribute.String("conversation.id", inv.Scope.ConversationID),
	))
	defer span.End()

	messages := make([]ChatMessage, 0, len(inv.History)+1)
	messages = append(messages, inv.History...)
	messages = append(messages, ChatMessage{Role: string(model.RoleUser), Content: inv.Prompt})
	req := &CompletionRequest{
		Model:       modelName,
		System:      inv.System,
		Messages:    messages,
		MaxTokens:   inv.MaxTokens,
		Temperature: inv.Temperature,
	}

	callCtx, cancel := context.WithTimeout(WithOperation(ctx, inv.Operation), timeout)
	defer cancel()

	start := time.Now()
	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.client.Complete(callCtx, req)
	})
	elapsed := time.Since(start).Seconds()

	usage := model.Usage{InvocationID: g.newID(), Model: modelName}
	if usage.Model == "" {
		usage.Model = g.client.Name()
	}
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			err = errors.Join(context.DeadlineExceeded, err)
		}
		pe := newProviderError(g.client.Name(), inv.Operation, err)

		usage.PromptTokens = EstimateTokens(promptText(req))
		usage.TotalTokens = usage.PromptTokens
		usage.Estimated = true
		usage.Failed = true
		g.record(ctx, usage, inv.Operation, inv.Scope)

		metrics.RecordLLMCall(modelName, string(inv.Operation), string(pe.Kind), elapsed, usage.PromptTokens, 0)
		span.RecordError(pe)
		span.SetStatus(codes.Error, string(pe.Kind))
		return nil, pe
	}

	resp := out.(*CompletionResponse)
	if resp.Model != "" {
		usage.Model = resp.Model
	}
	if resp.UsageReported {
		usage.PromptTokens = resp.TokensIn
		usage.CompletionTokens = resp.TokensOut
	} else {
		usage.PromptTokens = EstimateTokens(promptText(req))
		usage.CompletionTokens = EstimateTokens(resp.Content)
		usage.Estimated = true
	}
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens

	recordID := g.record(ctx, usage, inv.Operation, inv.Scope)

	metrics.RecordLLMCall(usage.Model, string(inv.Operation), "ok", elapsed, usage.PromptTokens, usage.CompletionTokens)
	span.SetAttributes(
		attribute.String("llm.model", usage.Model),
		attribute.Int("llm.tokens.total", usage.TotalTokens),
		attribute.Bool("llm.tokens.estimated", usage.Estimated),
	)

	return &Result{Text: resp.Content, Usage: usage, RecordID: recordID}, nil
}

// Embed returns the embedding of text and records its usage.
func (g *Gateway) Embed(ctx context.Context, op model.OperationType, text string, scope Scope) ([]float32, *model.Usage, error) {
	if g.embedder == nil {
		return nil, nil, ErrNoEmbedder
	}
	provider := g.client.Name()
	if n, ok := g.embedder.(interface{ Name() string }); ok {
		provider = n.Name()
	}

	ctx, span := g.tracer.Start(ctx, "llm."+string(op), trace.WithAttributes(
		attribute.String("llm.provider", provider),
		attribute.String("llm.operation", string(op)),
	))
	defer span.End()

	callCtx, cancel := context.WithTimeout(WithOperation(ctx, op), g.timeout)
	defer cancel()

	start := time.Now()
	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.embedder.Embed(callCtx, g.embeddingModel, text)
	})
	elapsed := time.Since(start).Seconds()

	usage := model.Usage{
		InvocationID: g.newID(),
		Model:        g.embeddingModel,
	}
	if usage.Model == "" {
		usage.Model = defaultEmbeddingModel
	}
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			err = errors.Join(context.DeadlineExceeded, err)
		}
		pe := newProviderError(provider, op, err)
		usage.PromptTokens = EstimateTokens(text)
		usage.TotalTokens = usage.PromptTokens
		usage.Estimated = true
		usage.Failed = true
		g.record(ctx, usage, op, scope)
		metrics.RecordLLMCall(usage.Model, string(op), string(pe.Kind), elapsed, usage.PromptTokens, 0)
		span.RecordError(pe)
		span.SetStatus(codes.Error, string(pe.Kind))
		return nil, nil, pe
	}

	resp := out.(*EmbeddingResponse)
	if resp.Model != "" {
		usage.Model = resp.Model
	}
	if resp.UsageReported {
		usage.PromptTokens = resp.TokensIn
	} else {
		usage.PromptTokens = EstimateTokens(text)
		usage.Estimated = true
	}
	usage.TotalTokens = usage.PromptTokens
	g.record(ctx, usage, op, scope)
	metrics.RecordLLMCall(usage.Model, string(op), "ok", elapsed, usage.PromptTokens, 0)

	return resp.Vector, &usage, nil
}

// record writes the ledger entry. Failures are logged for reconciliation and
// never fail the call. The write survives caller cancellation.
func (g *Gateway) record(ctx context.Context, usage model.Usage, op model.OperationType, scope Scope) string {
	if g.recorder == nil {
		return ""
	}
	id, err := g.recorder.Record(context.WithoutCancel(ctx), usage, op, scope.ConversationID, scope.AgentID)
	metrics.RecordLedgerWrite(string(op), err)
	if err != nil {
		g.log.Error("ledger write failed",
			zap.Error(err),
			zap.String("invocation_id", usage.InvocationID),
			zap.String("operation", string(op)),
			zap.String("model", usage.Model),
			zap.Int("total_tokens", usage.TotalTokens),
			zap.String("conversation_id", scope.ConversationID),
			zap.String("agent_id", scope.AgentID),
		)
		return ""
	}
	return id
}

type operationKey struct{}

// WithOperation tags ctx with the operation being invoked.
func WithOperation(ctx context.Context, op model.OperationType) context.Context {
	return context.WithValue(ctx, operationKey{}, op)
}

// OperationFromContext returns the operation set by WithOperation.
func OperationFromContext(ctx context.Context) model.OperationType {
	op, _ := ctx.Value(operationKey{}).(model.OperationType)
	return op
}

// EstimateTokens approximates a token count as ceil(runes/4).
func EstimateTokens(s string) int {
	n := utf8.RuneCountInString(s)
	return (n + 3) / 4
}

func promptText(req *CompletionRequest) string {
	var b strings.Builder
	b.WriteString(req.System)
	for _, m := range req.Messages {
		b.WriteString(m.Content)
	}
	return b.String()
}

func newInvocationID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
