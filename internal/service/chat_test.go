package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marwie0904/leadify-RE-APP-sub004/internal/agentconfig"
	"github.com/marwie0904/leadify-RE-APP-sub004/internal/bant"
	"github.com/marwie0904/leadify-RE-APP-sub004/internal/conversation"
	"github.com/marwie0904/leadify-RE-APP-sub004/internal/intent"
	"github.com/marwie0904/leadify-RE-APP-sub004/internal/ledger"
	"github.com/marwie0904/leadify-RE-APP-sub004/internal/llm"
	"github.com/marwie0904/leadify-RE-APP-sub004/internal/llm/llmtest"
	"github.com/marwie0904/leadify-RE-APP-sub004/internal/model"
	"github.com/marwie0904/leadify-RE-APP-sub004/internal/scoring"
)

const qualification = `{"intent": "qualification", "confidence": 0.9}`

var fixedNow = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

type fakeAudit struct {
	mu     sync.Mutex
	turns  []*model.TurnEvent
	events []*model.ConversationEvent
}

func (a *fakeAudit) PublishTurn(_ context.Context, ev *model.TurnEvent) (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.turns = append(a.turns, ev)
	return uint64(len(a.turns)), nil
}

func (a *fakeAudit) PublishEvent(_ context.Context, ev *model.ConversationEvent) (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, ev)
	return uint64(len(a.events)), nil
}

func (a *fakeAudit) eventTypes() []model.EventType {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []model.EventType
	for _, ev := range a.events {
		out = append(out, ev.Type)
	}
	return out
}

func (a *fakeAudit) TurnLog(_ context.Context, _, conversationID string, after uint64, limit int) ([]model.TurnEvent, uint64, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []model.TurnEvent
	var last uint64
	for i, ev := range a.turns {
		seq := uint64(i + 1)
		if ev.ConversationID != conversationID || seq <= after {
			continue
		}
		if len(out) == limit {
			return out, last, true, nil
		}
		out = append(out, *ev)
		last = seq
	}
	return out, last, false, nil
}

type fakeSink struct {
	mu    sync.Mutex
	leads []*model.Lead
	err   error
}

func (s *fakeSink) PublishLead(_ context.Context, lead *model.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leads = append(s.leads, lead)
	return s.err
}

type harness struct {
	client  *llmtest.Client
	records *ledger.MemoryStore
	store   *conversation.MemoryStore
	audit   *fakeAudit
	sink    *fakeSink
	svc     *ChatService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := scoring.DefaultConfig("agent-1")
	cfg.OrganizationID = "org-1"
	configs, err := agentconfig.NewStatic(cfg)
	require.NoError(t, err)

	client := llmtest.New()
	records := ledger.NewMemoryStore()
	led := ledger.New(records, configs)
	gw := llm.NewGateway(client, led, nil, llm.GatewayConfig{Model: "scripted-1"})
	now := func() time.Time { return fixedNow }
	machine := conversation.NewMachine(intent.NewRouter(gw, nil), bant.NewExtractor(gw, nil), gw, nil, nil,
		conversation.MachineConfig{Now: now})

	h := &harness{
		client:  client,
		records: records,
		store:   conversation.NewMemoryStore(),
		audit:   &fakeAudit{},
		sink:    &fakeSink{},
	}
	h.svc = NewChatService(Deps{
		Store:   h.store,
		Machine: machine,
		Configs: configs,
		Ledger:  led,
		Audit:   h.audit,
		Reader:  h.audit,
		Sinks:   []LeadSink{h.sink},
		Now:     now,
	})
	return h
}

func turn(conversationID, message string) *model.ChatTurnRequest {
	return &model.ChatTurnRequest{
		ConversationID: conversationID,
		AgentID:        "agent-1",
		UserID:         "user-1",
		Message:        message,
		TenantID:       "org-1",
	}
}

func TestHandleTurn_QualifiesLead(t *testing.T) {
	h := newHarness(t)
	h.client.Text(model.OpIntentClassification, qualification)
	h.client.Text(model.OpBANTExtraction,
		`{}`,
		`{"budget": "25M"}`,
		`{"authority": "sole"}`,
		`{"need": "residence"}`,
		`{"timeline": "3 months"}`,
		`{}`)

	ctx := context.Background()
	resp, err := h.svc.HandleTurn(ctx, turn("", "Hi there"))
	require.NoError(t, err)
	require.NotEmpty(t, resp.ConversationID)
	assert.Equal(t, model.StageAwaitingBudget, resp.Stage)
	id := resp.ConversationID

	for _, msg := range []string{"25M", "just me", "to live in", "3 months", "Ana Cruz, 09171234567"} {
		resp, err = h.svc.HandleTurn(ctx, turn(id, msg))
		require.NoError(t, err, msg)
	}
	h.svc.Wait()

	assert.True(t, resp.Qualified)
	assert.Equal(t, model.StageQualified, resp.Stage)
	assert.Equal(t, 100.0, resp.Score)
	assert.Equal(t, model.TierHot, resp.Tier)

	require.Len(t, h.sink.leads, 1)
	assert.Equal(t, id, h.sink.leads[0].ConversationID)
	assert.Equal(t, "Ana Cruz", h.sink.leads[0].BANT.ContactName)

	assert.Len(t, h.audit.turns, 12)
	for i, ev := range h.audit.turns {
		assert.Equal(t, i, ev.Sequence)
	}
	assert.Contains(t, h.audit.eventTypes(), model.EventTypeQualified)

	state, err := h.store.Get(ctx, id)
	require.NoError(t, err)
	assert.Len(t, state.History, 12)

	usage, err := h.svc.Usage(ctx, "org-1", ledger.Filter{ConversationID: id}, ledger.GroupOperation)
	require.NoError(t, err)
	assert.Equal(t, int64(h.records.Len()), usage.Count)
}

func TestHandleTurn_ContinuedTurnAfterQualifiedDoesNotReemit(t *testing.T) {
	h := newHarness(t)
	h.client.Text(model.OpIntentClassification, `{"intent": "informational", "confidence": 0.9}`)

	state := &model.ConversationState{
		ID: "conv-1", TenantID: "org-1", AgentID: "agent-1", UserID: "user-1",
		Stage: model.StageQualified,
	}
	require.NoError(t, h.store.Save(context.Background(), state))

	resp, err := h.svc.HandleTurn(context.Background(), turn("conv-1", "What amenities are there?"))
	require.NoError(t, err)
	h.svc.Wait()

	assert.Equal(t, model.StageQualified, resp.Stage)
	assert.Empty(t, h.sink.leads)
}

func TestHandleTurn_Validation(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.HandleTurn(context.Background(), &model.ChatTurnRequest{TenantID: "org-1", Message: "   "})
	require.ErrorIs(t, err, ErrInvalidRequest)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Problems, 3)
	assert.Zero(t, h.records.Len())
}

func TestHandleTurn_UnknownAgent(t *testing.T) {
	h := newHarness(t)
	req := turn("", "hello")
	req.AgentID = "agent-missing"

	_, err := h.svc.HandleTurn(context.Background(), req)
	require.ErrorIs(t, err, agentconfig.ErrAgentNotFound)
	assert.Zero(t, h.records.Len())
}

func TestHandleTurn_ForeignTenantAndAgent(t *testing.T) {
	h := newHarness(t)
	resp, err := h.svc.HandleTurn(context.Background(), turn("", "hello"))
	require.NoError(t, err)

	req := turn(resp.ConversationID, "hello again")
	req.TenantID = "org-2"
	_, err = h.svc.HandleTurn(context.Background(), req)
	assert.ErrorIs(t, err, ErrConversationNotFound)

	req = turn(resp.ConversationID, "hello again")
	req.AgentID = "agent-2"
	_, err = h.svc.HandleTurn(context.Background(), req)
	assert.ErrorIs(t, err, ErrAgentMismatch)
}

func TestHandleTurn_RestartClearsProgress(t *testing.T) {
	h := newHarness(t)
	h.client.Text(model.OpIntentClassification, qualification)
	h.client.Text(model.OpBANTExtraction, `{"budget": "10M"}`, `{}`)

	ctx := context.Background()
	resp, err := h.svc.HandleTurn(ctx, turn("conv-r", "budget is 10M"))
	require.NoError(t, err)
	require.Equal(t, model.StageAwaitingAuthority, resp.Stage)

	req := turn("conv-r", "let's start over")
	req.Restart = true
	resp, err = h.svc.HandleTurn(ctx, req)
	require.NoError(t, err)

	assert.Nil(t, resp.BANT.Budget)
	assert.Equal(t, model.StageAwaitingBudget, resp.Stage)
	assert.Contains(t, h.audit.eventTypes(), model.EventTypeRestart)
}

func TestArchive(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	resp, err := h.svc.HandleTurn(ctx, turn("", "hello"))
	require.NoError(t, err)
	id := resp.ConversationID

	require.NoError(t, h.svc.Archive(ctx, "org-1", id))
	require.NoError(t, h.svc.Archive(ctx, "org-1", id))
	assert.ErrorIs(t, h.svc.Archive(ctx, "org-2", id), ErrConversationNotFound)

	summary, err := h.svc.Get(ctx, "org-1", id)
	require.NoError(t, err)
	assert.True(t, summary.Archived)
	assert.Equal(t, 2, summary.Turns)

	_, err = h.svc.HandleTurn(ctx, turn(id, "still there?"))
	assert.ErrorIs(t, err, ErrConversationArchived)

	archived := 0
	for _, typ := range h.audit.eventTypes() {
		if typ == model.EventTypeArchived {
			archived++
		}
	}
	assert.Equal(t, 1, archived)
}

type blockingStepper struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingStepper) Step(_ context.Context, state *model.ConversationState, message string, _ *model.ScoringConfig) (*conversation.Outcome, error) {
	close(b.started)
	<-b.release
	next := state.Clone()
	next.History = append(next.History, model.Turn{Role: model.RoleUser, Content: message})
	return &conversation.Outcome{State: next, From: state.Stage, Reply: "ok"}, nil
}

func TestArchive_DiscardsInFlightTurn(t *testing.T) {
	store := conversation.NewMemoryStore()
	configs, err := agentconfig.NewStatic(scoring.DefaultConfig("agent-1"))
	require.NoError(t, err)
	stepper := &blockingStepper{started: make(chan struct{}), release: make(chan struct{})}
	svc := NewChatService(Deps{Store: store, Machine: stepper, Configs: configs})

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, &model.ConversationState{
		ID: "conv-1", TenantID: "org-1", AgentID: "agent-1", Stage: model.StageAwaitingBudget,
	}))

	errc := make(chan error, 1)
	go func() {
		_, err := svc.HandleTurn(ctx, turn("conv-1", "5M"))
		errc <- err
	}()

	<-stepper.started
	require.NoError(t, svc.Archive(ctx, "org-1", "conv-1"))
	close(stepper.release)

	assert.ErrorIs(t, <-errc, ErrConversationArchived)
	state, err := store.Get(ctx, "conv-1")
	require.NoError(t, err)
	assert.True(t, state.Archived)
	assert.Empty(t, state.History)
}

func TestHandleTurn_ConcurrentTurnsOnOneConversation(t *testing.T) {
	const turns = 30
	h := newHarness(t)
	h.client.Text(model.OpIntentClassification, `{"intent": "informational", "confidence": 0.95}`)

	ctx := context.Background()
	resp, err := h.svc.HandleTurn(ctx, turn("", "hello"))
	require.NoError(t, err)
	id := resp.ConversationID

	var wg sync.WaitGroup
	errs := make(chan error, turns)
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.svc.HandleTurn(ctx, turn(id, fmt.Sprintf("Is unit %d still available?", i)))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	h.svc.Wait()

	state, err := h.store.Get(ctx, id)
	require.NoError(t, err)
	require.Len(t, state.History, 2+2*turns)

	asked := map[string]bool{}
	for i, tr := range state.History {
		want := model.RoleUser
		if i%2 == 1 {
			want = model.RoleAssistant
		}
		assert.Equal(t, want, tr.Role, "turn %d", i)
		if i > 0 && tr.Role == model.RoleUser {
			asked[tr.Content] = true
		}
	}
	assert.Len(t, asked, turns)

	h.audit.mu.Lock()
	seqs := map[int]bool{}
	for _, ev := range h.audit.turns {
		seqs[ev.Sequence] = true
	}
	h.audit.mu.Unlock()
	assert.Len(t, seqs, 2+2*turns)
}

func TestGet_NotFound(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Get(context.Background(), "org-1", "nope")
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestTurnLog(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	resp, err := h.svc.HandleTurn(ctx, turn("", "hello"))
	require.NoError(t, err)

	events, last, more, err := h.svc.TurnLog(ctx, "org-1", resp.ConversationID, 0, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.RoleUser, events[0].Turn.Role)
	assert.Equal(t, uint64(1), last)
	assert.True(t, more)

	_, _, _, err = h.svc.TurnLog(ctx, "org-2", resp.ConversationID, 0, 10)
	assert.ErrorIs(t, err, ErrConversationNotFound)

	bare := NewChatService(Deps{Store: h.store})
	_, _, _, err = bare.TurnLog(ctx, "org-1", resp.ConversationID, 0, 10)
	assert.ErrorIs(t, err, ErrAuditUnavailable)
}
