// Package service orchestrates chat turns over the qualification engine.
package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marwie0904/leadify-RE-APP-sub004/internal/agentconfig"
	"github.com/marwie0904/leadify-RE-APP-sub004/internal/conversation"
	"github.com/marwie0904/leadify-RE-APP-sub004/internal/ledger"
	"github.com/marwie0904/leadify-RE-APP-sub004/internal/llm"
	"github.com/marwie0904/leadify-RE-APP-sub004/internal/model"
	"github.com/marwie0904/leadify-RE-APP-sub004/pkg/logger"
	"github.com/marwie0904/leadify-RE-APP-sub004/pkg/metrics"
)

// MaxMessageLength caps an inbound message in runes.
const MaxMessageLength = 4000

// Stepper runs one turn of the state machine.
type Stepper interface {
	Step(ctx context.Context, state *model.ConversationState, message string, cfg *model.ScoringConfig) (*conversation.Outcome, error)
}

// LeadSink receives finalized leads (CRM stream, notifications).
type LeadSink interface {
	PublishLead(ctx context.Context, lead *model.Lead) error
}

// AuditLog receives every history entry and lifecycle event.
type AuditLog interface {
	PublishTurn(ctx context.Context, ev *model.TurnEvent) (uint64, error)
	PublishEvent(ctx context.Context, ev *model.ConversationEvent) (uint64, error)
}

// AuditReader replays a conversation's audit log.
type AuditReader interface {
	TurnLog(ctx context.Context, tenantID, conversationID string, afterSequence uint64, limit int) ([]model.TurnEvent, uint64, bool, error)
}

// Deps are the collaborators of a ChatService. Audit, Reader and Sinks are
// optional.
type Deps struct {
	Store   conversation.Store
	Machine Stepper
	Configs agentconfig.Source
	Ledger  *ledger.Ledger
	Audit   AuditLog
	Reader  AuditReader
	Sinks   []LeadSink
	Logger  *logger.Logger
	Now     func() time.Time
}

// ChatService handles chat turns and conversation lifecycle.
type ChatService struct {
	store   conversation.Store
	machine Stepper
	configs agentconfig.Source
	ledger  *ledger.Ledger
	audit   AuditLog
	reader  AuditReader
	sinks   []LeadSink
	logger  *logger.Logger
	now     func() time.Time

	// turns serializes whole turns per conversation; commits guards the
	// final archived check and save, and is shared with Archive.
	turns   *conversation.KeyedMutex
	commits *conversation.KeyedMutex

	background sync.WaitGroup
}

// NewChatService creates a new chat service.
func NewChatService(d Deps) *ChatService {
	if d.Logger == nil {
		d.Logger = logger.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &ChatService{
		store:   d.Store,
		machine: d.Machine,
		configs: d.Configs,
		ledger:  d.Ledger,
		audit:   d.Audit,
		reader:  d.Reader,
		sinks:   d.Sinks,
		logger:  d.Logger,
		now:     d.Now,
		turns:   conversation.NewKeyedMutex(),
		commits: conversation.NewKeyedMutex(),
	}
}

// HandleTurn processes one inbound message end to end. A conversation is
// created when the request carries no id or an unknown one.
func (s *ChatService) HandleTurn(ctx context.Context, req *model.ChatTurnRequest) (*model.ChatTurnResponse, error) {
	if err := validateTurn(req); err != nil {
		return nil, err
	}
	message := strings.TrimSpace(req.Message)

	id := req.ConversationID
	if id == "" {
		id = newID()
	}

	unlock, err := s.turns.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	state, created, err := s.load(ctx, req, id)
	if err != nil {
		return nil, err
	}
	log := s.logger.WithConversation(id, state.AgentID)

	cfg, err := s.configs.ScoringConfig(ctx, state.AgentID)
	if err != nil {
		return nil, err
	}

	var events []*model.ConversationEvent
	if req.Restart && !created {
		events = append(events, s.event(state, model.EventTypeRestart, state.Stage, model.StageGreeting))
		state = conversation.Restart(state, s.now())
		log.Info("conversation restarted")
	}

	out, err := s.machine.Step(ctx, state, message, cfg)
	if err != nil {
		status := "error"
		if llm.IsProviderError(err) {
			status = "provider_error"
		}
		metrics.TurnsTotal.WithLabelValues("unknown", status).Inc()
		log.Warn("turn failed", zap.Error(err))
		return nil, err
	}
	next := out.State

	if err := s.commit(ctx, next); err != nil {
		metrics.TurnsTotal.WithLabelValues(string(out.Intent.Intent), "discarded").Inc()
		return nil, err
	}

	metrics.TurnsTotal.WithLabelValues(string(out.Intent.Intent), "ok").Inc()
	if created {
		metrics.ConversationsTotal.WithLabelValues(next.AgentID).Inc()
	}
	if out.Transitioned() {
		metrics.StageTransitions.WithLabelValues(out.From.String(), next.Stage.String()).Inc()
		events = append(events, s.event(next, model.EventTypeStage, out.From, next.Stage))
		switch next.Stage {
		case model.StageHandedOff:
			events = append(events, s.event(next, model.EventTypeHandoff, out.From, next.Stage))
		case model.StageQualified:
			events = append(events, s.event(next, model.EventTypeQualified, out.From, next.Stage))
		}
	}

	s.publishAudit(ctx, next, len(state.History), events, log)
	if out.Finalized != nil {
		metrics.LeadsQualifiedTotal.WithLabelValues(next.AgentID, string(out.Finalized.Tier)).Inc()
		log.Info("lead qualified",
			zap.String("lead_id", out.Finalized.ID),
			zap.Float64("score", out.Finalized.Score),
			zap.String("tier", string(out.Finalized.Tier)))
		s.emitLead(ctx, out.Finalized, log)
	}

	return &model.ChatTurnResponse{
		ConversationID: next.ID,
		ResponseText:   out.Reply,
		Intent:         out.Intent.Intent,
		Stage:          next.Stage,
		BANT:           next.BANT,
		Score:          next.Score.Points,
		Tier:           next.Score.Tier,
		Breakdown:      next.Score.Breakdown,
		Qualified:      next.Stage == model.StageQualified,
	}, nil
}

// Wait blocks until background lead deliveries finish.
func (s *ChatService) Wait() {
	s.background.Wait()
}

func (s *ChatService) load(ctx context.Context, req *model.ChatTurnRequest, id string) (*model.ConversationState, bool, error) {
	state, err := s.store.Get(ctx, id)
	switch {
	case errors.Is(err, conversation.ErrNotFound):
		now := s.now()
		return &model.ConversationState{
			ID:        id,
			TenantID:  req.TenantID,
			AgentID:   req.AgentID,
			UserID:    req.UserID,
			Source:    req.Source,
			Stage:     model.StageGreeting,
			CreatedAt: now,
			UpdatedAt: now,
		}, true, nil
	case err != nil:
		return nil, false, err
	}

	if state.TenantID != req.TenantID {
		return nil, false, ErrConversationNotFound
	}
	if state.Archived {
		return nil, false, ErrConversationArchived
	}
	if state.AgentID != req.AgentID {
		return nil, false, ErrAgentMismatch
	}
	return state, false, nil
}

// commit saves next unless the conversation was archived while the turn ran.
func (s *ChatService) commit(ctx context.Context, next *model.ConversationState) error {
	unlock, err := s.commits.Lock(context.WithoutCancel(ctx), next.ID)
	if err != nil {
		return err
	}
	defer unlock()

	current, err := s.store.Get(ctx, next.ID)
	switch {
	case errors.Is(err, conversation.ErrNotFound):
	case err != nil:
		return err
	case current.Archived:
		s.logger.WithConversation(next.ID, next.AgentID).Info("conversation archived mid-turn, discarding update")
		return ErrConversationArchived
	}
	return s.store.Save(ctx, next)
}

func (s *ChatService) publishAudit(ctx context.Context, state *model.ConversationState, from int, events []*model.ConversationEvent, log *logger.Logger) {
	if s.audit == nil {
		return
	}
	for i := from; i < len(state.History); i++ {
		ev := &model.TurnEvent{
			ConversationID: state.ID,
			TenantID:       state.TenantID,
			AgentID:        state.AgentID,
			Turn:           state.History[i],
			Sequence:       i,
			CreatedAt:      state.History[i].CreatedAt,
		}
		if _, err := s.audit.PublishTurn(ctx, ev); err != nil {
			log.Error("failed to publish turn", zap.Int("sequence", i), zap.Error(err))
		}
	}
	for _, ev := range events {
		if _, err := s.audit.PublishEvent(ctx, ev); err != nil {
			log.Error("failed to publish event", zap.String("type", string(ev.Type)), zap.Error(err))
		}
	}
}

// emitLead hands the lead to every sink in the background so slow sinks never
// hold up the reply.
func (s *ChatService) emitLead(ctx context.Context, lead *model.Lead, log *logger.Logger) {
	ctx = context.WithoutCancel(ctx)
	for _, sink := range s.sinks {
		s.background.Add(1)
		go func(sink LeadSink) {
			defer s.background.Done()
			if err := sink.PublishLead(ctx, lead); err != nil {
				log.Error("lead delivery failed", zap.String("lead_id", lead.ID), zap.Error(err))
			}
		}(sink)
	}
}

func (s *ChatService) event(state *model.ConversationState, typ model.EventType, from, to model.Stage) *model.ConversationEvent {
	return &model.ConversationEvent{
		ID:             newID(),
		ConversationID: state.ID,
		TenantID:       state.TenantID,
		Type:           typ,
		From:           from,
		To:             to,
		CreatedAt:      s.now(),
	}
}

func validateTurn(req *model.ChatTurnRequest) error {
	var problems []string
	if strings.TrimSpace(req.AgentID) == "" {
		problems = append(problems, "agent_id is required")
	}
	if strings.TrimSpace(req.UserID) == "" {
		problems = append(problems, "user_id is required")
	}
	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		problems = append(problems, "message is required")
	} else if utf8.RuneCountInString(msg) > MaxMessageLength {
		problems = append(problems, "message is too long")
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
