// Package conversation drives the per-conversation qualification flow.
package conversation

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marwie0904/leadify-RE-APP-sub004/internal/bant"
	"github.com/marwie0904/leadify-RE-APP-sub004/internal/intent"
	"github.com/marwie0904/leadify-RE-APP-sub004/internal/knowledge"
	"github.com/marwie0904/leadify-RE-APP-sub004/internal/llm"
	"github.com/marwie0904/leadify-RE-APP-sub004/internal/model"
	"github.com/marwie0904/leadify-RE-APP-sub004/internal/scoring"
	"github.com/marwie0904/leadify-RE-APP-sub004/pkg/logger"
)

// DefaultHistoryWindow is the number of prior turns passed to the model.
const DefaultHistoryWindow = 12

// Classifier routes a message to an intent.
type Classifier interface {
	Classify(ctx context.Context, req intent.Request) (intent.Classification, error)
}

// Extractor pulls BANT facts out of a message.
type Extractor interface {
	Extract(ctx context.Context, req bant.Request) (model.PartialBantUpdate, error)
}

// Invoker makes metered model calls.
type Invoker interface {
	Invoke(ctx context.Context, inv llm.Invocation) (*llm.Result, error)
}

// Outcome is the result of one step. State is a new value; the input state is
// never modified.
type Outcome struct {
	State   *model.ConversationState
	From    model.Stage
	Intent  intent.Classification
	Update  model.PartialBantUpdate
	Changed model.FieldSet
	Score   model.Score
	Reply   string
	// ReplyFailed is set when the canned reply replaced a failed chat_reply.
	ReplyFailed bool
	// Finalized is set on the turn the conversation becomes qualified.
	Finalized *model.Lead
}

// Transitioned reports whether the stage moved.
func (o *Outcome) Transitioned() bool {
	return o.State.Stage != o.From
}

// MachineConfig configures a Machine.
type MachineConfig struct {
	HistoryWindow int
	Now           func() time.Time
}

// Machine runs one turn at a time. It holds no per-conversation state and is
// safe for concurrent use; callers serialize turns of the same conversation.
type Machine struct {
	router    Classifier
	extractor Extractor
	gw        Invoker
	search    knowledge.Searcher
	log       *logger.Logger
	window    int
	now       func() time.Time
}

// NewMachine creates a state machine. search may be nil.
func NewMachine(router Classifier, extractor Extractor, gw Invoker, search knowledge.Searcher, log *logger.Logger, cfg MachineConfig) *Machine {
	if search == nil {
		search = knowledge.NoopSearcher{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = DefaultHistoryWindow
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Machine{
		router:    router,
		extractor: extractor,
		gw:        gw,
		search:    search,
		log:       log,
		window:    cfg.HistoryWindow,
		now:       cfg.Now,
	}
}

// Step processes one inbound message:
//  1. append it to history
//  2. classify the intent
//  3. on qualification, extract and merge BANT facts
//  4. advance to the next unpopulated required field
//  5. rescore, and finalize the lead once every required field is known
//  6. make exactly one chat_reply call, falling back to a canned reply
//
// Router and extractor provider errors abort the step with no state change.
func (m *Machine) Step(ctx context.Context, state *model.ConversationState, message string, cfg *model.ScoringConfig) (*Outcome, error) {
	next := state.Clone()
	from := next.Stage
	asked := askedStage(next, cfg)
	now := m.now()
	scope := llm.Scope{ConversationID: next.ID, AgentID: next.AgentID}
	history := chatHistory(next.Window(m.window))
	log := m.log.WithConversation(next.ID, next.AgentID)

	next.History = append(next.History, model.Turn{
		Role:      model.RoleUser,
		Content:   message,
		Stage:     from,
		CreatedAt: now,
	})
	userTurn := len(next.History) - 1

	cls, err := m.router.Classify(ctx, intent.Request{
		Message: message,
		History: history,
		Stage:   from,
		Scope:   scope,
	})
	if err != nil {
		return nil, err
	}
	next.History[userTurn].Intent = cls.Intent

	out := &Outcome{State: next, From: from, Intent: cls}

	switch {
	case cls.Intent == model.IntentHandoffRequest:
		if !from.IsTerminal() {
			next.Stage = model.StageHandedOff
		}

	case from.IsTerminal():
		m.scanContact(next, message, out)

	case cls.Intent == model.IntentQualification:
		upd, err := m.extractor.Extract(ctx, bant.Request{
			Message:          message,
			History:          history,
			Current:          next.BANT,
			Stage:            asked,
			ContactRequested: next.ContactRequested,
			Currency:         cfg.Currency,
			Scope:            scope,
		})
		if err != nil {
			return nil, err
		}
		out.Update = upd
		next.BANT, out.Changed = bant.Merge(next.BANT, upd)
		m.advance(next, cfg)

	default:
		m.scanContact(next, message, out)
		m.advance(next, cfg)
	}

	if next.Stage == model.StageAwaitingContact {
		next.ContactRequested = true
	}

	next.Score = scoring.Score(next.BANT, cfg)
	out.Score = next.Score

	if next.Stage == model.StageQualified && from != model.StageQualified {
		out.Finalized = newLead(next, cfg, now)
	}
	if out.Transitioned() {
		log.Info("stage advanced",
			zap.String("from", from.String()),
			zap.String("to", next.Stage.String()),
			zap.String("intent", string(cls.Intent)),
		)
	}

	d := buildDirective(replyInput{
		intent:       cls.Intent,
		from:         from,
		stage:        next.Stage,
		ask:          askedStage(next, cfg),
		changed:      out.Changed,
		bant:         next.BANT,
		tier:         next.Score.Tier,
		qualifiedNow: out.Finalized != nil,
		passages:     m.passages(ctx, cls.Intent, message, scope, log),
	})
	res, err := m.gw.Invoke(ctx, llm.Invocation{
		Operation:   model.OpChatReply,
		System:      replySystemPrompt + "\n\nDirective: " + d.text,
		Prompt:      message,
		History:     history,
		Scope:       scope,
		MaxTokens:   300,
		Temperature: 0.4,
	})
	if err != nil || strings.TrimSpace(res.Text) == "" {
		log.Warn("chat reply failed, using canned reply", zap.Error(err))
		out.Reply = d.fallback
		out.ReplyFailed = true
	} else {
		out.Reply = strings.TrimSpace(res.Text)
	}

	next.History = append(next.History, model.Turn{
		Role:      model.RoleAssistant,
		Content:   out.Reply,
		Intent:    cls.Intent,
		Stage:     next.Stage,
		CreatedAt: m.now(),
	})
	next.UpdatedAt = m.now()
	return out, nil
}

// Restart clears the qualification so the questionnaire starts over. History
// is kept.
func Restart(state *model.ConversationState, now time.Time) *model.ConversationState {
	next := state.Clone()
	next.Stage = model.StageGreeting
	next.BANT = model.BANTRecord{}
	next.Score = model.Score{}
	next.ContactRequested = false
	next.UpdatedAt = now
	return next
}

// advance moves to the first unpopulated required field at or after the
// current stage, or to Qualified when every required field is populated. A
// required field behind the current stage, left empty because the agent's
// required set grew mid-conversation, holds the stage where it is.
func (m *Machine) advance(s *model.ConversationState, cfg *model.ScoringConfig) {
	if s.Stage.IsTerminal() {
		return
	}
	required := cfg.RequiredFields()
	start := model.StageAwaitingBudget
	if s.Stage > start {
		start = s.Stage
	}
	for st := start; st <= model.StageAwaitingContact; st++ {
		f, _ := st.Field()
		if required.Has(f) && !s.BANT.Has(f) {
			s.Stage = st
			return
		}
	}
	if _, ok := firstMissing(s.BANT, required); ok {
		return
	}
	s.Stage = model.StageQualified
}

// askedStage is the stage whose question is outstanding: the current stage,
// or the stage of an earlier required field that is still empty.
func askedStage(s *model.ConversationState, cfg *model.ScoringConfig) model.Stage {
	if !s.Stage.IsMidFlow() {
		return s.Stage
	}
	required := cfg.RequiredFields()
	if f, ok := s.Stage.Field(); ok && required.Has(f) && !s.BANT.Has(f) {
		return s.Stage
	}
	if f, ok := firstMissing(s.BANT, required); ok {
		return model.StageFor(f)
	}
	return s.Stage
}

func firstMissing(b model.BANTRecord, required model.FieldSet) (model.Field, bool) {
	for _, f := range required.Fields() {
		if !b.Has(f) {
			return f, true
		}
	}
	return 0, false
}

// scanContact picks contact details out of any message once they have been
// asked for, without spending a model call.
func (m *Machine) scanContact(s *model.ConversationState, message string, out *Outcome) {
	if !s.ContactRequested || s.BANT.Has(model.FieldContact) || s.Stage == model.StageHandedOff {
		return
	}
	c := bant.ExtractContact(message)
	if c.Empty() {
		return
	}
	var upd model.PartialBantUpdate
	if c.Name != "" {
		upd.ContactName = &c.Name
	}
	if c.Phone != "" {
		upd.ContactPhone = &c.Phone
	}
	if c.Email != "" {
		upd.ContactEmail = &c.Email
	}
	var changed model.FieldSet
	s.BANT, changed = bant.Merge(s.BANT, upd)
	out.Update = upd
	out.Changed = out.Changed | changed
}

func (m *Machine) passages(ctx context.Context, in model.Intent, message string, scope llm.Scope, log *logger.Logger) []knowledge.Passage {
	if in != model.IntentInformational {
		return nil
	}
	ps, err := m.search.Search(ctx, message, scope)
	if err != nil {
		log.Warn("knowledge search failed", zap.Error(err))
		return nil
	}
	return ps
}

type replyInput struct {
	intent       model.Intent
	from         model.Stage
	stage        model.Stage
	ask          model.Stage
	changed      model.FieldSet
	bant         model.BANTRecord
	tier         model.Tier
	qualifiedNow bool
	passages     []knowledge.Passage
}

func chatHistory(turns []model.Turn) []llm.ChatMessage {
	out := make([]llm.ChatMessage, 0, len(turns))
	for _, t := range turns {
		out = append(out, llm.ChatMessage{Role: string(t.Role), Content: t.Content})
	}
	return out
}

func newLead(s *model.ConversationState, cfg *model.ScoringConfig, now time.Time) *model.Lead {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return &model.Lead{
		ID:             id.String(),
		ConversationID: s.ID,
		OrganizationID: cfg.OrganizationID,
		AgentID:        s.AgentID,
		UserID:         s.UserID,
		Source:         s.Source,
		BANT:           s.BANT.Clone(),
		Score:          s.Score.Points,
		Tier:           s.Score.Tier,
		Breakdown:      s.Score.Breakdown,
		QualifiedAt:    now,
	}
}
