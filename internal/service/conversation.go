package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/marwie0904/leadify-RE-APP-sub004/internal/conversation"
	"github.com/marwie0904/leadify-RE-APP-sub004/internal/model"
)

// Get returns the read view of a conversation.
func (s *ChatService) Get(ctx context.Context, tenantID, conversationID string) (*model.ConversationSummary, error) {
	state, err := s.lookup(ctx, tenantID, conversationID)
	if err != nil {
		return nil, err
	}
	summary := state.Summary()
	return &summary, nil
}

// Archive closes a conversation. A turn still running for it is discarded at
// commit. Archiving twice is a no-op.
func (s *ChatService) Archive(ctx context.Context, tenantID, conversationID string) error {
	unlock, err := s.commits.Lock(ctx, conversationID)
	if err != nil {
		return err
	}
	defer unlock()

	state, err := s.lookup(ctx, tenantID, conversationID)
	if err != nil {
		return err
	}
	if state.Archived {
		return nil
	}

	state.Archived = true
	state.UpdatedAt = s.now()
	if err := s.store.Save(ctx, state); err != nil {
		return err
	}

	s.logger.WithConversation(state.ID, state.AgentID).Info("conversation archived")
	if s.audit != nil {
		if _, err := s.audit.PublishEvent(ctx, s.event(state, model.EventTypeArchived, state.Stage, state.Stage)); err != nil {
			s.logger.Error("failed to publish event", zap.String("conversation_id", state.ID), zap.Error(err))
		}
	}
	return nil
}

// TurnLog replays the conversation's audit log.
func (s *ChatService) TurnLog(ctx context.Context, tenantID, conversationID string, afterSequence uint64, limit int) ([]model.TurnEvent, uint64, bool, error) {
	if s.reader == nil {
		return nil, 0, false, ErrAuditUnavailable
	}
	if _, err := s.lookup(ctx, tenantID, conversationID); err != nil {
		return nil, 0, false, err
	}
	return s.reader.TurnLog(ctx, tenantID, conversationID, afterSequence, limit)
}

func (s *ChatService) lookup(ctx context.Context, tenantID, conversationID string) (*model.ConversationState, error) {
	state, err := s.store.Get(ctx, conversationID)
	if errors.Is(err, conversation.ErrNotFound) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}
	if state.TenantID != tenantID {
		return nil, ErrConversationNotFound
	}
	return state, nil
}
