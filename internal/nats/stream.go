package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/marwie0904/leadify-RE-APP-sub004/internal/model"
	"github.com/marwie0904/leadify-RE-APP-sub004/pkg/logger"
)

const (
	// ConversationStream holds every turn and lifecycle event.
	ConversationStream = "CONVERSATIONS"
	// LeadStream holds finalized leads for CRM consumers.
	LeadStream = "LEADS"

	// SubjectPrefix is the prefix for all conversation subjects.
	SubjectPrefix = "conv"
	// LeadPrefix is the prefix for lead subjects.
	LeadPrefix = "lead"

	// leadPublishTimeout bounds all retries of one lead publish.
	leadPublishTimeout = 30 * time.Second
)

// StreamManager handles JetStream stream operations.
type StreamManager struct {
	js  jetstream.JetStream
	log *logger.Logger
	// retry is the backoff used for lead publishing.
	retry func() backoff.BackOff
}

// NewStreamManager creates a new stream manager.
func NewStreamManager(client *Client) *StreamManager {
	return newStreamManager(client.JetStream(), client.logger)
}

func newStreamManager(js jetstream.JetStream, log *logger.Logger) *StreamManager {
	if log == nil {
		log = logger.NewNop()
	}
	return &StreamManager{
		js:  js,
		log: log,
		retry: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			return b
		},
	}
}

// EnsureStreams creates the conversation and lead streams when missing.
func (m *StreamManager) EnsureStreams(ctx context.Context) error {
	configs := []jetstream.StreamConfig{
		{
			Name:        ConversationStream,
			Subjects:    []string{SubjectPrefix + ".>"},
			Retention:   jetstream.LimitsPolicy,
			MaxAge:      365 * 24 * time.Hour,
			Storage:     jetstream.FileStorage,
			Replicas:    1,
			Compression: jetstream.S2Compression,
			Duplicates:  10 * time.Minute,
			DenyDelete:  true,
			DenyPurge:   true,
			Description: "Conversation turns and lifecycle events",
		},
		{
			Name:        LeadStream,
			Subjects:    []string{LeadPrefix + ".>"},
			Retention:   jetstream.LimitsPolicy,
			MaxAge:      90 * 24 * time.Hour,
			Storage:     jetstream.FileStorage,
			Replicas:    1,
			Duplicates:  time.Hour,
			DenyDelete:  true,
			Description: "Finalized qualified leads",
		},
	}

	for _, cfg := range configs {
		if _, err := m.js.Stream(ctx, cfg.Name); err == nil {
			continue
		} else if !errors.Is(err, jetstream.ErrStreamNotFound) {
			return fmt.Errorf("failed to look up stream %s: %w", cfg.Name, err)
		}
		if _, err := m.js.CreateStream(ctx, cfg); err != nil {
			return fmt.Errorf("failed to create stream %s: %w", cfg.Name, err)
		}
		m.log.Info("stream created", zap.String("stream", cfg.Name))
	}
	return nil
}

// TurnSubject returns the subject for a history entry.
func TurnSubject(tenantID, conversationID string, role model.Role) string {
	return fmt.Sprintf("%s.%s.%s.msg.%s", SubjectPrefix, token(tenantID), token(conversationID), role)
}

// EventSubject returns the subject for an event.
func EventSubject(tenantID, conversationID string, eventType model.EventType) string {
	return fmt.Sprintf("%s.%s.%s.event.%s", SubjectPrefix, token(tenantID), token(conversationID), eventType)
}

// LeadSubject returns the subject for a finalized lead.
func LeadSubject(lead *model.Lead) string {
	return fmt.Sprintf("%s.%s.%s.%s", LeadPrefix, token(lead.OrganizationID), token(lead.AgentID), lead.Tier)
}

// ConversationFilter returns the filter subject for all turns in a conversation.
func ConversationFilter(tenantID, conversationID string) string {
	return fmt.Sprintf("%s.%s.%s.msg.>", SubjectPrefix, token(tenantID), token(conversationID))
}

// token makes s safe for use as one subject token.
func token(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, s)
}

// PublishTurn appends a history entry to the audit log. The message id makes
// republishing the same entry a no-op.
func (m *StreamManager) PublishTurn(ctx context.Context, ev *model.TurnEvent) (uint64, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal turn: %w", err)
	}

	msgID := fmt.Sprintf("%s-%d", ev.ConversationID, ev.Sequence)
	ack, err := m.js.Publish(ctx, TurnSubject(ev.TenantID, ev.ConversationID, ev.Turn.Role), data, jetstream.WithMsgID(msgID))
	if err != nil {
		return 0, fmt.Errorf("failed to publish turn: %w", err)
	}
	return ack.Sequence, nil
}

// PublishEvent publishes a lifecycle event.
func (m *StreamManager) PublishEvent(ctx context.Context, event *model.ConversationEvent) (uint64, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal event: %w", err)
	}

	var opts []jetstream.PublishOpt
	if event.ID != "" {
		opts = append(opts, jetstream.WithMsgID(event.ID))
	}
	ack, err := m.js.Publish(ctx, EventSubject(event.TenantID, event.ConversationID, event.Type), data, opts...)
	if err != nil {
		return 0, fmt.Errorf("failed to publish event: %w", err)
	}
	return ack.Sequence, nil
}

// PublishLead delivers a finalized lead, retrying transient failures with
// exponential backoff. The lead id deduplicates retries on the server.
func (m *StreamManager) PublishLead(ctx context.Context, lead *model.Lead) error {
	data, err := json.Marshal(lead)
	if err != nil {
		return fmt.Errorf("failed to marshal lead: %w", err)
	}
	subject := LeadSubject(lead)

	_, err = backoff.Retry(ctx, func() (*jetstream.PubAck, error) {
		ack, err := m.js.Publish(ctx, subject, data, jetstream.WithMsgID(lead.ID))
		if err != nil && ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return ack, err
	},
		backoff.WithBackOff(m.retry()),
		backoff.WithMaxElapsedTime(leadPublishTimeout),
		backoff.WithNotify(func(err error, wait time.Duration) {
			m.log.Warn("lead publish failed, retrying",
				zap.String("lead_id", lead.ID),
				zap.String("subject", subject),
				zap.Duration("wait", wait),
				zap.Error(err))
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to publish lead %s: %w", lead.ID, err)
	}
	return nil
}

// TurnLog reads a conversation's audit log starting after a stream sequence.
func (m *StreamManager) TurnLog(ctx context.Context, tenantID, conversationID string, afterSequence uint64, limit int) ([]model.TurnEvent, uint64, bool, error) {
	consumerConfig := jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{ConversationFilter(tenantID, conversationID)},
		DeliverPolicy:  jetstream.DeliverAllPolicy,
	}
	if afterSequence > 0 {
		consumerConfig.DeliverPolicy = jetstream.DeliverByStartSequencePolicy
		consumerConfig.OptStartSeq = afterSequence + 1
	}

	consumer, err := m.js.OrderedConsumer(ctx, ConversationStream, consumerConfig)
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to create consumer: %w", err)
	}

	batch, err := consumer.Fetch(limit, jetstream.FetchMaxWait(2*time.Second))
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to fetch turns: %w", err)
	}

	var (
		turns        []model.TurnEvent
		lastSequence uint64
	)
	for msg := range batch.Messages() {
		var ev model.TurnEvent
		if err := json.Unmarshal(msg.Data(), &ev); err != nil {
			m.log.Warn("skipping undecodable turn", zap.String("subject", msg.Subject()), zap.Error(err))
			continue
		}
		if meta, err := msg.Metadata(); err == nil {
			lastSequence = meta.Sequence.Stream
		}
		turns = append(turns, ev)
	}
	if err := batch.Error(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, 0, false, fmt.Errorf("batch error: %w", err)
	}

	return turns, lastSequence, len(turns) == limit, nil
}
