// Package ledger is the append-only token usage ledger. Every model invocation
// is recorded exactly once; aggregates are computed from the stored records so
// that bucket totals always sum to the individually recorded totals.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/marwie0904/leadify-RE-APP-sub004/internal/model"
)

// ErrLedgerWrite wraps every storage failure on Record.
var ErrLedgerWrite = errors.New("ledger write failure")

// Store is an append-only record store.
type Store interface {
	// Append inserts rec unless a record with the same ID exists. It reports
	// whether a row was written.
	Append(ctx context.Context, rec model.TokenUsageRecord) (bool, error)

	// Scan calls fn for every record matching f, oldest first. Implementations
	// may ignore f.OrganizationID; the ledger applies it.
	Scan(ctx context.Context, f Filter, fn func(model.TokenUsageRecord) error) error
}

// OrgResolver maps an agent to its organization.
type OrgResolver interface {
	OrganizationOf(ctx context.Context, agentID string) (string, error)
}

// Filter selects records. The time window is half-open [From, To); zero
// values are unbounded.
type Filter struct {
	From           time.Time
	To             time.Time
	Operations     []model.OperationType
	Models         []string
	AgentIDs       []string
	ConversationID string
	OrganizationID string
}

// Matches applies every field except OrganizationID.
func (f Filter) Matches(rec model.TokenUsageRecord) bool {
	if !f.From.IsZero() && rec.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !rec.CreatedAt.Before(f.To) {
		return false
	}
	if len(f.Operations) > 0 && !contains(f.Operations, rec.OperationType) {
		return false
	}
	if len(f.Models) > 0 && !contains(f.Models, rec.Model) {
		return false
	}
	if len(f.AgentIDs) > 0 && !contains(f.AgentIDs, rec.AgentID) {
		return false
	}
	if f.ConversationID != "" && rec.ConversationID != f.ConversationID {
		return false
	}
	return true
}

// GroupBy selects the aggregation key.
type GroupBy string

const (
	GroupNone         GroupBy = ""
	GroupOperation    GroupBy = "operation_type"
	GroupModel        GroupBy = "model"
	GroupAgent        GroupBy = "agent"
	GroupOrganization GroupBy = "organization"
	GroupConversation GroupBy = "conversation"
	GroupHour         GroupBy = "hour"
	GroupDay          GroupBy = "day"
)

// ParseGroupBy validates a group-by name.
func ParseGroupBy(s string) (GroupBy, error) {
	switch g := GroupBy(s); g {
	case GroupNone, GroupOperation, GroupModel, GroupAgent, GroupOrganization,
		GroupConversation, GroupHour, GroupDay:
		return g, nil
	case "operation":
		return GroupOperation, nil
	}
	return "", fmt.Errorf("unknown group_by %q", s)
}

// Unassigned labels records without an agent, organization or conversation.
const Unassigned = "unassigned"

// Ledger records and aggregates token usage.
type Ledger struct {
	store Store
	orgs  OrgResolver
	now   func() time.Time
}

// New creates a ledger over store. orgs may be nil when organization grouping
// is not needed.
func New(store Store, orgs OrgResolver) *Ledger {
	return &Ledger{store: store, orgs: orgs, now: time.Now}
}

// Record appends one usage entry. It is idempotent on usage.InvocationID: a
// repeated ID returns the same record ID and writes nothing.
func (l *Ledger) Record(ctx context.Context, usage model.Usage, op model.OperationType, conversationID, agentID string) (string, error) {
	if op == "" {
		return "", fmt.Errorf("%w: operation type is required", ErrLedgerWrite)
	}
	if usage.PromptTokens < 0 || usage.CompletionTokens < 0 || usage.TotalTokens < 0 {
		return "", fmt.Errorf("%w: negative token count", ErrLedgerWrite)
	}

	id := usage.InvocationID
	if id == "" {
		id = uuid.NewString()
	}
	modelName := usage.Model
	if modelName == "" {
		modelName = "unknown"
	}

	total := usage.TotalTokens
	if sum := usage.PromptTokens + usage.CompletionTokens; sum > 0 {
		total = sum
	}

	rec := model.TokenUsageRecord{
		ID:               id,
		CreatedAt:        l.now().UTC(),
		OperationType:    op,
		Model:            modelName,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      total,
		Estimated:        usage.Estimated,
		Failed:           usage.Failed,
		ConversationID:   conversationID,
		AgentID:          agentID,
	}

	if _, err := l.store.Append(ctx, rec); err != nil {
		return "", fmt.Errorf("%w: %v", ErrLedgerWrite, err)
	}
	return id, nil
}

// Aggregate sums records matching f grouped by groupBy. Buckets are sorted by
// group label.
func (l *Ledger) Aggregate(ctx context.Context, f Filter, groupBy GroupBy) ([]model.UsageBucket, error) {
	if (groupBy == GroupOrganization || f.OrganizationID != "") && l.orgs == nil {
		return nil, errors.New("organization grouping requires an organization resolver")
	}

	orgCache := make(map[string]string)
	orgOf := func(agentID string) (string, error) {
		if agentID == "" {
			return Unassigned, nil
		}
		if org, ok := orgCache[agentID]; ok {
			return org, nil
		}
		org, err := l.orgs.OrganizationOf(ctx, agentID)
		if err != nil {
			return "", fmt.Errorf("resolve organization for agent %s: %w", agentID, err)
		}
		if org == "" {
			org = Unassigned
		}
		orgCache[agentID] = org
		return org, nil
	}

	buckets := make(map[string]*model.UsageBucket)
	err := l.store.Scan(ctx, f, func(rec model.TokenUsageRecord) error {
		var org string
		if f.OrganizationID != "" || groupBy == GroupOrganization {
			var err error
			if org, err = orgOf(rec.AgentID); err != nil {
				return err
			}
			if f.OrganizationID != "" && org != f.OrganizationID {
				return nil
			}
		}

		key := groupKey(rec, groupBy, org)
		b, ok := buckets[key]
		if !ok {
			b = &model.UsageBucket{Group: key}
			buckets[key] = b
		}
		b.PromptTokens += int64(rec.PromptTokens)
		b.CompletionTokens += int64(rec.CompletionTokens)
		b.TotalTokens += int64(rec.TotalTokens)
		b.Count++
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]model.UsageBucket, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Group < out[j].Group })
	return out, nil
}

// Summarize runs Aggregate and wraps the result with totals.
func (l *Ledger) Summarize(ctx context.Context, f Filter, groupBy GroupBy) (*model.UsageResponse, error) {
	buckets, err := l.Aggregate(ctx, f, groupBy)
	if err != nil {
		return nil, err
	}
	resp := &model.UsageResponse{
		GroupBy: string(groupBy),
		From:    f.From,
		To:      f.To,
		Buckets: buckets,
	}
	for _, b := range buckets {
		resp.TotalTokens += b.TotalTokens
		resp.Count += b.Count
	}
	return resp, nil
}

func groupKey(rec model.TokenUsageRecord, groupBy GroupBy, org string) string {
	switch groupBy {
	case GroupOperation:
		return string(rec.OperationType)
	case GroupModel:
		return rec.Model
	case GroupAgent:
		return orUnassigned(rec.AgentID)
	case GroupOrganization:
		return org
	case GroupConversation:
		return orUnassigned(rec.ConversationID)
	case GroupHour:
		return rec.CreatedAt.UTC().Truncate(time.Hour).Format(time.RFC3339)
	case GroupDay:
		return rec.CreatedAt.UTC().Format("2006-01-02")
	}
	return "all"
}

func orUnassigned(s string) string {
	if s == "" {
		return Unassigned
	}
	return s
}

func contains[T comparable](xs []T, x T) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
