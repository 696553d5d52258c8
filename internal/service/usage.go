package service

import (
	"context"
	"errors"

	"github.com/marwie0904/leadify-RE-APP-sub004/internal/ledger"
	"github.com/marwie0904/leadify-RE-APP-sub004/internal/model"
)

// Usage aggregates the token ledger for analytics. The tenant always scopes
// the query to its own organization.
func (s *ChatService) Usage(ctx context.Context, tenantID string, f ledger.Filter, groupBy ledger.GroupBy) (*model.UsageResponse, error) {
	if s.ledger == nil {
		return nil, errors.New("usage ledger not configured")
	}
	if tenantID != "" {
		f.OrganizationID = tenantID
	}
	return s.ledger.Summarize(ctx, f, groupBy)
}
