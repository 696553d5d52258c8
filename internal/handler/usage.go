package handler

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/marwie0904/leadify-RE-APP-sub004/internal/ledger"
	"github.com/marwie0904/leadify-RE-APP-sub004/internal/middleware"
	"github.com/marwie0904/leadify-RE-APP-sub004/internal/model"
	"github.com/marwie0904/leadify-RE-APP-sub004/pkg/logger"
)

// UsageHandler serves token usage analytics.
type UsageHandler struct {
	service ChatService
	logger  *logger.Logger
}

// NewUsageHandler creates a new usage handler.
func NewUsageHandler(svc ChatService, log *logger.Logger) *UsageHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &UsageHandler{service: svc, logger: log}
}

// Get handles GET /api/v1/usage
//
// Query: from, to (RFC 3339 or YYYY-MM-DD), group_by, and repeatable or
// comma-separated operation, model and agent_id filters.
func (h *UsageHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	f, err := ParseFilter(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	groupBy, err := ledger.ParseGroupBy(q.Get("group_by"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	resp, err := h.service.Usage(ctx, middleware.GetTenantID(ctx), f, groupBy)
	if err != nil {
		writeServiceError(ctx, w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// ParseFilter builds a ledger filter from query parameters.
func ParseFilter(q url.Values) (ledger.Filter, error) {
	var f ledger.Filter
	var err error

	if f.From, err = parseTime(q.Get("from")); err != nil {
		return f, fmt.Errorf("from: %w", err)
	}
	if f.To, err = parseTime(q.Get("to")); err != nil {
		return f, fmt.Errorf("to: %w", err)
	}
	if !f.From.IsZero() && !f.To.IsZero() && !f.From.Before(f.To) {
		return f, fmt.Errorf("from must be before to")
	}

	for _, op := range list(q, "operation") {
		f.Operations = append(f.Operations, model.OperationType(op))
	}
	f.Models = list(q, "model")
	f.AgentIDs = list(q, "agent_id")
	f.ConversationID = q.Get("conversation_id")
	return f, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q", s)
	}
	return t, nil
}

func list(q url.Values, key string) []string {
	var out []string
	for _, v := range q[key] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
