// Package handler provides HTTP handlers for the API.
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/marwie0904/leadify-RE-APP-sub004/internal/ledger"
	"github.com/marwie0904/leadify-RE-APP-sub004/internal/middleware"
	"github.com/marwie0904/leadify-RE-APP-sub004/internal/model"
	"github.com/marwie0904/leadify-RE-APP-sub004/pkg/logger"
)

// maxBodyBytes bounds a chat-turn body; messages themselves are capped lower.
const maxBodyBytes = 64 << 10

// ChatService is the subset of service.ChatService the handlers use.
type ChatService interface {
	HandleTurn(ctx context.Context, req *model.ChatTurnRequest) (*model.ChatTurnResponse, error)
	Get(ctx context.Context, tenantID, conversationID string) (*model.ConversationSummary, error)
	Archive(ctx context.Context, tenantID, conversationID string) error
	TurnLog(ctx context.Context, tenantID, conversationID string, afterSequence uint64, limit int) ([]model.TurnEvent, uint64, bool, error)
	Usage(ctx context.Context, tenantID string, f ledger.Filter, groupBy ledger.GroupBy) (*model.UsageResponse, error)
}

// ChatHandler handles the chat-turn endpoint.
type ChatHandler struct {
	service ChatService
	logger  *logger.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(svc ChatService, log *logger.Logger) *ChatHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &ChatHandler{service: svc, logger: log}
}

// Turn handles POST /api/v1/chat-turn
func (h *ChatHandler) Turn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req model.ChatTurnRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	if req.ConversationID != "" {
		if err := middleware.ValidateConversationID(req.ConversationID); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
	}
	if req.AgentID != "" {
		if err := middleware.ValidateAgentID(req.AgentID); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
	}
	req.TenantID = middleware.GetTenantID(ctx)

	resp, err := h.service.HandleTurn(ctx, &req)
	if err != nil {
		writeServiceError(ctx, w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
