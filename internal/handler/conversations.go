package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/marwie0904/leadify-RE-APP-sub004/internal/middleware"
	"github.com/marwie0904/leadify-RE-APP-sub004/internal/model"
	"github.com/marwie0904/leadify-RE-APP-sub004/pkg/logger"
)

// ConversationHandler handles conversation endpoints.
type ConversationHandler struct {
	service ChatService
	logger  *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(svc ChatService, log *logger.Logger) *ConversationHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &ConversationHandler{service: svc, logger: log}
}

// Get handles GET /api/v1/conversations/{id}
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	conv, err := h.service.Get(ctx, middleware.GetTenantID(ctx), conversationID)
	if err != nil {
		writeServiceError(ctx, w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// Delete handles DELETE /api/v1/conversations/{id}. The conversation is
// archived, not erased; its history stays readable.
func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	if err := h.service.Archive(ctx, middleware.GetTenantID(ctx), conversationID); err != nil {
		writeServiceError(ctx, w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// TurnLogResponse is one page of a conversation's audit log.
type TurnLogResponse struct {
	Turns        []model.TurnEvent `json:"turns"`
	LastSequence uint64            `json:"last_sequence"`
	HasMore      bool              `json:"has_more"`
}

// Turns handles GET /api/v1/conversations/{id}/turns
func (h *ConversationHandler) Turns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	afterSequence := uint64(0)
	limit := 50

	if seq := r.URL.Query().Get("after_sequence"); seq != "" {
		parsed, err := strconv.ParseUint(seq, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "after_sequence must be a non-negative integer")
			return
		}
		afterSequence = parsed
	}

	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	turns, last, more, err := h.service.TurnLog(ctx, middleware.GetTenantID(ctx), conversationID, afterSequence, limit)
	if err != nil {
		writeServiceError(ctx, w, h.logger, err)
		return
	}
	if turns == nil {
		turns = []model.TurnEvent{}
	}

	writeJSON(w, http.StatusOK, &TurnLogResponse{Turns: turns, LastSequence: last, HasMore: more})
}
