package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/marwie0904/leadify-RE-APP-sub004/internal/agentconfig"
	"github.com/marwie0904/leadify-RE-APP-sub004/internal/llm"
	"github.com/marwie0904/leadify-RE-APP-sub004/internal/middleware"
	"github.com/marwie0904/leadify-RE-APP-sub004/internal/model"
	"github.com/marwie0904/leadify-RE-APP-sub004/internal/scoring"
	"github.com/marwie0904/leadify-RE-APP-sub004/internal/service"
	"github.com/marwie0904/leadify-RE-APP-sub004/pkg/logger"
)

// RetryAfterSeconds is advertised on retryable provider failures.
const RetryAfterSeconds = 5

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, model.ErrorResponse{Error: message, Code: code})
}

// writeServiceError maps a service error onto a status code.
func writeServiceError(ctx context.Context, w http.ResponseWriter, log *logger.Logger, err error) {
	log = log.WithRequest(middleware.GetCorrelationID(ctx), middleware.GetTenantID(ctx), middleware.GetUserID(ctx))
	var pe *llm.ProviderError
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, service.ErrConversationNotFound):
		writeError(w, http.StatusNotFound, "conversation_not_found", "conversation not found")
	case errors.Is(err, agentconfig.ErrAgentNotFound):
		writeError(w, http.StatusNotFound, "agent_not_found", "agent not found")
	case errors.Is(err, service.ErrAgentMismatch):
		writeError(w, http.StatusConflict, "agent_mismatch", err.Error())
	case errors.Is(err, service.ErrConversationArchived):
		writeError(w, http.StatusConflict, "conversation_archived", err.Error())
	case errors.Is(err, scoring.ErrConfigInvalid):
		log.Warn("agent scoring config invalid", zap.Error(err))
		writeError(w, http.StatusUnprocessableEntity, "config_invalid", err.Error())
	case errors.As(err, &pe):
		log.Warn("model provider failed",
			zap.String("provider", pe.Provider),
			zap.String("operation", string(pe.Operation)),
			zap.String("kind", string(pe.Kind)),
			zap.Error(err))
		retryable := pe.Temporary()
		if retryable {
			w.Header().Set("Retry-After", strconv.Itoa(RetryAfterSeconds))
		}
		writeJSON(w, http.StatusServiceUnavailable, model.ErrorResponse{
			Error:     "model provider unavailable",
			Code:      "provider_" + string(pe.Kind),
			Retryable: retryable,
		})
	case errors.Is(err, service.ErrAuditUnavailable):
		writeError(w, http.StatusServiceUnavailable, "audit_unavailable", err.Error())
	default:
		log.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
