package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/DukeRupert/quotaledger/internal/domain"
	"github.com/DukeRupert/quotaledger/internal/service"
	"github.com/google/uuid"
)

// =============================================================================
// Request / Response Types
// =============================================================================

// AskRequest is the body of POST /api/chat/ask.
type AskRequest struct {
	UserID   int64  `json:"userId" validate:"required,gt=0"`
	Question string `json:"question" validate:"required,max=4000"` // service.MaxQuestionLength, in runes
}

// ChatMessageResponse is the JSON form of an answered question.
type ChatMessageResponse struct {
	ID             uuid.UUID  `json:"id"`
	Question       string     `json:"question"`
	Answer         string     `json:"answer"`
	Tokens         int        `json:"tokens"`
	QuotaSource    string     `json:"quotaSource"`
	SubscriptionID *uuid.UUID `json:"subscriptionId,omitempty"`
	Timestamp      time.Time  `json:"timestamp"`
}

func toChatMessageResponse(m domain.ChatMessage) ChatMessageResponse {
	resp := ChatMessageResponse{
		ID:          m.ID,
		Question:    m.Question,
		Answer:      m.Answer,
		Tokens:      m.Tokens,
		QuotaSource: string(m.QuotaSource.Kind),
		Timestamp:   m.CreatedAt,
	}
	if m.QuotaSource.Kind == domain.QuotaSourceSubscription {
		id := m.QuotaSource.SubscriptionID
		resp.SubscriptionID = &id
	}
	return resp
}

// =============================================================================
// Handler Configuration
// =============================================================================

// ChatHandler handles metered question answering.
type ChatHandler struct {
	chatService service.ChatService
	validator   *Validator
	logger      *slog.Logger
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(
	chatService service.ChatService,
	validator *Validator,
	logger *slog.Logger,
) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		validator:   validator,
		logger:      logger,
	}
}

// RegisterRoutes registers the chat routes. limit wraps the metered endpoint.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux, limit func(http.Handler) http.Handler) {
	mux.Handle("POST /api/chat/ask", limit(http.HandlerFunc(h.Ask)))
	mux.HandleFunc("GET /api/chat/history/{userId}", h.History)
}

// =============================================================================
// POST /api/chat/ask - Ask Question
// =============================================================================

// Ask spends one unit of quota and answers the question.
func (h *ChatHandler) Ask(w http.ResponseWriter, r *http.Request) {
	const op = "handler.chat.ask"

	var req AskRequest
	if err := decodeJSON(w, r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if err := h.validator.Validate(op, req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	msg, err := h.chatService.Ask(r.Context(), req.UserID, req.Question)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeData(w, http.StatusOK, toChatMessageResponse(*msg))
}

// =============================================================================
// GET /api/chat/history/{userId} - Chat History
// =============================================================================

// History lists the user's recent messages, newest first.
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	const op = "handler.chat.history"

	userID, err := pathUserID(r, op)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			ErrorResponse(w, r, h.logger, domain.Invalid(op, "limit must be a positive integer"))
			return
		}
	}

	msgs, err := h.chatService.History(r.Context(), userID, limit)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	resp := make([]ChatMessageResponse, 0, len(msgs))
	for _, m := range msgs {
		resp = append(resp, toChatMessageResponse(m))
	}
	writeData(w, http.StatusOK, resp)
}
