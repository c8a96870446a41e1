package handler

import (
	"log/slog"
	"net/http"

	"github.com/DukeRupert/quotaledger/internal/service"
)

// UsageResponse summarises a user's remaining quota.
type UsageResponse struct {
	UserID                int64                  `json:"userId"`
	Period                string                 `json:"period"`
	FreeMessagesUsed      int                    `json:"freeMessagesUsed"`
	FreeMessagesLimit     int                    `json:"freeMessagesLimit"`
	FreeMessagesRemaining int                    `json:"freeMessagesRemaining"`
	Subscriptions         []SubscriptionResponse `json:"subscriptions"`
}

// UsageHandler reports free-tier usage and active subscriptions.
type UsageHandler struct {
	ledger        service.QuotaLedger
	subscriptions service.SubscriptionService
	logger        *slog.Logger
}

// NewUsageHandler creates a new UsageHandler.
func NewUsageHandler(
	ledger service.QuotaLedger,
	subscriptions service.SubscriptionService,
	logger *slog.Logger,
) *UsageHandler {
	return &UsageHandler{
		ledger:        ledger,
		subscriptions: subscriptions,
		logger:        logger,
	}
}

// RegisterRoutes registers the usage route.
func (h *UsageHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/usage/{userId}", h.Show)
}

// Show returns the current period's usage for a user.
func (h *UsageHandler) Show(w http.ResponseWriter, r *http.Request) {
	const op = "handler.usage.show"

	userID, err := pathUserID(r, op)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	usage, err := h.ledger.Usage(r.Context(), userID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	subs, err := h.subscriptions.ListActive(r.Context(), userID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	limit := h.ledger.Limit()
	writeData(w, http.StatusOK, UsageResponse{
		UserID:                userID,
		Period:                usage.PeriodKey,
		FreeMessagesUsed:      usage.FreeMessagesUsed,
		FreeMessagesLimit:     limit,
		FreeMessagesRemaining: usage.FreeRemaining(limit),
		Subscriptions:         toSubscriptionResponses(subs),
	})
}
