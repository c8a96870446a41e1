package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/DukeRupert/quotaledger/internal/domain"
	"github.com/DukeRupert/quotaledger/internal/service"
	"github.com/google/uuid"
)

// =============================================================================
// Request / Response Types
// =============================================================================

// CreateSubscriptionRequest is the body of POST /api/subscriptions.
type CreateSubscriptionRequest struct {
	UserID       int64  `json:"userId" validate:"required,gt=0"`
	Tier         string `json:"tier" validate:"required,tier"`
	BillingCycle string `json:"billingCycle" validate:"required,billing_cycle"`
	AutoRenew    bool   `json:"autoRenew"`
}

// CancelSubscriptionRequest is the body of POST /api/subscriptions/{id}/cancel.
type CancelSubscriptionRequest struct {
	UserID int64 `json:"userId" validate:"required,gt=0"`
}

// SubscriptionResponse is the JSON form of a subscription.
type SubscriptionResponse struct {
	ID                uuid.UUID  `json:"id"`
	UserID            int64      `json:"userId"`
	Tier              string     `json:"tier"`
	MaxMessages       int        `json:"maxMessages"`
	RemainingMessages int        `json:"remainingMessages"`
	Price             float64    `json:"price"`
	BillingCycle      string     `json:"billingCycle"`
	AutoRenew         bool       `json:"autoRenew"`
	IsActive          bool       `json:"isActive"`
	StartDate         time.Time  `json:"startDate"`
	EndDate           time.Time  `json:"endDate"`
	RenewalDate       *time.Time `json:"renewalDate,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
}

func toSubscriptionResponse(s domain.Subscription) SubscriptionResponse {
	return SubscriptionResponse{
		ID:                s.ID,
		UserID:            s.UserID,
		Tier:              string(s.Tier),
		MaxMessages:       s.MaxMessages,
		RemainingMessages: s.RemainingMessages,
		Price:             float64(s.PriceCents) / 100,
		BillingCycle:      string(s.BillingCycle),
		AutoRenew:         s.AutoRenew,
		IsActive:          s.IsActive,
		StartDate:         s.StartDate,
		EndDate:           s.EndDate,
		RenewalDate:       s.RenewalDate,
		CreatedAt:         s.CreatedAt,
	}
}

func toSubscriptionResponses(subs []domain.Subscription) []SubscriptionResponse {
	resp := make([]SubscriptionResponse, 0, len(subs))
	for _, s := range subs {
		resp = append(resp, toSubscriptionResponse(s))
	}
	return resp
}

// CancelResponse is returned after auto-renew is turned off.
type CancelResponse struct {
	Message string    `json:"message"`
	EndDate time.Time `json:"endDate"`
}

// PaymentResponse reports the outcome of a simulated payment.
type PaymentResponse struct {
	PaymentSuccess bool   `json:"paymentSuccess"`
	Message        string `json:"message"`
}

// =============================================================================
// Handler Configuration
// =============================================================================

// SubscriptionHandler handles subscription lifecycle requests.
type SubscriptionHandler struct {
	subscriptionService service.SubscriptionService
	validator           *Validator
	logger              *slog.Logger
}

// NewSubscriptionHandler creates a new SubscriptionHandler.
func NewSubscriptionHandler(
	subscriptionService service.SubscriptionService,
	validator *Validator,
	logger *slog.Logger,
) *SubscriptionHandler {
	return &SubscriptionHandler{
		subscriptionService: subscriptionService,
		validator:           validator,
		logger:              logger,
	}
}

// RegisterRoutes registers all subscription routes with the provided mux.
func (h *SubscriptionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/subscriptions", h.Create)
	mux.HandleFunc("GET /api/subscriptions/user/{userId}", h.ListByUser)
	mux.HandleFunc("POST /api/subscriptions/{id}/cancel", h.Cancel)
	mux.HandleFunc("POST /api/subscriptions/{id}/simulate-payment", h.SimulatePayment)
}

// =============================================================================
// POST /api/subscriptions - Create Subscription
// =============================================================================

// Create starts a subscription.
func (h *SubscriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	const op = "handler.subscription.create"

	var req CreateSubscriptionRequest
	if err := decodeJSON(w, r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if err := h.validator.Validate(op, req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	sub, err := h.subscriptionService.Create(r.Context(), domain.CreateSubscriptionParams{
		UserID:       req.UserID,
		Tier:         domain.SubscriptionTier(req.Tier),
		BillingCycle: domain.BillingCycle(req.BillingCycle),
		AutoRenew:    req.AutoRenew,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeData(w, http.StatusCreated, toSubscriptionResponse(*sub))
}

// =============================================================================
// GET /api/subscriptions/user/{userId} - List Active Subscriptions
// =============================================================================

// ListByUser returns the user's active subscriptions in allocation order.
func (h *SubscriptionHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	const op = "handler.subscription.list"

	userID, err := pathUserID(r, op)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	subs, err := h.subscriptionService.ListActive(r.Context(), userID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeData(w, http.StatusOK, toSubscriptionResponses(subs))
}

// =============================================================================
// POST /api/subscriptions/{id}/cancel - Cancel Subscription
// =============================================================================

// Cancel turns off auto-renew for a subscription owned by the caller.
func (h *SubscriptionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	const op = "handler.subscription.cancel"

	id, err := pathSubscriptionID(r, op)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	var req CancelSubscriptionRequest
	if err := decodeJSON(w, r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if err := h.validator.Validate(op, req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	result, err := h.subscriptionService.Cancel(r.Context(), id, req.UserID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeData(w, http.StatusOK, CancelResponse{
		Message: result.Message,
		EndDate: result.EndDate,
	})
}

// =============================================================================
// POST /api/subscriptions/{id}/simulate-payment - Simulate Payment
// =============================================================================

// SimulatePayment runs one payment trial against the subscription.
func (h *SubscriptionHandler) SimulatePayment(w http.ResponseWriter, r *http.Request) {
	const op = "handler.subscription.simulate_payment"

	id, err := pathSubscriptionID(r, op)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	ok, err := h.subscriptionService.SimulatePayment(r.Context(), id)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	resp := PaymentResponse{
		PaymentSuccess: ok,
		Message:        "Payment failed, subscription marked inactive",
	}
	if ok {
		resp.Message = "Payment successful, subscription renewed"
	}
	writeData(w, http.StatusOK, resp)
}
