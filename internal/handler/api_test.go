package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DukeRupert/quotaledger/internal/answer/mock"
	"github.com/DukeRupert/quotaledger/internal/service"
	"github.com/DukeRupert/quotaledger/internal/store/memory"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var apiNow = time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC)

type testAPI struct {
	mux   *http.ServeMux
	store *memory.Store
}

func newTestAPI(t *testing.T, payments service.Chance) *testAPI {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := func() time.Time { return apiNow }
	store := memory.New()

	ledger := service.NewQuotaLedger(store, logger, service.WithLedgerClock(clock))
	allocator := service.NewSubscriptionQuotaAllocator(store, logger)
	coordinator := service.NewQuotaCoordinator(ledger, allocator, store, logger)
	subscriptions := service.NewSubscriptionService(store, service.SubscriptionServiceConfig{
		Payments: payments,
		Now:      clock,
	}, logger)
	chat := service.NewChatService(coordinator, mock.New(logger), store, logger)

	validator := NewValidator()
	mux := http.NewServeMux()
	noLimit := func(next http.Handler) http.Handler { return next }
	NewChatHandler(chat, validator, logger).RegisterRoutes(mux, noLimit)
	NewSubscriptionHandler(subscriptions, validator, logger).RegisterRoutes(mux)
	NewUsageHandler(ledger, subscriptions, logger).RegisterRoutes(mux)
	NewHealthHandler(nil, logger).RegisterRoutes(mux)

	return &testAPI{mux: mux, store: store}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.mux.ServeHTTP(rec, req)
	return rec
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var env struct {
		Success bool `json:"success"`
		Data    T    `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	assert.True(t, env.Success)
	return env.Data
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) JSONError {
	t.Helper()
	var body JSONError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestAPI_AskUntilQuotaExceeded(t *testing.T) {
	api := newTestAPI(t, nil)

	for range 3 {
		rec := api.do(t, http.MethodPost, "/api/chat/ask", map[string]any{"userId": 1, "question": "What is Go?"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		msg := decodeData[ChatMessageResponse](t, rec)
		assert.Equal(t, "free", msg.QuotaSource)
		assert.Nil(t, msg.SubscriptionID)
		assert.Positive(t, msg.Tokens)
	}

	rec := api.do(t, http.MethodPost, "/api/chat/ask", map[string]any{"userId": 1, "question": "What is Go?"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "quota_exceeded", body.Error.Code)
	assert.Equal(t, "No active subscription found. Please subscribe to continue.", body.Error.Message)
}

func TestAPI_AskWithSubscription(t *testing.T) {
	api := newTestAPI(t, nil)

	rec := api.do(t, http.MethodPost, "/api/subscriptions", map[string]any{
		"userId": 2, "tier": "Basic", "billingCycle": "monthly", "autoRenew": true,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sub := decodeData[SubscriptionResponse](t, rec)
	assert.Equal(t, 10, sub.RemainingMessages)
	assert.InDelta(t, 9.99, sub.Price, 1e-9)

	for range 3 {
		require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, "/api/chat/ask", map[string]any{"userId": 2, "question": "q"}).Code)
	}

	rec = api.do(t, http.MethodPost, "/api/chat/ask", map[string]any{"userId": 2, "question": "q"})
	require.Equal(t, http.StatusOK, rec.Code)
	msg := decodeData[ChatMessageResponse](t, rec)
	assert.Equal(t, "subscription", msg.QuotaSource)
	require.NotNil(t, msg.SubscriptionID)
	assert.Equal(t, sub.ID, *msg.SubscriptionID)

	rec = api.do(t, http.MethodGet, "/api/usage/2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	usage := decodeData[UsageResponse](t, rec)
	assert.Equal(t, "2025-03", usage.Period)
	assert.Equal(t, 3, usage.FreeMessagesUsed)
	assert.Equal(t, 0, usage.FreeMessagesRemaining)
	require.Len(t, usage.Subscriptions, 1)
	assert.Equal(t, 9, usage.Subscriptions[0].RemainingMessages)

	rec = api.do(t, http.MethodGet, "/api/chat/history/2?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeData[[]ChatMessageResponse](t, rec), 2)
}

func TestAPI_AskValidation(t *testing.T) {
	api := newTestAPI(t, nil)

	tests := []struct {
		name  string
		body  any
		field string
	}{
		{"missing user", map[string]any{"question": "q"}, "userId"},
		{"missing question", map[string]any{"userId": 1}, "question"},
		{"negative user", map[string]any{"userId": -4, "question": "q"}, "userId"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(t, http.MethodPost, "/api/chat/ask", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, "invalid", body.Error.Code)
			assert.Contains(t, body.Error.Fields, tt.field)
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/api/chat/ask", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	api.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_AskQuestionLengthInCharacters(t *testing.T) {
	api := newTestAPI(t, nil)

	rec := api.do(t, http.MethodPost, "/api/chat/ask", map[string]any{
		"userId": 1, "question": strings.Repeat("日", service.MaxQuestionLength),
	})
	assert.Equal(t, http.StatusOK, rec.Code, "a multibyte question at the limit is accepted end to end")

	rec = api.do(t, http.MethodPost, "/api/chat/ask", map[string]any{
		"userId": 1, "question": strings.Repeat("日", service.MaxQuestionLength+1),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec).Error.Fields, "question")
}

func TestAPI_CreateSubscriptionValidation(t *testing.T) {
	api := newTestAPI(t, nil)

	rec := api.do(t, http.MethodPost, "/api/subscriptions", map[string]any{
		"userId": 1, "tier": "Gold", "billingCycle": "weekly",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "tier must be Basic, Pro, or Enterprise", body.Error.Fields["tier"])
	assert.Equal(t, "billingCycle must be monthly or yearly", body.Error.Fields["billingCycle"])
}

func TestAPI_CancelSubscription(t *testing.T) {
	api := newTestAPI(t, nil)

	rec := api.do(t, http.MethodPost, "/api/subscriptions", map[string]any{
		"userId": 3, "tier": "Pro", "billingCycle": "yearly", "autoRenew": true,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	sub := decodeData[SubscriptionResponse](t, rec)

	rec = api.do(t, http.MethodPost, "/api/subscriptions/"+sub.ID.String()+"/cancel", map[string]any{"userId": 4})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", decodeError(t, rec).Error.Code)

	rec = api.do(t, http.MethodPost, "/api/subscriptions/"+uuid.NewString()+"/cancel", map[string]any{"userId": 3})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/subscriptions/42/cancel", map[string]any{"userId": 3})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/subscriptions/"+sub.ID.String()+"/cancel", map[string]any{"userId": 3})
	require.Equal(t, http.StatusOK, rec.Code)
	res := decodeData[CancelResponse](t, rec)
	assert.True(t, sub.EndDate.Equal(res.EndDate))
	assert.Equal(t, "Subscription cancelled. It will remain active until end date.", res.Message)

	rec = api.do(t, http.MethodGet, "/api/subscriptions/user/3", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	subs := decodeData[[]SubscriptionResponse](t, rec)
	require.Len(t, subs, 1)
	assert.False(t, subs[0].AutoRenew)
	assert.True(t, subs[0].IsActive)
}

func TestAPI_SimulatePayment(t *testing.T) {
	tests := []struct {
		name    string
		outcome bool
		message string
		active  int
	}{
		{"success", true, "Payment successful, subscription renewed", 1},
		{"failure", false, "Payment failed, subscription marked inactive", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI(t, service.Always(tt.outcome))

			rec := api.do(t, http.MethodPost, "/api/subscriptions", map[string]any{
				"userId": 5, "tier": "Basic", "billingCycle": "monthly", "autoRenew": true,
			})
			require.Equal(t, http.StatusCreated, rec.Code)
			sub := decodeData[SubscriptionResponse](t, rec)

			rec = api.do(t, http.MethodPost, "/api/subscriptions/"+sub.ID.String()+"/simulate-payment", nil)
			require.Equal(t, http.StatusOK, rec.Code)
			res := decodeData[PaymentResponse](t, rec)
			assert.Equal(t, tt.outcome, res.PaymentSuccess)
			assert.Equal(t, tt.message, res.Message)

			rec = api.do(t, http.MethodGet, "/api/subscriptions/user/5", nil)
			assert.Len(t, decodeData[[]SubscriptionResponse](t, rec), tt.active)
		})
	}
}

func TestAPI_SimulatePaymentUnknown(t *testing.T) {
	api := newTestAPI(t, service.Always(true))
	rec := api.do(t, http.MethodPost, "/api/subscriptions/"+uuid.NewString()+"/simulate-payment", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_InvalidUserIDPath(t *testing.T) {
	api := newTestAPI(t, nil)
	for _, path := range []string{"/api/subscriptions/user/abc", "/api/usage/0", "/api/chat/history/-1"} {
		rec := api.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
}

func TestHealthHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	rec := httptest.NewRecorder()
	NewHealthHandler(nil, logger).Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	failing := map[string]Pinger{
		"database": PingFunc(func(context.Context) error { return errors.New("down") }),
	}
	rec = httptest.NewRecorder()
	NewHealthHandler(failing, logger).Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "unavailable", body.Checks["database"])
}
