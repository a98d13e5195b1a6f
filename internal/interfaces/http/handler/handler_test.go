package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	appbookkeeping "github.com/ledgerflow/backend/internal/application/bookkeeping"
	appintegration "github.com/ledgerflow/backend/internal/application/integration"
	"github.com/ledgerflow/backend/internal/domain/bookkeeping"
	"github.com/ledgerflow/backend/internal/domain/guardrail"
	"github.com/ledgerflow/backend/internal/domain/integration"
	"github.com/ledgerflow/backend/internal/domain/ledger"
	"github.com/ledgerflow/backend/internal/domain/shared"
	"github.com/ledgerflow/backend/internal/interfaces/http/dto"
	"github.com/ledgerflow/backend/internal/interfaces/http/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type mockPostingService struct {
	mock.Mock
}

func (m *mockPostingService) Submit(ctx context.Context, event bookkeeping.FinancialEvent) (*appbookkeeping.PostingResult, error) {
	args := m.Called(ctx, event)
	if r := args.Get(0); r != nil {
		return r.(*appbookkeeping.PostingResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockPostingService) Approve(ctx context.Context, reviewID uuid.UUID, approver string) (*appbookkeeping.PostingResult, error) {
	args := m.Called(ctx, reviewID, approver)
	if r := args.Get(0); r != nil {
		return r.(*appbookkeeping.PostingResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockPostingService) PendingReviews(ctx context.Context, userID uuid.UUID, limit int) ([]*bookkeeping.ReviewItem, error) {
	args := m.Called(ctx, userID, limit)
	if r := args.Get(0); r != nil {
		return r.([]*bookkeeping.ReviewItem), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockVATReportService struct {
	mock.Mock
}

func (m *mockVATReportService) Generate(ctx context.Context, req appbookkeeping.VATReportRequest) (*appbookkeeping.VATReportResult, error) {
	args := m.Called(ctx, req)
	if r := args.Get(0); r != nil {
		return r.(*appbookkeeping.VATReportResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func newTestEngine(registrars ...interface{ RegisterRoutes(*gin.RouterGroup) }) *gin.Engine {
	engine := gin.New()
	engine.Use(middleware.RequestID())
	api := engine.Group("/api/v1")
	for _, r := range registrars {
		r.RegisterRoutes(api)
	}
	return engine
}

func doJSON(engine *gin.Engine, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func saleEvent() bookkeeping.FinancialEvent {
	return bookkeeping.FinancialEvent{
		ID:          uuid.New(),
		UserID:      uuid.New(),
		CompanyID:   uuid.New(),
		Kind:        bookkeeping.EventSale,
		OccurredOn:  time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		Description: "Consulting",
		Net:         decimal.NewFromInt(1000),
		VAT:         decimal.NewFromInt(250),
		VATRate:     25,
	}
}

func TestPostingHandler_Submit(t *testing.T) {
	event := saleEvent()
	byID := mock.MatchedBy(func(e bookkeeping.FinancialEvent) bool { return e.ID == event.ID })

	tests := []struct {
		name   string
		result *appbookkeeping.PostingResult
		status int
	}{
		{"posted", &appbookkeeping.PostingResult{EventID: event.ID, State: guardrail.StateAllowed, VoucherRef: "A-17"}, http.StatusCreated},
		{"duplicate", &appbookkeeping.PostingResult{EventID: event.ID, State: guardrail.StateAllowed, VoucherRef: "A-17", Duplicate: true}, http.StatusOK},
		{"queued", &appbookkeeping.PostingResult{EventID: event.ID, State: guardrail.StateBlocked, Reasons: []guardrail.Reason{guardrail.ReasonLowConfidence}}, http.StatusAccepted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(mockPostingService)
			svc.On("Submit", mock.Anything, byID).Return(tt.result, nil)

			w := doJSON(newTestEngine(NewPostingHandler(svc)), http.MethodPost, "/api/v1/postings", event)

			assert.Equal(t, tt.status, w.Code)
			resp := decode(t, w)
			assert.True(t, resp.Success)
			svc.AssertExpectations(t)
		})
	}
}

func TestPostingHandler_Submit_InvalidJSON(t *testing.T) {
	svc := new(mockPostingService)
	engine := newTestEngine(NewPostingHandler(svc))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/postings", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, dto.ErrCodeInvalidJSON, decode(t, w).Error.Code)
	svc.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
}

func TestPostingHandler_Submit_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"invalid event", fmt.Errorf("%w: sale without amount", bookkeeping.ErrInvalidEvent), http.StatusBadRequest, dto.ErrCodeInvalidInput},
		{"unbalanced", &ledger.LedgerError{Reason: ledger.ErrUnbalanced, Description: "x"}, http.StatusUnprocessableEntity, dto.ErrCodeUnbalancedVoucher},
		{"in flight", bookkeeping.ErrTransmissionPending, http.StatusConflict, dto.ErrCodeConflict},
		{"reconnect", fmt.Errorf("post: %w", appintegration.ErrReconnectRequired), http.StatusConflict, dto.ErrCodeReconnectRequired},
		{"platform timeout", integration.NewError(integration.KindTimeout, "deadline"), http.StatusGatewayTimeout, dto.ErrCodeIntegrationTimeout},
		{"platform input", integration.NewError(integration.KindClientInput, "bad account"), http.StatusUnprocessableEntity, dto.ErrCodeIntegrationInput},
		{"domain error", shared.ErrInvalidState, http.StatusUnprocessableEntity, dto.ErrCodeInvalidState},
		{"unknown", errors.New("db gone"), http.StatusInternalServerError, dto.ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(mockPostingService)
			svc.On("Submit", mock.Anything, mock.Anything).Return(nil, tt.err)

			w := doJSON(newTestEngine(NewPostingHandler(svc)), http.MethodPost, "/api/v1/postings", saleEvent())

			assert.Equal(t, tt.status, w.Code)
			resp := decode(t, w)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.NotEmpty(t, resp.Error.RequestID)
		})
	}
}

func TestPostingHandler_RateLimitedLocalized(t *testing.T) {
	svc := new(mockPostingService)
	svc.On("Submit", mock.Anything, mock.Anything).
		Return(nil, integration.NewError(integration.KindRateLimit, "slow down", integration.WithRetryAfter(1500*time.Millisecond)))
	engine := newTestEngine(NewPostingHandler(svc))

	w := doJSON(engine, http.MethodPost, "/api/v1/postings", saleEvent(), "Accept-Language", "en-GB")

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("Retry-After"))
	resp := decode(t, w)
	assert.Equal(t, integration.UserMessage(integration.ParseAcceptLanguage("en"), integration.KindRateLimit), resp.Error.Message)

	w = doJSON(engine, http.MethodPost, "/api/v1/postings", saleEvent())
	assert.Equal(t, integration.UserMessage(integration.DefaultLanguage, integration.KindRateLimit), decode(t, w).Error.Message)
}

func TestPostingHandler_Approve(t *testing.T) {
	reviewID := uuid.New()

	t.Run("approves", func(t *testing.T) {
		svc := new(mockPostingService)
		svc.On("Approve", mock.Anything, reviewID, "anna").
			Return(&appbookkeeping.PostingResult{State: guardrail.StateAllowed, VoucherRef: "A-18", ReviewID: &reviewID}, nil)

		w := doJSON(newTestEngine(NewPostingHandler(svc)), http.MethodPost,
			"/api/v1/reviews/"+reviewID.String()+"/approve", dto.ApproveRequest{Approver: "anna"})

		assert.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("rejects a malformed id", func(t *testing.T) {
		svc := new(mockPostingService)
		w := doJSON(newTestEngine(NewPostingHandler(svc)), http.MethodPost,
			"/api/v1/reviews/not-a-uuid/approve", dto.ApproveRequest{Approver: "anna"})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		resp := decode(t, w)
		assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
		require.Len(t, resp.Error.Details, 1)
		assert.Equal(t, "ID", resp.Error.Details[0].Field)
	})

	t.Run("requires an approver", func(t *testing.T) {
		svc := new(mockPostingService)
		w := doJSON(newTestEngine(NewPostingHandler(svc)), http.MethodPost,
			"/api/v1/reviews/"+reviewID.String()+"/approve", map[string]string{})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeValidation, decode(t, w).Error.Code)
	})

	statusTests := []struct {
		err    error
		status int
	}{
		{bookkeeping.ErrReviewNotFound, http.StatusNotFound},
		{bookkeeping.ErrReviewNotPending, http.StatusUnprocessableEntity},
		{bookkeeping.ErrReviewConflict, http.StatusConflict},
	}
	for _, tt := range statusTests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			svc := new(mockPostingService)
			svc.On("Approve", mock.Anything, reviewID, "anna").Return(nil, tt.err)

			w := doJSON(newTestEngine(NewPostingHandler(svc)), http.MethodPost,
				"/api/v1/reviews/"+reviewID.String()+"/approve", dto.ApproveRequest{Approver: "anna"})
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestPostingHandler_PendingReviews(t *testing.T) {
	userID := uuid.New()
	svc := new(mockPostingService)
	svc.On("PendingReviews", mock.Anything, userID, 10).
		Return([]*bookkeeping.ReviewItem{{ID: uuid.New(), Status: bookkeeping.ReviewPending}}, nil)
	engine := newTestEngine(NewPostingHandler(svc))

	w := doJSON(engine, http.MethodGet, "/api/v1/reviews?user_id="+userID.String()+"&limit=10", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)

	w = doJSON(engine, http.MethodGet, "/api/v1/reviews", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVATReportHandler_Generate(t *testing.T) {
	req := appbookkeeping.VATReportRequest{
		UserID:    uuid.New(),
		CompanyID: uuid.New(),
		Period:    "2026-Q1",
	}
	byPeriod := mock.MatchedBy(func(r appbookkeeping.VATReportRequest) bool { return r.Period == "2026-Q1" })

	t.Run("returns the report", func(t *testing.T) {
		svc := new(mockVATReportService)
		svc.On("Generate", mock.Anything, byPeriod).
			Return(&appbookkeeping.VATReportResult{ToPay: decimal.NewFromInt(250)}, nil)

		w := doJSON(newTestEngine(NewVATReportHandler(svc)), http.MethodPost, "/api/v1/vat-reports", req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.True(t, decode(t, w).Success)
	})

	t.Run("invalid report keeps the data", func(t *testing.T) {
		svc := new(mockVATReportService)
		svc.On("Generate", mock.Anything, byPeriod).
			Return(&appbookkeeping.VATReportResult{}, appbookkeeping.ErrReportInvalid)

		w := doJSON(newTestEngine(NewVATReportHandler(svc)), http.MethodPost, "/api/v1/vat-reports", req)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		resp := decode(t, w)
		assert.Equal(t, dto.ErrCodeReportInvalid, resp.Error.Code)
		assert.NotNil(t, resp.Data)
	})

	t.Run("missing period", func(t *testing.T) {
		svc := new(mockVATReportService)
		svc.On("Generate", mock.Anything, mock.Anything).
			Return(nil, fmt.Errorf("%w: period is required", bookkeeping.ErrInvalidEvent))

		w := doJSON(newTestEngine(NewVATReportHandler(svc)), http.MethodPost, "/api/v1/vat-reports", appbookkeeping.VATReportRequest{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHealthHandler(t *testing.T) {
	newEngine := func(checks map[string]HealthCheck) *gin.Engine {
		engine := gin.New()
		engine.GET("/health", NewHealthHandler(checks, time.Second).Health)
		return engine
	}

	w := doJSON(newEngine(map[string]HealthCheck{
		"database": func(context.Context) error { return nil },
	}), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(newEngine(map[string]HealthCheck{
		"database": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	}), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "connection refused", resp.Checks["redis"])
}

type mockConnector struct {
	mock.Mock
}

func (m *mockConnector) Connect(ctx context.Context, key integration.CredentialKey, code, redirectURI string) (*integration.Credential, error) {
	args := m.Called(ctx, key, code, redirectURI)
	if r := args.Get(0); r != nil {
		return r.(*integration.Credential), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestIntegrationHandler_Connect(t *testing.T) {
	userID := uuid.New()
	key := integration.CredentialKey{UserID: userID, Integration: integration.IntegrationFortnox}
	expires := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("uses the default redirect uri", func(t *testing.T) {
		conn := new(mockConnector)
		conn.On("Connect", mock.Anything, key, "auth-code", "https://app.example.com/callback").
			Return(&integration.Credential{Key: key, AccessToken: "secret", Scope: "bookkeeping", ExpiresAt: expires, Version: 1}, nil)
		h := NewIntegrationHandler(conn, integration.IntegrationFortnox, "https://app.example.com/callback")

		w := doJSON(newTestEngine(h), http.MethodPost, "/api/v1/integrations/fortnox/connect",
			dto.ConnectRequest{UserID: userID.String(), Code: "auth-code"})

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NotContains(t, w.Body.String(), "secret")
		assert.Contains(t, w.Body.String(), `"scope":"bookkeeping"`)
		conn.AssertExpectations(t)
	})

	t.Run("rejected code", func(t *testing.T) {
		conn := new(mockConnector)
		conn.On("Connect", mock.Anything, key, "bad", "https://other.example.com/cb").
			Return(nil, integration.NewError(integration.KindAuth, "invalid_grant"))
		h := NewIntegrationHandler(conn, integration.IntegrationFortnox, "https://app.example.com/callback")

		w := doJSON(newTestEngine(h), http.MethodPost, "/api/v1/integrations/fortnox/connect",
			dto.ConnectRequest{UserID: userID.String(), Code: "bad", RedirectURI: "https://other.example.com/cb"})

		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.Equal(t, dto.ErrCodeIntegrationAuth, decode(t, w).Error.Code)
	})

	t.Run("missing code", func(t *testing.T) {
		h := NewIntegrationHandler(new(mockConnector), integration.IntegrationFortnox, "")
		w := doJSON(newTestEngine(h), http.MethodPost, "/api/v1/integrations/fortnox/connect",
			map[string]string{"user_id": userID.String()})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
