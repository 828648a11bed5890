package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/blackrockpay/terminal-gateway/internal/payout_service/app"
	"github.com/blackrockpay/terminal-gateway/internal/payout_service/domain"
	"github.com/blackrockpay/terminal-gateway/internal/payout_service/repository"
	"github.com/blackrockpay/terminal-gateway/internal/terminal_service/middleware"
)

type mockPayoutAPI struct {
	mock.Mock
}

func (m *mockPayoutAPI) Submit(ctx context.Context, req app.SubmitRequest) (*domain.Payout, error) {
	args := m.Called(ctx, req)
	if p, ok := args.Get(0).(*domain.Payout); ok {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockPayoutAPI) GetPayout(ctx context.Context, merchantID string, id uuid.UUID) (*domain.Payout, error) {
	args := m.Called(ctx, merchantID, id)
	if p, ok := args.Get(0).(*domain.Payout); ok {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockPayoutAPI) ListPayouts(ctx context.Context, merchantID string, limit, offset int) ([]domain.Payout, error) {
	args := m.Called(ctx, merchantID, limit, offset)
	if p, ok := args.Get(0).([]domain.Payout); ok {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

func newPayoutTestRouter(api PayoutAPI) chi.Router {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewPayoutHandler(api, logger, validator.New())
	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r
}

func asMerchant(req *http.Request, merchantID string) *http.Request {
	ctx := context.WithValue(req.Context(), middleware.AuthenticatedMerchantContextKey, merchantID)
	return req.WithContext(ctx)
}

func bankDestinationDTO() DestinationDTO {
	return DestinationDTO{
		Type:          "bank",
		AccountNumber: "000123456789",
		RoutingNumber: "021000021",
		HolderName:    "Acme Retail LLC",
	}
}

func TestPayoutHandler_SubmitPayout(t *testing.T) {
	api := new(mockPayoutAPI)
	router := newPayoutTestRouter(api)

	sources := []uuid.UUID{uuid.New(), uuid.New()}
	created := &domain.Payout{
		ID:                   uuid.New(),
		MerchantID:           "MERCH001",
		Amount:               12000,
		Currency:             "USD",
		Status:               domain.StatusPending,
		SourceTransactionIDs: sources,
	}
	api.On("Submit", mock.Anything, mock.MatchedBy(func(req app.SubmitRequest) bool {
		return req.MerchantID == "MERCH001" && len(req.SourceTransactionIDs) == 2
	})).Return(created, nil).Once()

	body, err := json.Marshal(SubmitPayoutRequestDTO{
		Destination:          bankDestinationDTO(),
		SourceTransactionIDs: sources,
	})
	require.NoError(t, err)

	req := asMerchant(httptest.NewRequest(http.MethodPost, "/payouts", bytes.NewReader(body)), "MERCH001")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)
	var dto PayoutResponseDTO
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &dto))
	assert.Equal(t, created.ID, dto.ID)
	assert.Equal(t, "PENDING", dto.Status)
	api.AssertExpectations(t)
}

func TestPayoutHandler_SubmitPayout_ValidationFailure(t *testing.T) {
	api := new(mockPayoutAPI)
	router := newPayoutTestRouter(api)

	// Missing sources and an unknown destination type.
	body := []byte(`{"destination":{"type":"cash"},"source_transaction_ids":[]}`)
	req := asMerchant(httptest.NewRequest(http.MethodPost, "/payouts", bytes.NewReader(body)), "MERCH001")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	api.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
}

func TestPayoutHandler_SubmitPayout_MissingMerchant(t *testing.T) {
	api := new(mockPayoutAPI)
	router := newPayoutTestRouter(api)

	body, err := json.Marshal(SubmitPayoutRequestDTO{
		Destination:          bankDestinationDTO(),
		SourceTransactionIDs: []uuid.UUID{uuid.New()},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/payouts", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestPayoutHandler_SubmitPayout_ServiceErrors(t *testing.T) {
	tests := []struct {
		name       string
		serviceErr error
		wantStatus int
	}{
		{"AlreadyPaidOut", domain.ErrAlreadyPaidOut, http.StatusConflict},
		{"Ineligible", domain.ErrIneligibleTransaction, http.StatusConflict},
		{"CurrencyMismatch", domain.ErrCurrencyMismatch, http.StatusConflict},
		{"InvalidDestination", fmt.Errorf("destination: %w", domain.ErrInvalidDestination), http.StatusBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			api := new(mockPayoutAPI)
			router := newPayoutTestRouter(api)
			api.On("Submit", mock.Anything, mock.Anything).Return(nil, tc.serviceErr).Once()

			body, err := json.Marshal(SubmitPayoutRequestDTO{
				Destination:          bankDestinationDTO(),
				SourceTransactionIDs: []uuid.UUID{uuid.New()},
			})
			require.NoError(t, err)

			req := asMerchant(httptest.NewRequest(http.MethodPost, "/payouts", bytes.NewReader(body)), "MERCH001")
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			assert.Equal(t, tc.wantStatus, rr.Code)
			api.AssertExpectations(t)
		})
	}
}

func TestPayoutHandler_GetPayout_Foreign(t *testing.T) {
	api := new(mockPayoutAPI)
	router := newPayoutTestRouter(api)

	id := uuid.New()
	api.On("GetPayout", mock.Anything, "MERCH002", id).
		Return(nil, fmt.Errorf("payout %s: %w", id, repository.ErrNotFound)).Once()

	req := asMerchant(httptest.NewRequest(http.MethodGet, "/payouts/"+id.String(), nil), "MERCH002")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	api.AssertExpectations(t)
}

func TestPayoutHandler_ListPayouts(t *testing.T) {
	api := new(mockPayoutAPI)
	router := newPayoutTestRouter(api)

	payouts := []domain.Payout{
		{ID: uuid.New(), Status: domain.StatusConfirmed, Amount: 12000, Currency: "USD"},
		{ID: uuid.New(), Status: domain.StatusPending, Amount: 4500, Currency: "USD"},
	}
	api.On("ListPayouts", mock.Anything, "MERCH001", 50, 0).Return(payouts, nil).Once()

	req := asMerchant(httptest.NewRequest(http.MethodGet, "/payouts", nil), "MERCH001")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var out []PayoutResponseDTO
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Len(t, out, 2)
	assert.Equal(t, "CONFIRMED", out[0].Status)
	api.AssertExpectations(t)
}
