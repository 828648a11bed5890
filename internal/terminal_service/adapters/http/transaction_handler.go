package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/blackrockpay/terminal-gateway/internal/terminal_service/app"
	"github.com/blackrockpay/terminal-gateway/internal/terminal_service/domain"
	"github.com/blackrockpay/terminal-gateway/internal/terminal_service/middleware"
	"github.com/blackrockpay/terminal-gateway/internal/terminal_service/repository"
)

// TransactionAPI is the slice of the transaction service this handler uses.
type TransactionAPI interface {
	Authorize(ctx context.Context, req app.AuthorizeRequest) (*domain.Transaction, error)
	GetTransaction(ctx context.Context, merchantID string, id uuid.UUID) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, merchantID string, limit, offset int) ([]domain.Transaction, error)
	Cancel(ctx context.Context, merchantID string, id uuid.UUID) (*domain.Transaction, error)
}

// TransactionHandler handles the merchant-facing transaction API.
type TransactionHandler struct {
	service  TransactionAPI
	logger   *slog.Logger
	validate *validator.Validate
}

func NewTransactionHandler(service TransactionAPI, logger *slog.Logger, validate *validator.Validate) *TransactionHandler {
	return &TransactionHandler{
		service:  service,
		logger:   logger,
		validate: validate,
	}
}

// Helper to respond with JSON
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			slog.Default().Error("Failed to write JSON response", "error", err)
		}
	}
}

// Helper to respond with an error
func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

// mapServiceError converts service errors to HTTP status codes.
func mapServiceError(err error) int {
	var illegal *domain.ErrIllegalTransition
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotTransactionOwner):
		// Existence of foreign transactions is not disclosed.
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnknownProtocol),
		errors.Is(err, domain.ErrUnsupportedCurrency),
		errors.Is(err, app.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrTerminalState),
		errors.Is(err, repository.ErrStateConflict),
		errors.As(err, &illegal):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// RegisterRoutes sets up the routing for transaction operations.
func (h *TransactionHandler) RegisterRoutes(r chi.Router) {
	r.Post("/transactions", h.CreateTransaction)
	r.Get("/transactions", h.ListTransactions)
	r.Get("/transactions/{transactionID}", h.GetTransaction)
	r.Post("/transactions/{transactionID}/cancel", h.CancelTransaction)
}

func (h *TransactionHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	merchantID, ok := middleware.MerchantFromContext(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Merchant identity missing")
		return
	}

	var reqDTO CreateTransactionRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&reqDTO); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	defer r.Body.Close()

	if err := h.validate.Struct(reqDTO); err != nil {
		respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	txn, err := h.service.Authorize(ctx, app.AuthorizeRequest{
		MerchantID: merchantID,
		TerminalID: reqDTO.TerminalID,
		Protocol:   reqDTO.Protocol,
		Amount:     reqDTO.Amount,
		Currency:   reqDTO.Currency,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "authorize failed", "merchant_id", merchantID, "error", err)
		respondWithError(w, mapServiceError(err), err.Error())
		return
	}

	respondWithJSON(w, http.StatusCreated, toTransactionDTO(txn))
}

func (h *TransactionHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	merchantID, ok := middleware.MerchantFromContext(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Merchant identity missing")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "transactionID"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid transaction id")
		return
	}

	txn, err := h.service.GetTransaction(ctx, merchantID, id)
	if err != nil {
		respondWithError(w, mapServiceError(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, toTransactionDTO(txn))
}

func (h *TransactionHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	merchantID, ok := middleware.MerchantFromContext(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Merchant identity missing")
		return
	}

	limit := parseIntQuery(r, "limit", 50)
	offset := parseIntQuery(r, "offset", 0)

	txns, err := h.service.ListTransactions(ctx, merchantID, limit, offset)
	if err != nil {
		h.logger.ErrorContext(ctx, "list transactions failed", "merchant_id", merchantID, "error", err)
		respondWithError(w, mapServiceError(err), err.Error())
		return
	}

	out := make([]TransactionResponseDTO, len(txns))
	for i := range txns {
		out[i] = toTransactionDTO(&txns[i])
	}
	respondWithJSON(w, http.StatusOK, out)
}

func (h *TransactionHandler) CancelTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	merchantID, ok := middleware.MerchantFromContext(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Merchant identity missing")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "transactionID"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid transaction id")
		return
	}

	txn, err := h.service.Cancel(ctx, merchantID, id)
	if err != nil {
		respondWithError(w, mapServiceError(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, toTransactionDTO(txn))
}

func parseIntQuery(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
