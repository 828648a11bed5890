package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/blackrockpay/terminal-gateway/internal/payout_service/app"
	"github.com/blackrockpay/terminal-gateway/internal/payout_service/domain"
	"github.com/blackrockpay/terminal-gateway/internal/payout_service/repository"
	"github.com/blackrockpay/terminal-gateway/internal/terminal_service/middleware"
)

// SubmitPayoutRequestDTO is the payload for POST /payouts.
type SubmitPayoutRequestDTO struct {
	Destination          DestinationDTO `json:"destination" validate:"required"`
	SourceTransactionIDs []uuid.UUID    `json:"source_transaction_ids" validate:"required,min=1"`
}

// DestinationDTO mirrors domain.Destination for the wire.
type DestinationDTO struct {
	Type          string `json:"type" validate:"required,oneof=bank crypto"`
	AccountNumber string `json:"account_number,omitempty"`
	RoutingNumber string `json:"routing_number,omitempty"`
	HolderName    string `json:"holder_name,omitempty"`
	Address       string `json:"address,omitempty"`
	Network       string `json:"network,omitempty"`
}

// PayoutResponseDTO is the outward view of a payout.
type PayoutResponseDTO struct {
	ID                   uuid.UUID      `json:"id"`
	Amount               int64          `json:"amount"`
	Currency             string         `json:"currency"`
	Status               string         `json:"status"`
	Destination          DestinationDTO `json:"destination"`
	SourceTransactionIDs []uuid.UUID    `json:"source_transaction_ids"`
	FailureReason        string         `json:"failure_reason,omitempty"`
	CreatedAt            time.Time      `json:"created_at"`
	SubmittedAt          *time.Time     `json:"submitted_at,omitempty"`
	ConfirmedAt          *time.Time     `json:"confirmed_at,omitempty"`
}

func toPayoutDTO(p *domain.Payout) PayoutResponseDTO {
	return PayoutResponseDTO{
		ID:       p.ID,
		Amount:   p.Amount,
		Currency: p.Currency,
		Status:   string(p.Status),
		Destination: DestinationDTO{
			Type:          string(p.Destination.Type),
			AccountNumber: p.Destination.AccountNumber,
			RoutingNumber: p.Destination.RoutingNumber,
			HolderName:    p.Destination.HolderName,
			Address:       p.Destination.Address,
			Network:       p.Destination.Network,
		},
		SourceTransactionIDs: p.SourceTransactionIDs,
		FailureReason:        p.FailureReason,
		CreatedAt:            p.CreatedAt,
		SubmittedAt:          p.SubmittedAt,
		ConfirmedAt:          p.ConfirmedAt,
	}
}

// PayoutAPI is the slice of the payout service this handler uses.
type PayoutAPI interface {
	Submit(ctx context.Context, req app.SubmitRequest) (*domain.Payout, error)
	GetPayout(ctx context.Context, merchantID string, id uuid.UUID) (*domain.Payout, error)
	ListPayouts(ctx context.Context, merchantID string, limit, offset int) ([]domain.Payout, error)
}

// PayoutHandler handles the merchant-facing payout API.
type PayoutHandler struct {
	service  PayoutAPI
	logger   *slog.Logger
	validate *validator.Validate
}

func NewPayoutHandler(service PayoutAPI, logger *slog.Logger, validate *validator.Validate) *PayoutHandler {
	return &PayoutHandler{
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
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidDestination),
		errors.Is(err, app.ErrNoSources):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrIneligibleTransaction),
		errors.Is(err, domain.ErrCurrencyMismatch),
		errors.Is(err, domain.ErrAlreadyPaidOut),
		errors.Is(err, repository.ErrStatusConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// RegisterRoutes sets up the routing for payout operations.
func (h *PayoutHandler) RegisterRoutes(r chi.Router) {
	r.Post("/payouts", h.SubmitPayout)
	r.Get("/payouts", h.ListPayouts)
	r.Get("/payouts/{payoutID}", h.GetPayout)
}

func (h *PayoutHandler) SubmitPayout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	merchantID, ok := middleware.MerchantFromContext(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Merchant identity missing")
		return
	}

	var reqDTO SubmitPayoutRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&reqDTO); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	defer r.Body.Close()

	if err := h.validate.Struct(reqDTO); err != nil {
		respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	payout, err := h.service.Submit(ctx, app.SubmitRequest{
		MerchantID: merchantID,
		Destination: domain.Destination{
			Type:          domain.DestinationType(reqDTO.Destination.Type),
			AccountNumber: reqDTO.Destination.AccountNumber,
			RoutingNumber: reqDTO.Destination.RoutingNumber,
			HolderName:    reqDTO.Destination.HolderName,
			Address:       reqDTO.Destination.Address,
			Network:       reqDTO.Destination.Network,
		},
		SourceTransactionIDs: reqDTO.SourceTransactionIDs,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "payout submission rejected", "merchant_id", merchantID, "error", err)
		respondWithError(w, mapServiceError(err), err.Error())
		return
	}

	respondWithJSON(w, http.StatusCreated, toPayoutDTO(payout))
}

func (h *PayoutHandler) GetPayout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	merchantID, ok := middleware.MerchantFromContext(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Merchant identity missing")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "payoutID"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid payout id")
		return
	}

	payout, err := h.service.GetPayout(ctx, merchantID, id)
	if err != nil {
		respondWithError(w, mapServiceError(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, toPayoutDTO(payout))
}

func (h *PayoutHandler) ListPayouts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	merchantID, ok := middleware.MerchantFromContext(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Merchant identity missing")
		return
	}

	limit := parseIntQuery(r, "limit", 50)
	offset := parseIntQuery(r, "offset", 0)

	payouts, err := h.service.ListPayouts(ctx, merchantID, limit, offset)
	if err != nil {
		h.logger.ErrorContext(ctx, "list payouts failed", "merchant_id", merchantID, "error", err)
		respondWithError(w, mapServiceError(err), err.Error())
		return
	}

	out := make([]PayoutResponseDTO, len(payouts))
	for i := range payouts {
		out[i] = toPayoutDTO(&payouts[i])
	}
	respondWithJSON(w, http.StatusOK, out)
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
