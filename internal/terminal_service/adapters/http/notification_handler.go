package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/blackrockpay/terminal-gateway/internal/terminal_service/domain"
	"github.com/blackrockpay/terminal-gateway/internal/terminal_service/middleware"
)

// NotificationAPI is the slice of the transaction service this handler uses.
type NotificationAPI interface {
	Notifications(ctx context.Context, merchantID string, limit int) ([]domain.Notification, error)
	AcknowledgeNotification(ctx context.Context, merchantID string, id uuid.UUID) error
}

// NotificationHandler exposes the merchant notification queue: poll the
// undelivered backlog, acknowledge what was consumed. Unacknowledged records
// are redelivered on the next poll.
type NotificationHandler struct {
	service NotificationAPI
	logger  *slog.Logger
}

func NewNotificationHandler(service NotificationAPI, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{service: service, logger: logger}
}

func (h *NotificationHandler) RegisterRoutes(r chi.Router) {
	r.Get("/notifications", h.ListNotifications)
	r.Post("/notifications/{notificationID}/ack", h.AcknowledgeNotification)
}

func (h *NotificationHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	merchantID, ok := middleware.MerchantFromContext(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Merchant identity missing")
		return
	}

	limit := parseIntQuery(r, "limit", 100)

	notes, err := h.service.Notifications(ctx, merchantID, limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "list notifications failed", "merchant_id", merchantID, "error", err)
		respondWithError(w, mapServiceError(err), err.Error())
		return
	}

	out := make([]NotificationResponseDTO, len(notes))
	for i := range notes {
		out[i] = toNotificationDTO(notes[i])
	}
	respondWithJSON(w, http.StatusOK, out)
}

func (h *NotificationHandler) AcknowledgeNotification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	merchantID, ok := middleware.MerchantFromContext(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Merchant identity missing")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "notificationID"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid notification id")
		return
	}

	if err := h.service.AcknowledgeNotification(ctx, merchantID, id); err != nil {
		respondWithError(w, mapServiceError(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusNoContent, nil)
}
