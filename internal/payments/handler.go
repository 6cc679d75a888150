package payments

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"meridian-backend/internal/middleware"
	"meridian-backend/internal/transport"
)

type Handler struct {
	gateway *StripeGateway
	log     *slog.Logger
}

func NewHandler(gateway *StripeGateway, log *slog.Logger) *Handler {
	return &Handler{gateway: gateway, log: log}
}

// Setup issues a SetupIntent client secret for the booking form.
func (h *Handler) Setup(w http.ResponseWriter, r *http.Request) {
	log := h.log
	if id := middleware.RequestIDFromContext(r.Context()); id != "" {
		log = log.With(slog.String("request_id", id))
	}

	if h.gateway == nil {
		log.Error("payments setup: stripe not configured")
		transport.WriteError(w, http.StatusInternalServerError, "Stripe not configured", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	secret, err := h.gateway.CreateSetupIntent(ctx)
	if err != nil {
		log.Error("payments setup: error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "Failed to create setup intent", nil)
		return
	}

	log.Info("payments setup: ok")
	transport.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"clientSecret": secret,
	})
}
