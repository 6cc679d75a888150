package contact

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"meridian-backend/internal/httpx"
	"meridian-backend/internal/middleware"
	"meridian-backend/internal/transport"
	"meridian-backend/internal/validation"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Handler struct {
	repo Repository
	val  *validation.Validator
	log  *slog.Logger
}

func NewHandler(repo Repository, val *validation.Validator, log *slog.Logger) *Handler {
	return &Handler{repo: repo, val: val, log: log}
}

type createRequest struct {
	Name    string `json:"name" validate:"required"`
	Email   string `json:"email" validate:"required,email"`
	Phone   string `json:"phone" validate:"omitempty,phone"`
	Subject string `json:"subject"`
	Message string `json:"message" validate:"required"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	log := h.log
	if id := middleware.RequestIDFromContext(r.Context()); id != "" {
		log = log.With(slog.String("request_id", id))
	}

	var req createRequest
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("contact create: invalid json")
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}

	if err := h.val.Struct(req); err != nil {
		log.Warn("contact create: validation error")
		transport.WriteError(w, http.StatusBadRequest, "Missing required fields", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	m := Message{
		ID:        primitive.NewObjectID().Hex(),
		Name:      req.Name,
		Email:     req.Email,
		Phone:     req.Phone,
		Subject:   req.Subject,
		Message:   req.Message,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.repo.Create(ctx, m); err != nil {
		log.Error("contact create: error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "Failed to submit message", nil)
		return
	}

	log.Info("contact create: ok", slog.String("message_id", m.ID))
	transport.WriteSuccess(w, http.StatusCreated, map[string]interface{}{
		"id": m.ID,
	})
}
