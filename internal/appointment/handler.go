package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"meridian-backend/internal/cache"
	"meridian-backend/internal/httpx"
	"meridian-backend/internal/middleware"
	"meridian-backend/internal/transport"
	"meridian-backend/internal/validation"

	"github.com/go-chi/chi/v5"
)

const slotsCacheKey = "appointments:slots"

// Notifier sends the transactional emails around a booking's lifecycle.
// Failures are logged, never surfaced to the client.
type Notifier interface {
	SendBookingConfirmation(ctx context.Context, a Appointment) (string, error)
	SendCancellationNotice(ctx context.Context, a Appointment, refundCents int64, isFull bool) (string, error)
}

type Handler struct {
	service  *Service
	val      *validation.Validator
	log      *slog.Logger
	cache    cache.Cache
	notifier Notifier
	mode     string
	cacheTTL time.Duration
}

func NewHandler(service *Service, val *validation.Validator, log *slog.Logger, c cache.Cache, notifier Notifier, mode string, cacheTTL time.Duration) *Handler {
	if c == nil {
		c = cache.NewNoop()
	}
	return &Handler{
		service:  service,
		val:      val,
		log:      log,
		cache:    c,
		notifier: notifier,
		mode:     mode,
		cacheTTL: cacheTTL,
	}
}

type CreateRequest struct {
	Name            string `json:"name" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Phone           string `json:"phone" validate:"omitempty,phone"`
	Interest        string `json:"interest"`
	Notes           string `json:"notes"`
	SelectedTime    string `json:"selectedTime" validate:"omitempty,timestamp"`
	PrimaryTime     string `json:"primaryTime" validate:"omitempty,timestamp"`
	AlternateTime   string `json:"alternateTime" validate:"omitempty,timestamp"`
	PaymentMethodID string `json:"paymentMethodId" validate:"required"`
}

type RescheduleBody struct {
	Token            string `json:"token" validate:"required"`
	NewSelectedTime  string `json:"newSelectedTime" validate:"omitempty,timestamp"`
	NewPrimaryTime   string `json:"newPrimaryTime" validate:"omitempty,timestamp"`
	NewAlternateTime string `json:"newAlternateTime" validate:"omitempty,timestamp"`
}

type CancelBody struct {
	Token string `json:"token" validate:"required"`
}

// selection assembles the mode's tagged time selection from the raw
// request fields, enforcing per-shape required fields.
func (h *Handler) selection(selected, primary, alternate string) (TimeSelection, bool) {
	if h.mode == ModeSingle {
		t, err := httpx.ParseTimestamp(selected)
		if err != nil {
			return TimeSelection{}, false
		}
		return TimeSelection{Mode: ModeSingle, Scheduled: t}, true
	}

	p, err := httpx.ParseTimestamp(primary)
	if err != nil {
		return TimeSelection{}, false
	}
	alt, err := httpx.ParseTimestamp(alternate)
	if err != nil {
		return TimeSelection{}, false
	}
	return TimeSelection{Mode: ModePair, Primary: p, Alternate: alt}, true
}

func (h *Handler) Slots(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)

	if cached, ok, err := h.cache.Get(r.Context(), slotsCacheKey); err == nil && ok {
		log.Info("slots: cache hit")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(cached)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	slots, err := h.service.Slots(ctx)
	if err != nil {
		log.Error("slots: compute error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "Failed to fetch available slots", nil)
		return
	}

	response := map[string]interface{}{"slots": slots}
	if payload, err := json.Marshal(response); err == nil {
		_ = h.cache.Set(r.Context(), slotsCacheKey, payload, h.cacheTTL)
	}

	log.Info("slots: ok", slog.Int("count", len(slots)))
	transport.WriteJSON(w, http.StatusOK, response)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)

	var req CreateRequest
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("appointments create: invalid json")
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}

	if err := h.val.Struct(req); err != nil {
		log.Warn("appointments create: validation error")
		transport.WriteError(w, http.StatusBadRequest, "Missing required fields", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return
	}

	sel, ok := h.selection(req.SelectedTime, req.PrimaryTime, req.AlternateTime)
	if !ok {
		log.Warn("appointments create: missing time selection")
		transport.WriteError(w, http.StatusBadRequest, "Missing required fields", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	a, err := h.service.Book(ctx, BookRequest{
		Name:            req.Name,
		Email:           req.Email,
		Phone:           req.Phone,
		Interest:        req.Interest,
		Notes:           req.Notes,
		PaymentMethodID: req.PaymentMethodID,
		Selection:       sel,
	})
	if err != nil {
		h.writeBookError(w, log, err)
		return
	}

	_ = h.cache.Delete(r.Context(), slotsCacheKey)

	if h.notifier != nil {
		go h.sendConfirmation(a)
	}

	log.Info("appointments create: booked",
		slog.String("appointment_id", a.ID),
		slog.Time("effective_time", a.EffectiveTime()),
	)
	transport.WriteSuccess(w, http.StatusCreated, map[string]interface{}{
		"appointment": h.createdPayload(a),
	})
}

func (h *Handler) writeBookError(w http.ResponseWriter, log *slog.Logger, err error) {
	var orphaned *OrphanedChargeError
	switch {
	case errors.Is(err, ErrConflict):
		log.Warn("appointments create: slot conflict")
		transport.WriteError(w, http.StatusConflict, "This time slot is no longer available", nil)
	case errors.Is(err, ErrPaymentNotConfigured):
		log.Error("appointments create: payment gateway not configured")
		transport.WriteError(w, http.StatusInternalServerError, "Payment system not configured", nil)
	case errors.Is(err, ErrPaymentDeclined):
		log.Warn("appointments create: payment declined")
		transport.WriteError(w, http.StatusPaymentRequired, "Payment failed. Please try again.", nil)
	case errors.As(err, &orphaned):
		log.Error("appointments create: charge captured but appointment not persisted",
			slog.String("payment_id", orphaned.PaymentID),
			slog.String("error", orphaned.Err.Error()),
		)
		transport.WriteError(w, http.StatusInternalServerError, "Failed to create appointment", nil)
	default:
		log.Error("appointments create: error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "Failed to create appointment", nil)
	}
}

func (h *Handler) createdPayload(a Appointment) map[string]interface{} {
	payload := map[string]interface{}{
		"id":          a.ID,
		"manageToken": a.ManageToken,
	}
	if h.mode == ModeSingle {
		payload["scheduledTime"] = a.ScheduledTime
	} else {
		payload["primaryTime"] = a.PrimaryTime
		payload["alternateTime"] = a.AlternateTime
	}
	return payload
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	token := chi.URLParam(r, "token")
	if token == "" {
		transport.WriteError(w, http.StatusBadRequest, "missing token", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	a, err := h.service.Fetch(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			log.Warn("appointments get: not found")
			transport.WriteError(w, http.StatusNotFound, "Appointment not found", nil)
			return
		}
		log.Error("appointments get: error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "Failed to fetch appointment", nil)
		return
	}

	canReschedule, canCancel, refundPercent := Eligibility(a, h.service.now())

	response := map[string]interface{}{
		"name":          a.Name,
		"email":         a.Email,
		"status":        a.Status,
		"canReschedule": canReschedule,
		"canCancel":     canCancel,
		"refundPercent": refundPercent,
	}
	if h.mode == ModeSingle {
		response["scheduledTime"] = a.ScheduledTime
	} else {
		response["primaryTime"] = a.PrimaryTime
		response["alternateTime"] = a.AlternateTime
		response["confirmedTime"] = a.ConfirmedTime
	}

	log.Info("appointments get: ok", slog.String("appointment_id", a.ID))
	transport.WriteJSON(w, http.StatusOK, response)
}

func (h *Handler) Reschedule(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)

	var req RescheduleBody
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("appointments reschedule: invalid json")
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}

	if err := h.val.Struct(req); err != nil {
		log.Warn("appointments reschedule: validation error")
		transport.WriteError(w, http.StatusBadRequest, "Missing required fields", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return
	}

	sel, ok := h.selection(req.NewSelectedTime, req.NewPrimaryTime, req.NewAlternateTime)
	if !ok {
		log.Warn("appointments reschedule: missing time selection")
		transport.WriteError(w, http.StatusBadRequest, "Missing required fields", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	updated, err := h.service.Reschedule(ctx, RescheduleRequest{Token: req.Token, Selection: sel})
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			log.Warn("appointments reschedule: not found")
			transport.WriteError(w, http.StatusNotFound, "Appointment not found", nil)
		case errors.Is(err, ErrCancelled):
			log.Warn("appointments reschedule: already cancelled")
			transport.WriteError(w, http.StatusBadRequest, "Cannot reschedule a cancelled appointment", nil)
		case errors.Is(err, ErrReschedulePolicy):
			log.Warn("appointments reschedule: inside 48h window")
			transport.WriteError(w, http.StatusBadRequest, "Cannot reschedule within 48 hours of appointment. You can cancel for a 50% refund.", nil)
		case errors.Is(err, ErrConflict):
			log.Warn("appointments reschedule: slot conflict")
			transport.WriteError(w, http.StatusConflict, "One or both of your selected times are no longer available", nil)
		default:
			log.Error("appointments reschedule: error", slog.String("error", err.Error()))
			transport.WriteError(w, http.StatusInternalServerError, "Failed to reschedule appointment", nil)
		}
		return
	}

	_ = h.cache.Delete(r.Context(), slotsCacheKey)

	payload := map[string]interface{}{}
	if h.mode == ModeSingle {
		payload["scheduledTime"] = updated.ScheduledTime
	} else {
		payload["primaryTime"] = updated.PrimaryTime
		payload["alternateTime"] = updated.AlternateTime
	}

	log.Info("appointments reschedule: ok", slog.String("appointment_id", updated.ID))
	transport.WriteSuccess(w, http.StatusOK, map[string]interface{}{
		"appointment": payload,
	})
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)

	var req CancelBody
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("appointments cancel: invalid json")
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}

	if err := h.val.Struct(req); err != nil {
		log.Warn("appointments cancel: missing token")
		transport.WriteError(w, http.StatusBadRequest, "Missing token", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	result, err := h.service.Cancel(ctx, req.Token)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			log.Warn("appointments cancel: not found")
			transport.WriteError(w, http.StatusNotFound, "Appointment not found", nil)
		case errors.Is(err, ErrCancelled):
			log.Warn("appointments cancel: already cancelled")
			transport.WriteError(w, http.StatusBadRequest, "Appointment already cancelled", nil)
		case errors.Is(err, ErrPaymentNotConfigured):
			log.Error("appointments cancel: payment gateway not configured")
			transport.WriteError(w, http.StatusInternalServerError, "Payment system not configured", nil)
		default:
			log.Error("appointments cancel: error", slog.String("error", err.Error()))
			transport.WriteError(w, http.StatusInternalServerError, "Failed to cancel appointment", nil)
		}
		return
	}

	_ = h.cache.Delete(r.Context(), slotsCacheKey)

	if h.notifier != nil {
		go h.sendCancellation(result)
	}

	log.Info("appointments cancel: ok",
		slog.String("appointment_id", result.Appointment.ID),
		slog.Int64("refund_cents", result.RefundAmount),
		slog.Bool("full_refund", result.IsFullRefund),
	)
	transport.WriteSuccess(w, http.StatusOK, map[string]interface{}{
		"refundAmount": float64(result.RefundAmount) / 100,
		"isFullRefund": result.IsFullRefund,
	})
}

func (h *Handler) sendConfirmation(a Appointment) {
	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()

	messageID, err := h.notifier.SendBookingConfirmation(ctx, a)
	if err != nil {
		h.log.Warn("appointments email: confirmation failed",
			slog.String("appointment_id", a.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	h.log.Info("appointments email: confirmation sent",
		slog.String("appointment_id", a.ID),
		slog.String("message_id", messageID),
	)
}

func (h *Handler) sendCancellation(result CancelResult) {
	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()

	messageID, err := h.notifier.SendCancellationNotice(ctx, result.Appointment, result.RefundAmount, result.IsFullRefund)
	if err != nil {
		h.log.Warn("appointments email: cancellation notice failed",
			slog.String("appointment_id", result.Appointment.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	h.log.Info("appointments email: cancellation notice sent",
		slog.String("appointment_id", result.Appointment.ID),
		slog.String("message_id", messageID),
	)
}

func (h *Handler) logWithRequest(r *http.Request) *slog.Logger {
	if r == nil {
		return h.log
	}
	if id := middleware.RequestIDFromContext(r.Context()); id != "" {
		return h.log.With(slog.String("request_id", id))
	}
	return h.log
}
