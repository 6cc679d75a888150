package admin

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"meridian-backend/internal/appointment"
	"meridian-backend/internal/auth"
	"meridian-backend/internal/blackout"
	"meridian-backend/internal/cache"
	"meridian-backend/internal/httpx"
	"meridian-backend/internal/middleware"
	"meridian-backend/internal/transport"
	"meridian-backend/internal/validation"

	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

const RefreshCookie = "meridian_refresh"

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type Handler struct {
	users        UserRepository
	appointments *appointment.Service
	blackouts    blackout.Repository
	tokens       *auth.Manager
	val          *validation.Validator
	log          *slog.Logger
	cache        cache.Cache

	// Env fallback credentials for deployments without a seeded user.
	fallbackUser     string
	fallbackPassword string
	cookieSecure     bool
}

func NewHandler(
	users UserRepository,
	appointments *appointment.Service,
	blackouts blackout.Repository,
	tokens *auth.Manager,
	val *validation.Validator,
	log *slog.Logger,
	c cache.Cache,
	fallbackUser, fallbackPassword string,
	cookieSecure bool,
) *Handler {
	if c == nil {
		c = cache.NewNoop()
	}
	return &Handler{
		users:            users,
		appointments:     appointments,
		blackouts:        blackouts,
		tokens:           tokens,
		val:              val,
		log:              log,
		cache:            c,
		fallbackUser:     fallbackUser,
		fallbackPassword: fallbackPassword,
		cookieSecure:     cookieSecure,
	}
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type blackoutRequest struct {
	Date   string `json:"date" validate:"required,date"`
	Reason string `json:"reason"`
}

func (h *Handler) logWithRequest(r *http.Request) *slog.Logger {
	if id := middleware.RequestIDFromContext(r.Context()); id != "" {
		return h.log.With(slog.String("request_id", id))
	}
	return h.log
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)

	var req loginRequest
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		transport.WriteError(w, http.StatusBadRequest, "Missing credentials", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if !h.authenticate(ctx, req.Username, req.Password) {
		log.Warn("admin login: invalid credentials", slog.String("username", req.Username))
		transport.WriteError(w, http.StatusUnauthorized, "Invalid credentials", nil)
		return
	}

	if err := h.issueCookies(w); err != nil {
		log.Error("admin login: token error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "Failed to issue session", nil)
		return
	}

	log.Info("admin login: ok", slog.String("username", req.Username))
	transport.WriteSuccess(w, http.StatusOK, nil)
}

func (h *Handler) authenticate(ctx context.Context, username, password string) bool {
	if h.users != nil {
		u, err := h.users.GetByUsername(ctx, username)
		if err == nil {
			return auth.ComparePassword(u.PasswordHash, password) == nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			h.log.Error("admin login: user lookup error", slog.String("error", err.Error()))
			return false
		}
	}
	return h.fallbackPassword != "" &&
		username == h.fallbackUser &&
		password == h.fallbackPassword
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)

	cookie, err := r.Cookie(RefreshCookie)
	if err != nil {
		transport.WriteError(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	claims, err := h.tokens.Parse(cookie.Value)
	if err != nil || claims.Role != "admin" {
		transport.WriteError(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	if err := h.issueCookies(w); err != nil {
		log.Error("admin refresh: token error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "Failed to refresh session", nil)
		return
	}

	transport.WriteSuccess(w, http.StatusOK, nil)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.clearCookie(w, middleware.AccessCookie)
	h.clearCookie(w, RefreshCookie)
	transport.WriteSuccess(w, http.StatusOK, nil)
}

func (h *Handler) issueCookies(w http.ResponseWriter) error {
	access, err := h.tokens.NewAccessToken("admin")
	if err != nil {
		return err
	}
	refresh, err := h.tokens.NewRefreshToken("admin")
	if err != nil {
		return err
	}
	h.setCookie(w, middleware.AccessCookie, access, h.tokens.AccessTTL)
	h.setCookie(w, RefreshCookie, refresh, h.tokens.RefreshTTL)
	return nil
}

func (h *Handler) setCookie(w http.ResponseWriter, name, value string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)

	limit, offset, err := httpx.ParseLimitOffset(r.URL.Query(), defaultListLimit, maxListLimit)
	if err != nil {
		transport.WriteError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	filter := appointment.ListFilter{Status: r.URL.Query().Get("status")}
	if filter.Status != "" && !appointment.IsValidStatus(filter.Status) {
		transport.WriteError(w, http.StatusBadRequest, "invalid status filter", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	items, total, err := h.appointments.ListAdmin(ctx, filter, limit, offset)
	if err != nil {
		log.Error("admin appointments: error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "Failed to list appointments", nil)
		return
	}

	transport.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"appointments": items,
		"total":        total,
		"limit":        limit,
		"offset":       offset,
	})
}

type confirmRequest struct {
	Time string `json:"time" validate:"required,timestamp"`
}

// ConfirmAppointment pins one of a pair booking's candidate times as
// the binding appointment time.
func (h *Handler) ConfirmAppointment(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	id := chi.URLParam(r, "id")

	var req confirmRequest
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		transport.WriteError(w, http.StatusBadRequest, "Invalid confirmation time", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return
	}
	t, err := httpx.ParseTimestamp(req.Time)
	if err != nil {
		transport.WriteError(w, http.StatusBadRequest, "Invalid confirmation time", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	updated, err := h.appointments.ConfirmTime(ctx, id, t)
	if err != nil {
		if errors.Is(err, appointment.ErrNotFound) {
			transport.WriteError(w, http.StatusNotFound, "No live appointment with that candidate time", nil)
			return
		}
		log.Error("admin confirm: error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "Failed to confirm appointment time", nil)
		return
	}

	log.Info("admin confirm: ok",
		slog.String("appointment_id", updated.ID),
		slog.Time("confirmed_time", t),
	)
	transport.WriteSuccess(w, http.StatusOK, map[string]interface{}{
		"appointment": updated,
	})
}

func (h *Handler) ListBlackouts(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	items, err := h.blackouts.List(ctx)
	if err != nil {
		log.Error("admin blackouts: list error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "Failed to list blackout dates", nil)
		return
	}

	transport.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"blackouts": items,
	})
}

func (h *Handler) CreateBlackout(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)

	var req blackoutRequest
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		transport.WriteError(w, http.StatusBadRequest, "Invalid blackout date", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	b := blackout.Blackout{
		ID:        primitive.NewObjectID().Hex(),
		Date:      req.Date,
		Reason:    req.Reason,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.blackouts.Create(ctx, b); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			transport.WriteError(w, http.StatusConflict, "Blackout date already exists", nil)
			return
		}
		log.Error("admin blackouts: create error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "Failed to create blackout date", nil)
		return
	}

	_ = h.cache.DeletePrefix(r.Context(), "appointments:")

	log.Info("admin blackouts: created", slog.String("date", b.Date))
	transport.WriteSuccess(w, http.StatusCreated, map[string]interface{}{
		"blackout": b,
	})
}

func (h *Handler) DeleteBlackout(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)

	date := chi.URLParam(r, "date")
	if _, err := time.Parse(blackout.DateLayout, date); err != nil {
		transport.WriteError(w, http.StatusBadRequest, "Invalid blackout date", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	removed, err := h.blackouts.Delete(ctx, date)
	if err != nil {
		log.Error("admin blackouts: delete error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "Failed to delete blackout date", nil)
		return
	}
	if !removed {
		transport.WriteError(w, http.StatusNotFound, "Blackout date not found", nil)
		return
	}

	_ = h.cache.DeletePrefix(r.Context(), "appointments:")

	log.Info("admin blackouts: deleted", slog.String("date", date))
	transport.WriteSuccess(w, http.StatusOK, nil)
}
