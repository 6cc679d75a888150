package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"meridian-backend/internal/admin"
	"meridian-backend/internal/appointment"
	"meridian-backend/internal/auth"
	"meridian-backend/internal/blackout"
	"meridian-backend/internal/cache"
	"meridian-backend/internal/config"
	"meridian-backend/internal/contact"
	"meridian-backend/internal/db"
	"meridian-backend/internal/middleware"
	"meridian-backend/internal/notifications"
	"meridian-backend/internal/payments"
	"meridian-backend/internal/validation"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client, cols, err := db.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		log.Error("mongo connect failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = client.Disconnect(shutdownCtx)
	}()

	if err := db.EnsureIndexes(ctx, cols); err != nil {
		log.Error("index creation failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	appCache := buildCache(ctx, cfg, log)

	tokens := &auth.Manager{
		Secret:     []byte(cfg.JWTSecret),
		AccessTTL:  time.Duration(cfg.AccessTTLMinutes) * time.Minute,
		RefreshTTL: time.Duration(cfg.RefreshTTLMinutes) * time.Minute,
		Issuer:     "meridian-backend",
	}
	var tokenManager *auth.Manager
	if cfg.JWTSecret != "" {
		tokenManager = tokens
	} else {
		log.Warn("JWT_SECRET not set, admin session auth disabled")
	}

	val := validation.New()

	var gateway appointment.PaymentGateway
	stripeGateway := payments.NewStripe(cfg.StripeSecretKey)
	if stripeGateway != nil {
		gateway = stripeGateway
	} else {
		log.Warn("STRIPE_SECRET_KEY not set, bookings will be rejected")
	}

	var notifier appointment.Notifier
	brevoClient := notifications.NewBrevoClient(cfg.BrevoAPIKey, cfg.BrevoSenderEmail, cfg.BrevoSenderName, cfg.BrevoSandbox)
	if brevoClient != nil {
		notifier = notifications.NewMailer(brevoClient, cfg.ManageBaseURL, cfg.Timezone)
	} else {
		log.Warn("Brevo not configured, transactional email disabled")
	}

	blackoutRepo := blackout.NewRepository(cols.BlackoutDates)
	apptRepo := appointment.NewRepository(cols.Appointments)
	apptService := appointment.NewService(apptRepo, gateway, blackoutRepo, cfg.SlotLayout, cfg.AvailabilityPolicy, appointment.PriceCents)

	cacheTTL := time.Duration(cfg.CacheTTLSeconds) * time.Second
	apptHandler := appointment.NewHandler(apptService, val, log, appCache, notifier, cfg.BookingMode, cacheTTL)
	paymentHandler := payments.NewHandler(stripeGateway, log)
	contactHandler := contact.NewHandler(contact.NewRepository(cols.ContactMessages), val, log)
	adminHandler := admin.NewHandler(
		admin.NewUserRepository(cols.Users),
		apptService,
		blackoutRepo,
		tokens,
		val,
		log,
		appCache,
		cfg.AdminUser,
		cfg.AdminPassword,
		cfg.CookieSecure,
	)

	bookingLimiter := middleware.NewRateLimiter(cfg.RateLimitBooking, time.Duration(cfg.RateLimitWindowSec)*time.Second)
	contactLimiter := middleware.NewRateLimiter(cfg.RateLimitContact, time.Duration(cfg.RateLimitWindowSec)*time.Second)

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(log))
	r.Use(middleware.CORS(cfg.FrontendOrigins))
	r.Use(chimiddleware.Timeout(30 * time.Second))

	api := func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":"ok"}`))
		})

		r.Route("/appointments", func(r chi.Router) {
			r.Get("/slots", apptHandler.Slots)
			r.With(bookingLimiter.Middleware).Post("/create", apptHandler.Create)
			r.Post("/reschedule", apptHandler.Reschedule)
			r.Post("/cancel", apptHandler.Cancel)
			r.Get("/{token}", apptHandler.Get)
		})

		r.Post("/payments/setup", paymentHandler.Setup)
		r.With(contactLimiter.Middleware).Post("/contact", contactHandler.Create)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/login", adminHandler.Login)
			r.Post("/refresh", adminHandler.Refresh)
			r.Post("/logout", adminHandler.Logout)

			r.Group(func(r chi.Router) {
				r.Use(middleware.AdminAuth(cfg.AdminAPIKey, tokenManager))
				r.Get("/appointments", adminHandler.ListAppointments)
				r.Post("/appointments/{id}/confirm", adminHandler.ConfirmAppointment)
				r.Get("/blackouts", adminHandler.ListBlackouts)
				r.Post("/blackouts", adminHandler.CreateBlackout)
				r.Delete("/blackouts/{date}", adminHandler.DeleteBlackout)
			})
		})
	}
	r.Route("/api", api)
	r.Route("/api/v1", api)

	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("server listening",
			slog.String("addr", cfg.ServerAddr),
			slog.String("env", cfg.Env),
			slog.String("booking_mode", cfg.BookingMode),
			slog.String("slot_layout", cfg.SlotLayout),
			slog.String("availability_policy", cfg.AvailabilityPolicy),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", slog.String("error", err.Error()))
	}
}

func buildCache(ctx context.Context, cfg *config.Config, log *slog.Logger) cache.Cache {
	var rc *cache.RedisCache
	switch {
	case cfg.RedisURL != "":
		c, err := cache.NewRedisFromURL(cfg.RedisURL)
		if err != nil {
			log.Warn("redis url invalid, caching disabled", slog.String("error", err.Error()))
			return cache.NewNoop()
		}
		rc = c
	case cfg.RedisAddr != "":
		rc = cache.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	default:
		log.Info("redis not configured, caching disabled")
		return cache.NewNoop()
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rc.Ping(pingCtx); err != nil {
		log.Warn("redis unreachable, caching disabled", slog.String("error", err.Error()))
		return cache.NewNoop()
	}
	return rc
}
