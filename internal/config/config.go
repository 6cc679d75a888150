package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BookingModeSingle = "single"
	BookingModePair   = "pair"

	SlotLayoutNinety = "ninety"
	SlotLayoutHourly = "hourly"

	AvailabilityPolicySlot = "slot"
	AvailabilityPolicyDay  = "day"
)

type Config struct {
	Env        string
	MongoURI   string
	MongoDB    string
	ServerAddr string

	FrontendOrigins []string
	ManageBaseURL   string

	// Booking variant knobs. Fixed per deployment, never per request.
	BookingMode        string
	SlotLayout         string
	AvailabilityPolicy string

	StripeSecretKey      string
	StripePublishableKey string

	RateLimitBooking   int
	RateLimitContact   int
	RateLimitWindowSec int

	RedisURL        string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	CacheTTLSeconds int

	AdminAPIKey       string
	AdminUser         string
	AdminPassword     string
	JWTSecret         string
	AccessTTLMinutes  int
	RefreshTTLMinutes int
	CookieSecure      bool

	BrevoAPIKey      string
	BrevoSenderEmail string
	BrevoSenderName  string
	BrevoSandbox     bool

	// Display timezone for emails. Slot arithmetic uses the fixed
	// service offset in the schedule package, not this.
	Timezone *time.Location
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	loc, err := time.LoadLocation(getEnv("TZ", "America/Chicago"))
	if err != nil {
		return nil, err
	}

	mongoURI := getEnv("MONGO_URI", "mongodb://localhost:27017/meridian")
	mongoDB := getEnv("MONGO_DB", "")
	if mongoDB == "" {
		mongoDB = mongoDBFromURI(mongoURI)
	}
	if mongoDB == "" {
		mongoDB = "meridian"
	}

	cfg := &Config{
		Env:                  getEnv("APP_ENV", "development"),
		MongoURI:             mongoURI,
		MongoDB:              mongoDB,
		ServerAddr:           getEnv("SERVER_ADDR", ":8080"),
		FrontendOrigins:      splitOrigins(getEnv("FRONTEND_ORIGINS", "http://localhost:3000")),
		ManageBaseURL:        strings.TrimRight(getEnv("MANAGE_BASE_URL", "http://localhost:3000/manage"), "/"),
		BookingMode:          getEnv("BOOKING_MODE", BookingModePair),
		SlotLayout:           getEnv("SLOT_LAYOUT", SlotLayoutNinety),
		AvailabilityPolicy:   getEnv("AVAILABILITY_POLICY", AvailabilityPolicySlot),
		StripeSecretKey:      strings.TrimSpace(getEnv("STRIPE_SECRET_KEY", "")),
		StripePublishableKey: strings.TrimSpace(getEnv("STRIPE_PUBLISHABLE_KEY", "")),
		RateLimitBooking:     getEnvInt("RATE_LIMIT_BOOKING", 10),
		RateLimitContact:     getEnvInt("RATE_LIMIT_CONTACT", 5),
		RateLimitWindowSec:   getEnvInt("RATE_LIMIT_WINDOW_SEC", 60),
		RedisURL:             getEnv("REDIS_URL", ""),
		RedisAddr:            getEnv("REDIS_ADDR", ""),
		RedisPassword:        getEnv("REDIS_PASSWORD", ""),
		RedisDB:              getEnvInt("REDIS_DB", 0),
		CacheTTLSeconds:      getEnvInt("CACHE_TTL_SECONDS", 60),
		AdminAPIKey:          getEnv("ADMIN_API_KEY", ""),
		AdminUser:            getEnv("ADMIN_USER", "admin"),
		AdminPassword:        getEnv("ADMIN_PASSWORD", ""),
		JWTSecret:            getEnv("JWT_SECRET", ""),
		AccessTTLMinutes:     getEnvInt("ACCESS_TTL_MINUTES", 15),
		RefreshTTLMinutes:    getEnvInt("REFRESH_TTL_MINUTES", 43200),
		CookieSecure:         getEnv("COOKIE_SECURE", "false") == "true",
		BrevoAPIKey:          getEnv("BREVO_API_KEY", ""),
		BrevoSenderEmail:     getEnv("BREVO_SENDER_EMAIL", ""),
		BrevoSenderName:      getEnv("BREVO_SENDER_NAME", ""),
		BrevoSandbox:         getEnv("BREVO_SANDBOX", "false") == "true",
		Timezone:             loc,
	}

	if cfg.BookingMode != BookingModeSingle && cfg.BookingMode != BookingModePair {
		return nil, fmt.Errorf("invalid BOOKING_MODE %q", cfg.BookingMode)
	}
	if cfg.SlotLayout != SlotLayoutNinety && cfg.SlotLayout != SlotLayoutHourly {
		return nil, fmt.Errorf("invalid SLOT_LAYOUT %q", cfg.SlotLayout)
	}
	if cfg.AvailabilityPolicy != AvailabilityPolicySlot && cfg.AvailabilityPolicy != AvailabilityPolicyDay {
		return nil, fmt.Errorf("invalid AVAILABILITY_POLICY %q", cfg.AvailabilityPolicy)
	}

	return cfg, nil
}

func splitOrigins(raw string) []string {
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			origins = append(origins, strings.TrimRight(p, "/"))
		}
	}
	return origins
}

func mongoDBFromURI(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return ""
	}
	db := strings.Trim(u.Path, "/")
	if db == "" {
		return ""
	}
	// mongodb URIs sometimes include extra path segments; only the first one is the db name.
	if idx := strings.Index(db, "/"); idx >= 0 {
		db = db[:idx]
	}
	return db
}
