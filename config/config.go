package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultAccessSecret = "change-me-in-production"

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	JWT        JWTConfig
	Payment    PaymentConfig
	Polling    PollingConfig
	Video      VideoConfig
	Cloudinary CloudinaryConfig
	Firebase   FirebaseConfig
	RateLimit  RateLimitConfig
}

type ServerConfig struct {
	Port         string
	Env          string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string
}

type DatabaseConfig struct {
	Driver          string // mysql, postgres, sqlite
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

type JWTConfig struct {
	AccessSecret string
	AccessExpiry time.Duration
	Issuer       string
}

// PaymentConfig configures the payment-link capability.
type PaymentConfig struct {
	Provider           string // checkout or stub
	BaseURL            string
	ClientID           string
	ClientSecret       string
	TokenURL           string
	WebhookSecret      string
	CommissionPercent  float64
	FallbackPriceCents int64
	Currency           string
	// AllowSelfReport lets a client's "I paid" confirmation open the gate
	// before the provider confirms. The report is audit-logged either way.
	AllowSelfReport   bool
	ReconcileInterval time.Duration
}

// PollingConfig holds the fixed poll intervals used by actor watchers.
type PollingConfig struct {
	RequestInterval  time.Duration
	MessageInterval  time.Duration
	LocationInterval time.Duration
	PaymentInterval  time.Duration
}

type VideoConfig struct {
	RoomBaseURL string
}

type CloudinaryConfig struct {
	CloudName string
	APIKey    string
	APISecret string
}

type FirebaseConfig struct {
	ServiceAccountPath string
}

type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[CONFIG] no .env file found, using environment")
	}
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8099"),
			Env:          getEnv("SERVER_ENV", "development"),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			CORSOrigins:  getEnvList("CORS_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			Driver:          getEnv("DB_DRIVER", "mysql"),
			DSN:             getEnv("DB_DSN", "carelink:carelink@tcp(localhost:3306)/carelink?charset=utf8mb4&parseTime=True&loc=UTC"),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", time.Hour),
		},
		JWT: JWTConfig{
			AccessSecret: getEnv("JWT_ACCESS_SECRET", defaultAccessSecret),
			AccessExpiry: getEnvDuration("JWT_ACCESS_EXPIRY", 15*time.Minute),
			Issuer:       getEnv("JWT_ISSUER", "carelink"),
		},
		Payment: PaymentConfig{
			Provider:           getEnv("PAYMENT_PROVIDER", "stub"),
			BaseURL:            getEnv("PAYMENT_BASE_URL", ""),
			ClientID:           getEnv("PAYMENT_CLIENT_ID", ""),
			ClientSecret:       getEnv("PAYMENT_CLIENT_SECRET", ""),
			TokenURL:           getEnv("PAYMENT_TOKEN_URL", ""),
			WebhookSecret:      getEnv("PAYMENT_WEBHOOK_SECRET", ""),
			CommissionPercent:  getEnvFloat("PAYMENT_COMMISSION_PERCENT", 10),
			FallbackPriceCents: int64(getEnvInt("PAYMENT_FALLBACK_PRICE_CENTS", 5000)),
			Currency:           getEnv("PAYMENT_CURRENCY", "USD"),
			AllowSelfReport:    getEnvBool("PAYMENT_ALLOW_SELF_REPORT", true),
			ReconcileInterval:  getEnvDuration("PAYMENT_RECONCILE_INTERVAL", 30*time.Second),
		},
		Polling: PollingConfig{
			RequestInterval:  getEnvDuration("POLL_REQUEST_INTERVAL", 4*time.Second),
			MessageInterval:  getEnvDuration("POLL_MESSAGE_INTERVAL", 3*time.Second),
			LocationInterval: getEnvDuration("POLL_LOCATION_INTERVAL", 5*time.Second),
			PaymentInterval:  getEnvDuration("POLL_PAYMENT_INTERVAL", 5*time.Second),
		},
		Video: VideoConfig{
			RoomBaseURL: getEnv("VIDEO_ROOM_BASE_URL", "https://meet.jit.si/"),
		},
		Cloudinary: CloudinaryConfig{
			CloudName: getEnv("CLOUDINARY_CLOUD_NAME", ""),
			APIKey:    getEnv("CLOUDINARY_API_KEY", ""),
			APISecret: getEnv("CLOUDINARY_API_SECRET", ""),
		},
		Firebase: FirebaseConfig{
			ServiceAccountPath: getEnv("FIREBASE_SERVICE_ACCOUNT_PATH", ""),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
			Burst:             getEnvInt("RATE_LIMIT_BURST", 40),
		},
	}
}

func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Warnings lists production settings that leave an endpoint open.
func (c *Config) Warnings() []string {
	if !c.IsProduction() {
		return nil
	}
	var out []string
	if c.Payment.WebhookSecret == "" {
		out = append(out, "PAYMENT_WEBHOOK_SECRET is empty: payment webhooks are accepted unsigned")
	}
	if c.JWT.AccessSecret == defaultAccessSecret {
		out = append(out, "JWT_ACCESS_SECRET is the built-in default")
	}
	return out
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
