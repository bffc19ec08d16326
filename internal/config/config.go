package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Razorpay holds the payment gateway credentials. Empty key credentials put
// the gateway adapter into an explicit "not configured" state instead of
// failing at startup.
type Razorpay struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
	BaseURL       string
	Timeout       time.Duration
}

type Config struct {
	HTTPAddr    string
	DatabaseURL string
	JWTSecret   string
	JWTTTL      time.Duration
	AMQPURL     string
	TaxRate     float64
	Razorpay    Razorpay
}

// Load reads configuration from the environment. A .env file is applied
// first when present; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		HTTPAddr:    envOrDefault("HTTP_ADDR", ":8080"),
		DatabaseURL: envOrDefault("DATABASE_URL", "servicehub.db"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		JWTTTL:      durationOrDefault("JWT_TTL", 24*time.Hour),
		AMQPURL:     os.Getenv("AMQP_URL"),
		TaxRate:     floatOrDefault("TAX_RATE", 0.18),
		Razorpay: Razorpay{
			KeyID:         os.Getenv("RAZORPAY_KEY_ID"),
			KeySecret:     os.Getenv("RAZORPAY_KEY_SECRET"),
			WebhookSecret: os.Getenv("RAZORPAY_WEBHOOK_SECRET"),
			BaseURL:       envOrDefault("RAZORPAY_BASE_URL", "https://api.razorpay.com"),
			Timeout:       durationOrDefault("RAZORPAY_TIMEOUT", 15*time.Second),
		},
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is empty")
	}
	return cfg, nil
}

func envOrDefault(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func durationOrDefault(name string, def time.Duration) time.Duration {
	if v := os.Getenv(name); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func floatOrDefault(name string, def float64) float64 {
	if v := os.Getenv(name); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
