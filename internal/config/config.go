package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains runtime configuration values.
type Config struct {
	Environment       string
	HTTPPort          string
	DatabaseURL       string
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	ServiceName       string
	RateLimitRPM      int
	TelemetryEndpoint string
	TelemetryInsecure bool

	// One-time-code tunables.
	OTPCodeTTL      time.Duration
	OTPResendWindow time.Duration
	OTPMaxAttempts  int

	SessionTokenTTL time.Duration

	// RequestTimeout bounds the backend calls (Postgres, Redis) made
	// by one auth operation.
	RequestTimeout time.Duration

	// SMTP delivery. An empty host means no delivery is configured and
	// issued codes are logged instead of sent.
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SendTimeout  time.Duration
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Environment:       getEnv("APP_ENV", "development"),
		HTTPPort:          getEnv("HTTP_PORT", "8080"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		RedisAddr:         getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		RedisDB:           getInt("REDIS_DB", 0),
		ServiceName:       getEnv("SERVICE_NAME", "platewise-auth"),
		RateLimitRPM:      getInt("RATE_LIMIT_RPM", 600),
		TelemetryEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure: getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTPCodeTTL:        getDuration("OTP_CODE_TTL", 5*time.Minute),
		OTPResendWindow:   getDuration("OTP_RESEND_WINDOW", time.Minute),
		OTPMaxAttempts:    getInt("OTP_MAX_ATTEMPTS", 5),
		SessionTokenTTL:   getDuration("SESSION_TOKEN_TTL", 30*24*time.Hour),
		RequestTimeout:    getDuration("REQUEST_TIMEOUT", 15*time.Second),
		SMTPHost:          os.Getenv("SMTP_HOST"),
		SMTPPort:          getInt("SMTP_PORT", 587),
		SMTPUsername:      os.Getenv("SMTP_USERNAME"),
		SMTPPassword:      os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:          getEnv("SMTP_FROM", "no-reply@platewise.app"),
		SendTimeout:       getDuration("SMTP_SEND_TIMEOUT", 10*time.Second),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.OTPMaxAttempts < 1 {
		cfg.OTPMaxAttempts = 1
	}

	return cfg, nil
}

// MailConfigured reports whether a delivery capability is available.
func (c Config) MailConfigured() bool {
	return strings.TrimSpace(c.SMTPHost) != ""
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}
