package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the travel voice service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool

	LogLevel  string
	LogFormat string

	OpenAIAPIKey        string
	RealtimeBaseURL     string
	RealtimeSessionsURL string
	RealtimeModel       string
	RealtimeVoice       string

	VADThreshold         float64
	VADPrefixPaddingMS   int
	VADSilenceDurationMS int

	GoogleMapsAPIKey string
	GoogleAPIBaseURL string

	// QueryServiceURL is where the tool dispatcher reaches the query
	// endpoints. Defaults to the service's own loopback address.
	QueryServiceURL string

	DatabaseURL string

	SessionInactivityTimeout time.Duration
	MapReadyTimeout          time.Duration
	ToolCallTimeout          time.Duration

	SessionRateLimit  int
	SessionRateWindow time.Duration
	APIRateLimit      int
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:            envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:    envOrDefault("APP_METRICS_NAMESPACE", "aroha"),
		AllowAnyOrigin:      false,
		LogLevel:            envOrDefault("APP_LOG_LEVEL", "info"),
		LogFormat:           envOrDefault("APP_LOG_FORMAT", "json"),
		OpenAIAPIKey:        stringsTrimSpace("OPENAI_API_KEY"),
		RealtimeBaseURL:     envOrDefault("REALTIME_BASE_URL", "https://api.openai.com/v1/realtime"),
		RealtimeSessionsURL: envOrDefault("REALTIME_SESSIONS_URL", "https://api.openai.com/v1/realtime/sessions"),
		RealtimeModel:       envOrDefault("REALTIME_MODEL", "gpt-4o-realtime-preview-2024-12-17"),
		RealtimeVoice:       envOrDefault("REALTIME_VOICE", "alloy"),
		// Server VAD defaults matched to the voice UX we tuned against.
		VADThreshold:             0.5,
		VADPrefixPaddingMS:       300,
		VADSilenceDurationMS:     500,
		GoogleMapsAPIKey:         stringsTrimSpace("GOOGLE_MAPS_API_KEY"),
		GoogleAPIBaseURL:         envOrDefault("GOOGLE_API_BASE_URL", "https://maps.googleapis.com"),
		QueryServiceURL:          envOrDefault("QUERY_SERVICE_URL", "http://127.0.0.1:8080"),
		DatabaseURL:              stringsTrimSpace("DATABASE_URL"),
		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 2 * time.Minute,
		MapReadyTimeout:          10 * time.Second,
		ToolCallTimeout:          30 * time.Second,
		SessionRateLimit:         5,
		SessionRateWindow:        15 * time.Minute,
		APIRateLimit:             30,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.MapReadyTimeout, err = durationFromEnv("APP_MAP_READY_TIMEOUT", cfg.MapReadyTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ToolCallTimeout, err = durationFromEnv("APP_TOOL_CALL_TIMEOUT", cfg.ToolCallTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionRateWindow, err = durationFromEnv("APP_SESSION_RATE_WINDOW", cfg.SessionRateWindow)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionRateLimit, err = intFromEnv("APP_SESSION_RATE_LIMIT", cfg.SessionRateLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.APIRateLimit, err = intFromEnv("APP_API_RATE_LIMIT", cfg.APIRateLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.VADThreshold, err = floatFromEnv("APP_VAD_THRESHOLD", cfg.VADThreshold)
	if err != nil {
		return Config{}, err
	}
	cfg.VADPrefixPaddingMS, err = intFromEnv("APP_VAD_PREFIX_PADDING_MS", cfg.VADPrefixPaddingMS)
	if err != nil {
		return Config{}, err
	}
	cfg.VADSilenceDurationMS, err = intFromEnv("APP_VAD_SILENCE_DURATION_MS", cfg.VADSilenceDurationMS)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.MapReadyTimeout <= 0 {
		return Config{}, fmt.Errorf("APP_MAP_READY_TIMEOUT must be positive")
	}
	if cfg.ToolCallTimeout <= 0 {
		return Config{}, fmt.Errorf("APP_TOOL_CALL_TIMEOUT must be positive")
	}
	if cfg.SessionRateLimit <= 0 {
		return Config{}, fmt.Errorf("APP_SESSION_RATE_LIMIT must be positive")
	}
	if cfg.VADThreshold < 0 || cfg.VADThreshold > 1 {
		return Config{}, fmt.Errorf("APP_VAD_THRESHOLD must be in [0,1]")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
