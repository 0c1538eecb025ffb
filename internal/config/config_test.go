package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Errorf("BindAddr = %q, want :8080", cfg.BindAddr)
	}
	if cfg.MapReadyTimeout != 10*time.Second {
		t.Errorf("MapReadyTimeout = %v, want 10s", cfg.MapReadyTimeout)
	}
	if cfg.RealtimeVoice != "alloy" {
		t.Errorf("RealtimeVoice = %q, want alloy", cfg.RealtimeVoice)
	}
	if cfg.VADThreshold != 0.5 {
		t.Errorf("VADThreshold = %v, want 0.5", cfg.VADThreshold)
	}
	if cfg.SessionRateLimit != 5 {
		t.Errorf("SessionRateLimit = %d, want 5", cfg.SessionRateLimit)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_BIND_ADDR", ":9090")
	t.Setenv("APP_MAP_READY_TIMEOUT", "3s")
	t.Setenv("APP_SESSION_RATE_LIMIT", "12")
	t.Setenv("APP_ALLOW_ANY_ORIGIN", "yes")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":9090" {
		t.Errorf("BindAddr = %q, want :9090", cfg.BindAddr)
	}
	if cfg.MapReadyTimeout != 3*time.Second {
		t.Errorf("MapReadyTimeout = %v, want 3s", cfg.MapReadyTimeout)
	}
	if cfg.SessionRateLimit != 12 {
		t.Errorf("SessionRateLimit = %d, want 12", cfg.SessionRateLimit)
	}
	if !cfg.AllowAnyOrigin {
		t.Errorf("AllowAnyOrigin = false, want true")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := []struct {
		key, value string
	}{
		{"APP_SESSION_INACTIVITY_TIMEOUT", "1s"},
		{"APP_MAP_READY_TIMEOUT", "-1s"},
		{"APP_SESSION_RATE_LIMIT", "0"},
		{"APP_VAD_THRESHOLD", "1.5"},
		{"APP_ALLOW_ANY_ORIGIN", "maybe"},
		{"APP_TOOL_CALL_TIMEOUT", "soon"},
	}
	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() with %s=%q succeeded, want error", tc.key, tc.value)
			}
		})
	}
}
