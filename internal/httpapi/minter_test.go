package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestMinter(t *testing.T, handler http.HandlerFunc) *openaiMinter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return newOpenAIMinter(srv.URL, "sk-test", "gpt-4o-realtime-preview-2024-12-17", "alloy")
}

func TestMintRetriesTransientUpstreamFailure(t *testing.T) {
	orig := mintBackoff
	mintBackoff = time.Millisecond
	defer func() { mintBackoff = orig }()

	var calls int
	m := newTestMinter(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"client_secret": {"value": "ek_retry", "expires_at": 1}}`))
	})

	cred, err := m.Mint(context.Background())
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if calls != 2 {
		t.Errorf("upstream calls = %d, want 2", calls)
	}
	if !strings.Contains(string(cred), "ek_retry") {
		t.Errorf("cred = %s", cred)
	}
}

func TestMintDoesNotRetryAuthFailure(t *testing.T) {
	var calls int
	m := newTestMinter(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	})

	if _, err := m.Mint(context.Background()); err == nil {
		t.Fatal("expected error for 401")
	}
	if calls != 1 {
		t.Errorf("upstream calls = %d, want 1", calls)
	}
}

func TestMintGivesUpAfterRepeatedFailures(t *testing.T) {
	orig := mintBackoff
	mintBackoff = time.Millisecond
	defer func() { mintBackoff = orig }()

	var calls int
	m := newTestMinter(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	})

	if _, err := m.Mint(context.Background()); err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if calls != mintAttempts {
		t.Errorf("upstream calls = %d, want %d", calls, mintAttempts)
	}
}
