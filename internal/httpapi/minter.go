package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/arohalabs/aroha/internal/reliability"
)

// CredentialMinter mints short-lived realtime credentials. The server API
// key stays on this side; only the ephemeral secret crosses to callers.
type CredentialMinter interface {
	Mint(ctx context.Context) (json.RawMessage, error)
}

var errNoAPIKey = errors.New("server API key not configured")

type openaiMinter struct {
	sessionsURL string
	apiKey      string
	model       string
	voice       string
	client      *http.Client
}

func newOpenAIMinter(sessionsURL, apiKey, model, voice string) *openaiMinter {
	return &openaiMinter{
		sessionsURL: strings.TrimSpace(sessionsURL),
		apiKey:      strings.TrimSpace(apiKey),
		model:       model,
		voice:       voice,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// mintAttempts bounds retries against transient upstream failures.
const mintAttempts = 3

var mintBackoff = 200 * time.Millisecond

func (m *openaiMinter) Mint(ctx context.Context) (json.RawMessage, error) {
	if m.apiKey == "" {
		return nil, errNoAPIKey
	}

	payload, err := json.Marshal(map[string]string{
		"model": m.model,
		"voice": m.voice,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal session request: %w", err)
	}

	backoff := mintBackoff
	var lastErr error
	for attempt := 0; attempt < mintAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		body, status, err := m.mintOnce(ctx, payload)
		if err != nil {
			return nil, err
		}
		if status >= 200 && status < 300 {
			if !json.Valid(body) {
				return nil, errors.New("sessions endpoint returned invalid JSON")
			}
			return json.RawMessage(body), nil
		}
		lastErr = fmt.Errorf("sessions endpoint status %d", status)
		if !reliability.IsRetryableHTTPStatus(status) {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

func (m *openaiMinter) mintOnce(ctx context.Context, payload []byte) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.sessionsURL, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, fmt.Errorf("create session request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	res, err := m.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("session request: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, 0, fmt.Errorf("read session response: %w", err)
	}
	return body, res.StatusCode, nil
}
