// Package backend is the HTTP client tool handlers use to reach the query
// service endpoints.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/arohalabs/aroha/internal/geo"
	"github.com/arohalabs/aroha/internal/travel"
)

// APIError is a non-2xx reply from the query service. Message is the
// service's own error text, already safe to surface.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("query service returned status %d", e.StatusCode)
}

type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if method == http.MethodPost {
		raw := []byte("{}")
		if payload != nil {
			var err error
			raw, err = json.Marshal(payload)
			if err != nil {
				return fmt.Errorf("encode request: %w", err)
			}
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("query service request: %w", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		var fail struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(raw, &fail)
		return &APIError{StatusCode: res.StatusCode, Message: fail.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// SessionCredential is the short-lived realtime credential minted by the
// query service.
type SessionCredential struct {
	ClientSecret struct {
		Value     string `json:"value"`
		ExpiresAt int64  `json:"expires_at"`
	} `json:"client_secret"`
	Model string `json:"model"`
}

// CreateRealtimeSession mints an ephemeral realtime credential.
func (c *Client) CreateRealtimeSession(ctx context.Context) (SessionCredential, error) {
	var cred SessionCredential
	if err := c.do(ctx, http.MethodPost, "/api/session", nil, &cred); err != nil {
		return SessionCredential{}, err
	}
	if cred.ClientSecret.Value == "" {
		return SessionCredential{}, &APIError{StatusCode: http.StatusBadGateway, Message: "session response missing client secret"}
	}
	return cred, nil
}

// Directions resolves a driving route between two free-text locations.
func (c *Client) Directions(ctx context.Context, origin, destination string) (geo.Directions, error) {
	payload := map[string]string{"origin": origin, "destination": destination}

	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
		geo.Directions
	}
	if err := c.do(ctx, http.MethodPost, "/api/directions", payload, &resp); err != nil {
		return geo.Directions{}, err
	}
	if !resp.Success {
		return geo.Directions{}, &APIError{StatusCode: http.StatusOK, Message: resp.Error}
	}
	return resp.Directions, nil
}

// NearbyPlaces searches for places around a coordinate. An empty result is
// not an error; the accompanying message explains it.
func (c *Client) NearbyPlaces(ctx context.Context, center geo.LatLng, radiusMeters int, placeType string) ([]geo.Place, string, error) {
	payload := map[string]any{
		"latitude":  center.Lat,
		"longitude": center.Lng,
		"radius":    radiusMeters,
	}
	if placeType != "" {
		payload["type"] = placeType
	}

	var resp struct {
		Success bool        `json:"success"`
		Places  []geo.Place `json:"places"`
		Count   int         `json:"count"`
		Message string      `json:"message"`
		Error   string      `json:"error"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/places/nearby", payload, &resp); err != nil {
		return nil, "", err
	}
	if !resp.Success {
		return nil, "", &APIError{StatusCode: http.StatusOK, Message: resp.Error}
	}
	if resp.Places == nil {
		resp.Places = []geo.Place{}
	}
	return resp.Places, resp.Message, nil
}

type journeyPayload struct {
	FromLat    float64 `json:"fromLat"`
	FromLng    float64 `json:"fromLng"`
	ToLat      float64 `json:"toLat"`
	ToLng      float64 `json:"toLng"`
	DistanceKm float64 `json:"distanceKm"`
}

func newJourneyPayload(from, to geo.LatLng, distanceKm float64) journeyPayload {
	return journeyPayload{
		FromLat:    from.Lat,
		FromLng:    from.Lng,
		ToLat:      to.Lat,
		ToLng:      to.Lng,
		DistanceKm: distanceKm,
	}
}

// Journeys plans multi-modal journey options for a road distance.
func (c *Client) Journeys(ctx context.Context, from, to geo.LatLng, distanceKm float64) ([]travel.Journey, error) {
	var resp struct {
		Success  bool             `json:"success"`
		Journeys []travel.Journey `json:"journeys"`
		Error    string           `json:"error"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/transportation/journeys", newJourneyPayload(from, to, distanceKm), &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, &APIError{StatusCode: http.StatusOK, Message: resp.Error}
	}
	return resp.Journeys, nil
}

// CompareModes returns a flat per-mode fare comparison for a road distance.
func (c *Client) CompareModes(ctx context.Context, from, to geo.LatLng, distanceKm float64) ([]travel.TransportOption, error) {
	var resp struct {
		Success bool                     `json:"success"`
		Options []travel.TransportOption `json:"options"`
		Error   string                   `json:"error"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/transportation/compare", newJourneyPayload(from, to, distanceKm), &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, &APIError{StatusCode: http.StatusOK, Message: resp.Error}
	}
	return resp.Options, nil
}
