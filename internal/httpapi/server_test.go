package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/arohalabs/aroha/internal/config"
	"github.com/arohalabs/aroha/internal/geo"
	"github.com/arohalabs/aroha/internal/memory"
	"github.com/arohalabs/aroha/internal/protocol"
	"github.com/arohalabs/aroha/internal/session"
)

type fakeMinter struct {
	payload string
	err     error
}

func (m *fakeMinter) Mint(context.Context) (json.RawMessage, error) {
	if m.err != nil {
		return nil, m.err
	}
	return json.RawMessage(m.payload), nil
}

func testServer(t *testing.T, mapsBody map[string]string) *Server {
	t.Helper()
	maps := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := mapsBody[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(maps.Close)

	cfg := config.Config{
		GoogleMapsAPIKey:  "maps-key",
		SessionRateLimit:  3,
		SessionRateWindow: time.Minute,
		APIRateLimit:      1000,
		AllowAnyOrigin:    true,
	}
	srv := New(cfg, zerolog.Nop(), session.NewManager(time.Minute), geo.NewClient(maps.URL, "maps-key"), memory.NewInMemoryStore(), nil, nil)
	srv.SetMinter(&fakeMinter{payload: `{"client_secret": {"value": "ek_test", "expires_at": 1}}`})
	return srv
}

func doGet(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func doPost(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndReady(t *testing.T) {
	router := testServer(t, nil).Router()
	if rec := doGet(t, router, "/healthz"); rec.Code != http.StatusOK {
		t.Errorf("healthz = %d", rec.Code)
	}
	rec := doGet(t, router, "/readyz")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "maps_configured") {
		t.Errorf("readyz = %d %s", rec.Code, rec.Body.String())
	}
}

func TestCreateSession(t *testing.T) {
	router := testServer(t, nil).Router()
	req := httptest.NewRequest(http.MethodPost, "/api/session", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		ClientSecret struct {
			Value string `json:"value"`
		} `json:"client_secret"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ClientSecret.Value != "ek_test" {
		t.Errorf("secret = %q", resp.ClientSecret.Value)
	}
}

func TestCreateSessionRateLimited(t *testing.T) {
	router := testServer(t, nil).Router()
	var last int
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/session", nil)
		req.RemoteAddr = "10.1.2.3:5555"
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("5th request status = %d, want 429", last)
	}

	// A different client is not affected.
	req := httptest.NewRequest(http.MethodPost, "/api/session", nil)
	req.RemoteAddr = "10.9.9.9:5555"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("other client status = %d", rec.Code)
	}
}

func TestCreateSessionMissingKey(t *testing.T) {
	srv := testServer(t, nil)
	srv.SetMinter(&fakeMinter{err: errNoAPIKey})
	req := httptest.NewRequest(http.MethodPost, "/api/session", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError || !strings.Contains(rec.Body.String(), "API key") {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
}

func TestDirectionsEndpoint(t *testing.T) {
	router := testServer(t, map[string]string{
		"/maps/api/directions/json": `{"status": "OK", "routes": [{"overview_polyline": {"points": "xyz"}, "bounds": {"northeast": {"lat": 13.0, "lng": 77.7}, "southwest": {"lat": 12.9, "lng": 77.6}}, "legs": [{"start_address": "A", "end_address": "B", "start_location": {"lat": 12.9, "lng": 77.6}, "end_location": {"lat": 13.0, "lng": 77.7}, "distance": {"text": "5 km", "value": 5000}, "duration": {"text": "15 mins", "value": 900}}]}]}`,
	}).Router()

	rec := doPost(t, router, "/api/directions", `{"origin": "A", "destination": "B"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Success       bool          `json:"success"`
		Route         geo.RoutePath `json:"route"`
		Distance      string        `json:"distance"`
		Duration      string        `json:"duration"`
		StartAddress  string        `json:"startAddress"`
		EndAddress    string        `json:"endAddress"`
		StartLocation geo.LatLng    `json:"startLocation"`
		EndLocation   geo.LatLng    `json:"endLocation"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.Route.Polyline != "xyz" || resp.Route.Bounds.Northeast.Lat != 13.0 {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Distance != "5 km" || resp.Duration != "15 mins" {
		t.Errorf("distance = %q duration = %q", resp.Distance, resp.Duration)
	}
	if resp.StartAddress != "A" || resp.EndAddress != "B" || resp.EndLocation.Lng != 77.7 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestDirectionsNoRoute(t *testing.T) {
	router := testServer(t, map[string]string{
		"/maps/api/directions/json": `{"status": "ZERO_RESULTS", "routes": []}`,
	}).Router()

	rec := doPost(t, router, "/api/directions", `{"origin": "A", "destination": "B"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "No route found") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestDirectionsMissingParams(t *testing.T) {
	router := testServer(t, nil).Router()
	if rec := doPost(t, router, "/api/directions", `{"origin": "A"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestNearbyPlacesEmptyHasMessage(t *testing.T) {
	router := testServer(t, map[string]string{
		"/maps/api/place/nearbysearch/json": `{"status": "ZERO_RESULTS", "results": []}`,
	}).Router()

	rec := doPost(t, router, "/api/places/nearby", `{"latitude": 12.9, "longitude": 77.6, "type": "cafe"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Success bool   `json:"success"`
		Count   int    `json:"count"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.Count != 0 || resp.Message == "" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestJourneysEndpoint(t *testing.T) {
	router := testServer(t, nil).Router()
	rec := doPost(t, router, "/api/transportation/journeys", `{"fromLat": 12.9, "fromLng": 77.6, "toLat": 13.2, "toLng": 77.7, "distanceKm": 8}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Success  bool `json:"success"`
		Journeys []struct {
			JourneyName string  `json:"journeyName"`
			TotalFare   float64 `json:"totalFare"`
		} `json:"journeys"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || len(resp.Journeys) == 0 || resp.Journeys[0].JourneyName == "" {
		t.Errorf("resp = %+v", resp)
	}

	if rec := doPost(t, router, "/api/transportation/journeys", `{"fromLat": 12.9, "fromLng": 77.6, "toLat": 13.2, "toLng": 77.7, "distanceKm": -1}`); rec.Code != http.StatusBadRequest {
		t.Errorf("negative distance status = %d", rec.Code)
	}
	if rec := doPost(t, router, "/api/transportation/journeys", `{"distanceKm": 8}`); rec.Code != http.StatusBadRequest {
		t.Errorf("missing coordinates status = %d", rec.Code)
	}
}

func TestCompareEndpoint(t *testing.T) {
	router := testServer(t, nil).Router()
	rec := doPost(t, router, "/api/transportation/compare", `{"fromLat": 12.9, "fromLng": 77.6, "toLat": 13.2, "toLng": 77.7, "distanceKm": 6}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"options"`) || !strings.Contains(rec.Body.String(), "Namma Metro") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestUserEndpoint(t *testing.T) {
	router := testServer(t, nil).Router()

	rec := doGet(t, router, "/api/user")
	if !strings.Contains(rec.Body.String(), `"authenticated":false`) {
		t.Errorf("anonymous body = %s", rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/api/user", nil)
	req.Header.Set("X-Forwarded-User", "asha")
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req)
	if !strings.Contains(rec2.Body.String(), "asha") {
		t.Errorf("authenticated body = %s", rec2.Body.String())
	}
}

type echoBridge struct {
	received chan any
}

func (b *echoBridge) RunConnection(ctx context.Context, inbound <-chan any, outbound chan<- any) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-inbound:
			if !ok {
				return nil
			}
			b.received <- msg
			outbound <- protocol.SessionState{Type: protocol.TypeSessionState, Phase: "active"}
		}
	}
}

func TestWebsocketBridge(t *testing.T) {
	srv := testServer(t, nil)
	bridge := &echoBridge{received: make(chan any, 4)}
	srv.bridge = bridge

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]string{"type": "client_control", "action": "start"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case msg := <-bridge.received:
		ctrl, ok := msg.(protocol.ClientControl)
		if !ok || ctrl.Action != "start" {
			t.Fatalf("bridge got %#v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("bridge never received the control message")
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var state struct {
		Type  string `json:"type"`
		Phase string `json:"phase"`
	}
	if err := conn.ReadJSON(&state); err != nil {
		t.Fatalf("read: %v", err)
	}
	if state.Type != "session_state" || state.Phase != "active" {
		t.Errorf("state = %+v", state)
	}
}

func TestWebsocketRejectsInvalidMessage(t *testing.T) {
	srv := testServer(t, nil)
	srv.bridge = &echoBridge{received: make(chan any, 4)}

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type": "bogus"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var errEvent struct {
		Type string `json:"type"`
		Code string `json:"code"`
	}
	if err := conn.ReadJSON(&errEvent); err != nil {
		t.Fatalf("read: %v", err)
	}
	if errEvent.Type != "error_event" || errEvent.Code != "invalid_client_message" {
		t.Errorf("error event = %+v", errEvent)
	}
}
