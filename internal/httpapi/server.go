package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/arohalabs/aroha/internal/config"
	"github.com/arohalabs/aroha/internal/geo"
	"github.com/arohalabs/aroha/internal/memory"
	"github.com/arohalabs/aroha/internal/observability"
	"github.com/arohalabs/aroha/internal/protocol"
	"github.com/arohalabs/aroha/internal/session"
	"github.com/arohalabs/aroha/internal/travel"
)

// Bridge consumes one UI websocket connection's message channels.
type Bridge interface {
	RunConnection(ctx context.Context, inbound <-chan any, outbound chan<- any) error
}

type Server struct {
	cfg      config.Config
	log      zerolog.Logger
	sessions *session.Manager
	geo      *geo.Client
	store    memory.Store
	bridge   Bridge
	minter   CredentialMinter
	metrics  *observability.Metrics

	upgrader       websocket.Upgrader
	sessionLimiter *ipLimiter
	apiLimiter     *ipLimiter
}

func New(cfg config.Config, log zerolog.Logger, sessions *session.Manager, geoClient *geo.Client, store memory.Store, bridge Bridge, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:            cfg,
		log:            log,
		sessions:       sessions,
		geo:            geoClient,
		store:          store,
		bridge:         bridge,
		minter:         newOpenAIMinter(cfg.RealtimeSessionsURL, cfg.OpenAIAPIKey, cfg.RealtimeModel, cfg.RealtimeVoice),
		metrics:        metrics,
		sessionLimiter: newIPLimiter(cfg.SessionRateLimit, cfg.SessionRateWindow),
		apiLimiter:     newIPLimiter(cfg.APIRateLimit, time.Minute),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Default: only allow browser websocket connections from the
				// same origin, so another site cannot drive the user's map
				// and mic session.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

// SetMinter replaces the credential minter. Tests use this to avoid real
// upstream calls.
func (s *Server) SetMinter(m CredentialMinter) { s.minter = m }

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Route("/api", func(api chi.Router) {
		api.Use(s.rateLimitMiddleware)
		api.Post("/session", s.handleCreateSession)
		api.Post("/directions", s.handleDirections)
		api.Post("/places/nearby", s.handleNearbyPlaces)
		api.Post("/transportation/journeys", s.handleJourneys)
		api.Post("/transportation/compare", s.handleCompare)
		api.Get("/transcript", s.handleTranscript)
		api.Get("/user", s.handleUser)
		api.Post("/logout", s.handleLogout)
		api.Get("/perf", s.handlePerf)
	})

	r.Get("/ws", s.handleWS)

	return r
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.apiLimiter.allow(clientIP(r)) {
			respondError(w, http.StatusTooManyRequests, "rate_limited", "Too many requests. Try again later.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	status := map[string]any{
		"status":          "ready",
		"maps_configured": s.cfg.GoogleMapsAPIKey != "",
	}
	if sess, ok := s.sessions.Current(); ok {
		status["session_phase"] = string(sess.Phase)
	}
	respondJSON(w, http.StatusOK, status)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if !s.sessionLimiter.allow(clientIP(r)) {
		respondError(w, http.StatusTooManyRequests, "rate_limited", "Too many session requests. Try again later.")
		return
	}

	cred, err := s.minter.Mint(r.Context())
	if err != nil {
		if errors.Is(err, errNoAPIKey) {
			respondError(w, http.StatusInternalServerError, "missing_api_key", "Server API key not configured")
			return
		}
		s.log.Error().Err(err).Msg("mint realtime credential")
		respondError(w, http.StatusBadGateway, "session_create_failed", "Failed to create realtime session")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(cred)
}

func (s *Server) handleDirections(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Origin      string `json:"origin"`
		Destination string `json:"destination"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_body", "Request body must be JSON")
		return
	}
	req.Origin = strings.TrimSpace(req.Origin)
	req.Destination = strings.TrimSpace(req.Destination)
	if req.Origin == "" || req.Destination == "" {
		respondError(w, http.StatusBadRequest, "missing_params", "Origin and destination are required")
		return
	}

	d, err := s.geo.Directions(r.Context(), req.Origin, req.Destination)
	if err != nil {
		s.respondGeoError(w, "directions", err)
		return
	}
	respondJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		geo.Directions
	}{Success: true, Directions: d})
}

func (s *Server) handleNearbyPlaces(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
		Type      string   `json:"type"`
		Radius    int      `json:"radius"`
		Keyword   string   `json:"keyword"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_body", "Request body must be JSON")
		return
	}
	if req.Latitude == nil || req.Longitude == nil {
		respondError(w, http.StatusBadRequest, "missing_params", "Latitude and longitude are required")
		return
	}
	if req.Radius <= 0 {
		req.Radius = 1500
	}

	center := geo.LatLng{Lat: *req.Latitude, Lng: *req.Longitude}
	places, err := s.geo.NearbyPlaces(r.Context(), center, req.Radius, req.Type, req.Keyword)
	if err != nil {
		s.respondGeoError(w, "places", err)
		return
	}

	resp := map[string]any{"success": true, "places": places, "count": len(places)}
	if len(places) == 0 {
		resp["message"] = "No places found in this area. Try increasing the search radius or changing the location."
	}
	respondJSON(w, http.StatusOK, resp)
}

type journeyRequest struct {
	FromLat    *float64 `json:"fromLat"`
	FromLng    *float64 `json:"fromLng"`
	ToLat      *float64 `json:"toLat"`
	ToLng      *float64 `json:"toLng"`
	DistanceKm *float64 `json:"distanceKm"`
}

func parseJourneyRequest(r *http.Request) (float64, string) {
	var req journeyRequest
	if err := decodeBody(r, &req); err != nil {
		return 0, "Request body must be JSON"
	}
	if req.FromLat == nil || req.FromLng == nil || req.ToLat == nil || req.ToLng == nil || req.DistanceKm == nil {
		return 0, "Missing required parameters: fromLat, fromLng, toLat, toLng, distanceKm"
	}
	if *req.DistanceKm <= 0 {
		return 0, "distanceKm must be a positive number"
	}
	return *req.DistanceKm, ""
}

func (s *Server) handleJourneys(w http.ResponseWriter, r *http.Request) {
	distanceKm, errMsg := parseJourneyRequest(r)
	if errMsg != "" {
		respondError(w, http.StatusBadRequest, "invalid_params", errMsg)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"journeys": travel.PlanJourneys(distanceKm),
	})
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	distanceKm, errMsg := parseJourneyRequest(r)
	if errMsg != "" {
		respondError(w, http.StatusBadRequest, "invalid_params", errMsg)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"options": travel.CompareModes(distanceKm),
	})
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	return dec.Decode(v)
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		if sess, ok := s.sessions.Current(); ok {
			sessionID = sess.ID
		}
	}
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "missing_session_id", "session_id is required")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	turns, err := s.store.SessionTranscript(r.Context(), sessionID, limit)
	if err != nil {
		s.log.Error().Err(err).Msg("load transcript")
		respondError(w, http.StatusInternalServerError, "transcript_failed", "Failed to load transcript")
		return
	}
	if turns == nil {
		turns = []memory.TurnRecord{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "turns": turns})
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.Header.Get("X-Forwarded-User"))
	if name == "" {
		respondJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"user":          map[string]string{"name": name},
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handlePerf(w http.ResponseWriter, _ *http.Request) {
	if s.metrics == nil {
		respondJSON(w, http.StatusOK, map[string]any{
			"generated_at": "",
			"window_size":  0,
			"tools":        []any{},
		})
		return
	}
	respondJSON(w, http.StatusOK, s.metrics.ToolLatencySnapshot())
}

func (s *Server) respondGeoError(w http.ResponseWriter, service string, err error) {
	var se *geo.StatusError
	if errors.As(err, &se) {
		if s.metrics != nil {
			s.metrics.UpstreamErrors.WithLabelValues(service, se.Status).Inc()
		}
		status := http.StatusBadGateway
		if se.Status == "ZERO_RESULTS" || se.Status == "NOT_FOUND" {
			status = http.StatusNotFound
		}
		respondJSON(w, status, map[string]any{"success": false, "error": se.Message})
		return
	}
	s.log.Error().Err(err).Str("service", service).Msg("geo request failed")
	if s.metrics != nil {
		s.metrics.UpstreamErrors.WithLabelValues(service, "transport").Inc()
	}
	respondJSON(w, http.StatusBadGateway, map[string]any{"success": false, "error": "The maps service is unavailable right now."})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.bridge == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "bridge not configured")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if s.metrics != nil {
		s.metrics.SessionEvents.WithLabelValues("ws_connected").Inc()
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	inbound := make(chan any, 256)
	outbound := make(chan any, 256)
	runDone := make(chan struct{})

	go func() {
		defer close(runDone)
		_ = s.bridge.RunConnection(ctx, inbound, outbound)
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-outbound:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					cancel()
					return
				}
				if t, ok := messageTypeOf(msg); ok && s.metrics != nil {
					s.metrics.WSMessages.WithLabelValues("outbound", string(t)).Inc()
				}
			}
		}
	}()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			errEvent := protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				Code:      "invalid_client_message",
				Source:    "bridge",
				Retryable: false,
				Detail:    err.Error(),
			}
			select {
			case outbound <- errEvent:
			default:
				// Keep websocket writes single-threaded; drop if the
				// outbound queue is saturated.
			}
			continue
		}

		if t, ok := messageTypeOf(parsed); ok && s.metrics != nil {
			s.metrics.WSMessages.WithLabelValues("inbound", string(t)).Inc()
		}
		select {
		case <-ctx.Done():
			break readLoop
		case inbound <- parsed:
		}
	}

	cancel()
	close(inbound)
	<-runDone
	<-writerDone
	if s.metrics != nil {
		s.metrics.SessionEvents.WithLabelValues("ws_disconnected").Inc()
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.TranscriptTurn:
		return m.Type, true
	case protocol.AssistantDelta:
		return m.Type, true
	case protocol.SpeakingState:
		return m.Type, true
	case protocol.SessionState:
		return m.Type, true
	case protocol.PlacesUpdate:
		return m.Type, true
	case protocol.MapCommand:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	case protocol.ClientControl:
		return m.Type, true
	case protocol.MapReady:
		return m.Type, true
	case protocol.MapResult:
		return m.Type, true
	default:
		return "", false
	}
}
