package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/arohalabs/aroha/internal/backend"
	"github.com/arohalabs/aroha/internal/bridge"
	"github.com/arohalabs/aroha/internal/config"
	"github.com/arohalabs/aroha/internal/logging"
	"github.com/arohalabs/aroha/internal/mapctl"
	"github.com/arohalabs/aroha/internal/memory"
	"github.com/arohalabs/aroha/internal/observability"
	"github.com/arohalabs/aroha/internal/policy"
	"github.com/arohalabs/aroha/internal/protocol"
	"github.com/arohalabs/aroha/internal/realtime"
	"github.com/arohalabs/aroha/internal/session"
	"github.com/arohalabs/aroha/internal/tools"
)

const assistantInstructions = "You are Aroha, a friendly voice travel assistant for getting around the city. " +
	"Use the map tools to show locations, routes and nearby places while you talk. " +
	"When the user asks how to get somewhere, fetch directions and compare transport options with fares in rupees. " +
	"Keep spoken answers short and conversational."

// Coordinator owns the voice session lifecycle. The browser asks to start or
// stop over the websocket; everything between those two requests happens here.
type Coordinator struct {
	cfg      config.Config
	sessions *session.Manager
	hub      *bridge.Hub
	api      *backend.Client
	store    memory.Store
	metrics  *observability.Metrics
	dial     func(ctx context.Context) (realtime.Transport, error)
	log      zerolog.Logger

	mu       sync.Mutex
	conn     realtime.Transport
	cancelFn context.CancelFunc
	runDone  chan struct{}
}

func NewCoordinator(cfg config.Config, log zerolog.Logger, sessions *session.Manager, hub *bridge.Hub, api *backend.Client, store memory.Store, metrics *observability.Metrics) *Coordinator {
	c := &Coordinator{
		cfg:      cfg,
		sessions: sessions,
		hub:      hub,
		api:      api,
		store:    store,
		metrics:  metrics,
		log:      log,
	}
	negotiator := realtime.NewNegotiator(realtime.NegotiatorConfig{
		API:         api,
		RealtimeURL: cfg.RealtimeBaseURL,
		Model:       cfg.RealtimeModel,
		Logger:      log,
	})
	c.dial = func(ctx context.Context) (realtime.Transport, error) {
		return negotiator.Connect(ctx)
	}
	return c
}

// HandleControl reacts to start/stop requests from the browser.
func (c *Coordinator) HandleControl(action string) {
	switch action {
	case "start":
		go c.startSession()
	case "stop":
		c.StopSession()
	default:
		c.log.Debug().Str("action", action).Msg("unknown control action")
	}
}

func (c *Coordinator) startSession() {
	sess, err := c.sessions.Begin()
	if errors.Is(err, session.ErrSessionActive) {
		// Starting over replaces the live session.
		c.StopSession()
		sess, err = c.sessions.Begin()
	}
	if err != nil {
		c.hub.Failure("session_start_failed", "session", "Could not replace the running voice session.", false)
		return
	}
	log := logging.WithSession(c.log, sess.ID)

	gate := mapctl.NewReadyGate(c.cfg.MapReadyTimeout)
	c.hub.SetGate(gate)

	registry := tools.New(c.hub, c.api, gate, tools.Hooks{
		JourneysPlanned: c.hub.JourneysPlanned,
		PlacesFound:     c.hub.PlacesFound,
	}, c.cfg.ToolCallTimeout)

	ctx, cancel := context.WithCancel(context.Background())

	conn, err := c.dial(ctx)
	if err != nil {
		cancel()
		stage := string(realtime.StageOf(err))
		_ = c.sessions.MarkFailed(sess.ID, stage)
		if c.metrics != nil {
			c.metrics.SessionEvents.WithLabelValues("negotiation_failed").Inc()
		}
		log.Error().Err(err).Str("stage", stage).Msg("session negotiation failed")
		c.hub.Failure("session_start_failed", stage, startFailureMessage(realtime.StageOf(err)), false)
		c.hub.Phase("failed", stage)
		return
	}

	runDone := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.cancelFn = cancel
	c.runDone = runDone
	c.mu.Unlock()

	_ = c.sessions.MarkConnected(sess.ID)
	if c.metrics != nil {
		c.metrics.ActiveSessions.Set(1)
		c.metrics.SessionEvents.WithLabelValues("started").Inc()
	}

	sink := &recordingSink{
		inner:     c.hub,
		store:     c.store,
		sessions:  c.sessions,
		sessionID: sess.ID,
		log:       log,
	}
	dispatcher := realtime.NewDispatcher(realtime.DispatcherConfig{
		Tools:        &countingRunner{inner: registry, sessions: c.sessions, sessionID: sess.ID},
		UI:           sink,
		Metrics:      c.metrics,
		Logger:       log,
		Instructions: assistantInstructions,
		Voice:        c.cfg.RealtimeVoice,
		VAD: protocol.TurnDetection{
			Type:              "server_vad",
			Threshold:         c.cfg.VADThreshold,
			PrefixPaddingMS:   c.cfg.VADPrefixPaddingMS,
			SilenceDurationMS: c.cfg.VADSilenceDurationMS,
		},
		Schemas:     registry.Schemas(),
		IdleTimeout: c.cfg.SessionInactivityTimeout,
	})

	go func() {
		defer cancel()
		if err := dispatcher.Run(ctx, conn); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("session ended with error")
		}
		_ = c.sessions.MarkClosed(sess.ID)
		if c.metrics != nil {
			c.metrics.ActiveSessions.Set(0)
			c.metrics.SessionEvents.WithLabelValues("closed").Inc()
		}
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
			c.cancelFn = nil
			c.runDone = nil
		}
		c.mu.Unlock()
		close(runDone)
	}()
}

// RunJanitor closes sessions that have gone quiet past the inactivity
// timeout. Blocks until ctx is cancelled.
func (c *Coordinator) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if id, ok := c.sessions.IdleExpired(now); ok {
				c.log.Info().Str("session_id", id).Msg("session idle, closing")
				if c.metrics != nil {
					c.metrics.SessionEvents.WithLabelValues("expired").Inc()
				}
				c.StopSession()
			}
		}
	}
}

// StopSession tears down the live session, if any, and waits for its run
// loop to finish so a follow-up start sees a settled session registry.
func (c *Coordinator) StopSession() {
	c.mu.Lock()
	conn := c.conn
	cancel := c.cancelFn
	runDone := c.runDone
	c.conn = nil
	c.cancelFn = nil
	c.runDone = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	if cancel != nil {
		cancel()
	}
	if runDone != nil {
		select {
		case <-runDone:
		case <-time.After(5 * time.Second):
			c.log.Warn().Msg("session run loop did not stop in time")
		}
	}
}

func startFailureMessage(stage realtime.Stage) string {
	switch stage {
	case realtime.StageCredential:
		return "Could not authorize a voice session. Check the server configuration."
	case realtime.StageAudio:
		return "Could not attach the audio pipeline for this session."
	case realtime.StageNegotiate:
		return "Could not establish the realtime connection. Start the session again to retry."
	default:
		return "Could not start the voice session."
	}
}

// recordingSink persists committed transcript turns before forwarding them
// to the UI. Text is scrubbed of PII on the way to storage; the live UI
// shows what was actually said.
type recordingSink struct {
	inner     realtime.UISink
	store     memory.Store
	sessions  *session.Manager
	sessionID string
	log       zerolog.Logger
}

func (s *recordingSink) persist(role, text string) {
	redacted, changed := policy.RedactPII(text)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.SaveTurn(ctx, memory.TurnRecord{
		SessionID:   s.sessionID,
		Role:        role,
		Content:     redacted,
		PIIRedacted: changed,
	}); err != nil {
		s.log.Warn().Err(err).Msg("persist transcript turn")
	}
	_ = s.sessions.Touch(s.sessionID)
}

func (s *recordingSink) UserTranscript(text string) {
	s.persist("user", text)
	s.inner.UserTranscript(text)
}

func (s *recordingSink) AssistantTranscript(text string) {
	s.persist("assistant", text)
	s.inner.AssistantTranscript(text)
}

func (s *recordingSink) AssistantDelta(delta string) { s.inner.AssistantDelta(delta) }
func (s *recordingSink) Speaking(on bool)            { s.inner.Speaking(on) }
func (s *recordingSink) Phase(phase, detail string)  { s.inner.Phase(phase, detail) }
func (s *recordingSink) Failure(code, source, detail string, retryable bool) {
	s.inner.Failure(code, source, detail, retryable)
}

// countingRunner bumps the session tool counter around dispatch.
type countingRunner struct {
	inner     realtime.ToolRunner
	sessions  *session.Manager
	sessionID string
}

func (r *countingRunner) Dispatch(ctx context.Context, name, args string) (string, tools.Outcome) {
	_ = r.sessions.RecordToolCall(r.sessionID)
	return r.inner.Dispatch(ctx, name, args)
}
