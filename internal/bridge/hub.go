// Package bridge connects the realtime session to the browser UI: it fans
// transcript and state events out over the websocket and relays map commands
// to the browser-hosted map surface.
package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/arohalabs/aroha/internal/geo"
	"github.com/arohalabs/aroha/internal/mapctl"
	"github.com/arohalabs/aroha/internal/observability"
	"github.com/arohalabs/aroha/internal/protocol"
	"github.com/arohalabs/aroha/internal/travel"
)

// Hub owns the single active UI connection. It implements the dispatcher's
// UI sink on one side and the map surface on the other.
type Hub struct {
	log     zerolog.Logger
	metrics *observability.Metrics
	stash   *Stash

	mu        sync.Mutex
	outbound  chan<- any
	gate      *mapctl.ReadyGate
	gateSetAt time.Time

	pendingMu sync.Mutex
	pending   map[string]chan protocol.MapResult

	onControl func(action string)
}

func NewHub(log zerolog.Logger, metrics *observability.Metrics) *Hub {
	return &Hub{
		log:     log,
		metrics: metrics,
		stash:   &Stash{},
		pending: make(map[string]chan protocol.MapResult),
	}
}

// Stash exposes the journey mailbox for tool hooks.
func (h *Hub) Stash() *Stash { return h.stash }

// SetControlHandler registers the callback for start/stop requests from the
// browser.
func (h *Hub) SetControlHandler(fn func(action string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onControl = fn
}

// SetGate installs the readiness gate for the session being started. The
// previous gate, if any, is failed so stale waiters are released.
func (h *Hub) SetGate(gate *mapctl.ReadyGate) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.gate != nil {
		h.gate.Fail(mapctl.ErrGateClosed)
	}
	h.gate = gate
	h.gateSetAt = time.Now()
}

// RunConnection consumes one websocket connection's channels until the
// inbound channel closes. Messages it cannot act on are logged and dropped.
func (h *Hub) RunConnection(ctx context.Context, inbound <-chan any, outbound chan<- any) error {
	h.mu.Lock()
	h.outbound = outbound
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		if h.gate != nil {
			h.gate.Fail(mapctl.ErrGateClosed)
			h.gate = nil
		}
		h.outbound = nil
		h.mu.Unlock()
		h.failPending()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-inbound:
			if !ok {
				return nil
			}
			switch m := msg.(type) {
			case protocol.ClientControl:
				h.mu.Lock()
				fn := h.onControl
				h.mu.Unlock()
				if fn != nil {
					fn(m.Action)
				}
			case protocol.MapReady:
				h.resolveGate()
			case protocol.MapResult:
				h.routeResult(m)
			default:
				h.log.Debug().Type("msg", msg).Msg("unhandled bridge message")
			}
		}
	}
}

func (h *Hub) resolveGate() {
	h.mu.Lock()
	gate := h.gate
	setAt := h.gateSetAt
	h.mu.Unlock()
	if gate == nil {
		h.log.Debug().Msg("map_ready with no active gate")
		return
	}
	gate.Resolve()
	if h.metrics != nil && !setAt.IsZero() {
		h.metrics.MapReadyLatency.Observe(time.Since(setAt).Seconds())
	}
}

func (h *Hub) routeResult(res protocol.MapResult) {
	h.pendingMu.Lock()
	ch, ok := h.pending[res.ID]
	if ok {
		delete(h.pending, res.ID)
	}
	h.pendingMu.Unlock()
	if !ok {
		h.log.Debug().Str("id", res.ID).Msg("map result for unknown command")
		return
	}
	ch <- res
}

func (h *Hub) failPending() {
	h.pendingMu.Lock()
	defer h.pendingMu.Unlock()
	for id, ch := range h.pending {
		close(ch)
		delete(h.pending, id)
	}
}

// send enqueues one message for the UI. Writes stay single-threaded in the
// websocket writer; a saturated queue drops the message rather than blocking
// the session.
func (h *Hub) send(msg any) {
	h.mu.Lock()
	out := h.outbound
	h.mu.Unlock()
	if out == nil {
		return
	}
	select {
	case out <- msg:
	default:
		h.log.Warn().Msg("ui outbound queue full, dropping message")
	}
}

// UISink implementation.

func (h *Hub) UserTranscript(text string) {
	h.send(protocol.TranscriptTurn{
		Type:   protocol.TypeTranscriptTurn,
		Text:   text,
		IsUser: true,
		TSMs:   time.Now().UnixMilli(),
	})
}

func (h *Hub) AssistantDelta(delta string) {
	h.send(protocol.AssistantDelta{Type: protocol.TypeAssistantDelta, Delta: delta})
}

// AssistantTranscript emits the committed assistant turn. If a tool handler
// stashed journey options during this turn they ride along with it.
func (h *Hub) AssistantTranscript(text string) {
	turn := protocol.TranscriptTurn{
		Type: protocol.TypeTranscriptTurn,
		Text: text,
		TSMs: time.Now().UnixMilli(),
	}
	if origin, destination, journeys, ok := h.stash.Take(); ok {
		turn.Origin = origin
		turn.Destination = destination
		turn.Journeys = journeys
	}
	h.send(turn)
}

func (h *Hub) Speaking(on bool) {
	h.send(protocol.SpeakingState{Type: protocol.TypeSpeakingState, Speaking: on})
}

func (h *Hub) Phase(phase, detail string) {
	h.send(protocol.SessionState{Type: protocol.TypeSessionState, Phase: phase, Detail: detail})
}

func (h *Hub) Failure(code, source, detail string, retryable bool) {
	h.send(protocol.ErrorEvent{
		Type:      protocol.TypeErrorEvent,
		Code:      code,
		Source:    source,
		Retryable: retryable,
		Detail:    detail,
	})
}

// JourneysPlanned is the tool hook: it deposits journeys for the in-flight
// turn and pushes them to the UI immediately.
func (h *Hub) JourneysPlanned(origin, destination string, journeys []travel.Journey) {
	h.stash.Put(origin, destination, journeys)
}

// PlacesFound is the tool hook for nearby search results.
func (h *Hub) PlacesFound(center geo.LatLng, places []geo.Place) {
	h.send(protocol.PlacesUpdate{
		Type:   protocol.TypePlacesUpdate,
		Places: places,
		Count:  len(places),
	})
}
