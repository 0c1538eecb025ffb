package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/arohalabs/aroha/internal/observability"
	"github.com/arohalabs/aroha/internal/protocol"
	"github.com/arohalabs/aroha/internal/reliability"
	"github.com/arohalabs/aroha/internal/tools"
)

// UISink receives session events destined for the browser bridge.
type UISink interface {
	UserTranscript(text string)
	AssistantDelta(delta string)
	AssistantTranscript(text string)
	Speaking(speaking bool)
	Phase(phase, detail string)
	Failure(code, source, detail string, retryable bool)
}

// ToolRunner executes one tool call and always yields a JSON result document.
type ToolRunner interface {
	Dispatch(ctx context.Context, name, argsJSON string) (string, tools.Outcome)
}

// DispatcherConfig wires a Dispatcher to its collaborators.
type DispatcherConfig struct {
	Tools        ToolRunner
	UI           UISink
	Metrics      *observability.Metrics
	Logger       zerolog.Logger
	Instructions string
	Voice        string
	VAD          protocol.TurnDetection
	Schemas      []protocol.ToolSchema
	IdleTimeout  time.Duration
}

var errTransportBeforeOpen = errors.New("transport closed before data channel opened")

// Dispatcher drives one realtime session: it configures the model when the
// data channel opens, routes transcripts to the UI, and runs tool calls.
type Dispatcher struct {
	cfg DispatcherConfig

	mu   sync.Mutex
	seen map[string]struct{}
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	return &Dispatcher{
		cfg:  cfg,
		seen: make(map[string]struct{}),
	}
}

// Run owns the transport until the session ends. It returns nil on a clean
// close and the causing error otherwise.
func (d *Dispatcher) Run(ctx context.Context, t Transport) error {
	log := d.cfg.Logger

	d.cfg.UI.Phase("awaiting_open", "")
	select {
	case <-t.Opened():
	case <-t.Done():
		d.cfg.UI.Phase("closed", "transport closed before opening")
		return TransportClosedError(errTransportBeforeOpen)
	case <-ctx.Done():
		_ = t.Close()
		return ctx.Err()
	}

	if err := t.Send(protocol.NewSessionUpdate(protocol.SessionConfig{
		Instructions:            d.cfg.Instructions,
		Voice:                   d.cfg.Voice,
		InputAudioTranscription: &protocol.AudioTranscription{Model: "whisper-1"},
		TurnDetection:           &d.cfg.VAD,
		Tools:                   d.cfg.Schemas,
		ToolChoice:              "auto",
	})); err != nil {
		_ = t.Close()
		return err
	}
	d.cfg.UI.Phase("active", "")
	if d.cfg.Metrics != nil {
		d.cfg.Metrics.SessionEvents.WithLabelValues("active").Inc()
	}

	idle := d.cfg.IdleTimeout
	if idle <= 0 {
		idle = time.Hour
	}
	idleTimer := time.NewTimer(idle)
	defer idleTimer.Stop()

	speaking := false
	setSpeaking := func(on bool) {
		if speaking == on {
			return
		}
		speaking = on
		d.cfg.UI.Speaking(on)
	}

	for {
		select {
		case <-ctx.Done():
			_ = t.Close()
			d.cfg.UI.Phase("closed", "context cancelled")
			return ctx.Err()
		case <-t.Done():
			setSpeaking(false)
			d.cfg.UI.Phase("closed", "")
			return nil
		case <-idleTimer.C:
			_ = t.Close()
			d.cfg.UI.Phase("closed", "session idle timeout")
			return nil
		case raw, ok := <-t.Events():
			if !ok {
				setSpeaking(false)
				d.cfg.UI.Phase("closed", "")
				return nil
			}
			if !idleTimer.Stop() {
				select {
				case <-idleTimer.C:
				default:
				}
			}
			idleTimer.Reset(idle)

			parsed, err := protocol.ParseServerEvent(raw)
			if err != nil {
				log.Debug().Err(err).Msg("drop malformed realtime event")
				continue
			}

			switch ev := parsed.(type) {
			case protocol.InputTranscriptionCompleted:
				if text := strings.TrimSpace(ev.Transcript); text != "" {
					d.cfg.UI.UserTranscript(text)
				}
			case protocol.AudioTranscriptDelta:
				setSpeaking(true)
				d.cfg.UI.AssistantDelta(ev.Delta)
			case protocol.AudioTranscriptDone:
				setSpeaking(false)
				if text := strings.TrimSpace(ev.Transcript); text != "" {
					d.cfg.UI.AssistantTranscript(text)
				}
			case protocol.FunctionCallArgumentsDone:
				d.launchToolCall(ctx, t, ev)
			case protocol.RealtimeError:
				retryable := reliability.IsRetryableRealtimeCode(ev.Error.Code)
				log.Warn().
					Str("code", ev.Error.Code).
					Str("message", ev.Error.Message).
					Bool("retryable", retryable).
					Msg("realtime error event")
				if d.cfg.Metrics != nil {
					d.cfg.Metrics.UpstreamErrors.WithLabelValues("realtime", ev.Error.Code).Inc()
				}
				d.cfg.UI.Failure(ev.Error.Code, "realtime", ev.Error.Message, retryable)
			case protocol.UnknownServerEvent:
				// Plenty of event types carry nothing we act on.
			}
		}
	}
}

// launchToolCall runs one tool invocation on its own goroutine. Whatever
// happens inside the handler, the model gets exactly one function_call_output
// followed by a response.create for this call_id.
func (d *Dispatcher) launchToolCall(ctx context.Context, t Transport, ev protocol.FunctionCallArgumentsDone) {
	d.mu.Lock()
	if _, dup := d.seen[ev.CallID]; dup {
		d.mu.Unlock()
		d.cfg.Logger.Warn().Str("call_id", ev.CallID).Msg("duplicate tool call event")
		return
	}
	// A call_id stays claimed for the life of the session so a replayed
	// event can never produce a second output.
	d.seen[ev.CallID] = struct{}{}
	d.mu.Unlock()

	go func() {
		start := time.Now()
		output := ""
		outcome := tools.OutcomeError

		func() {
			defer func() {
				if r := recover(); r != nil {
					d.cfg.Logger.Error().
						Str("tool", ev.Name).
						Str("call_id", ev.CallID).
						Interface("panic", r).
						Msg("tool handler panicked")
					output = toolPanicResult(ev.Name)
				}
			}()
			output, outcome = d.cfg.Tools.Dispatch(ctx, ev.Name, ev.Arguments)
		}()

		if d.cfg.Metrics != nil {
			d.cfg.Metrics.ObserveToolCall(ev.Name, string(outcome), time.Since(start))
		}
		d.cfg.Logger.Info().
			Str("tool", ev.Name).
			Str("call_id", ev.CallID).
			Str("outcome", string(outcome)).
			Dur("took", time.Since(start)).
			Msg("tool call finished")

		d.sendToolResult(t, ev.CallID, output)
	}()
}

func (d *Dispatcher) sendToolResult(t Transport, callID, output string) {
	if err := t.Send(protocol.NewFunctionCallOutput(callID, output)); err != nil {
		d.logSendFailure(callID, err)
		return
	}
	if err := t.Send(protocol.NewResponseCreate()); err != nil {
		d.logSendFailure(callID, err)
	}
}

func (d *Dispatcher) logSendFailure(callID string, err error) {
	// A closed transport means the session is over; the result has nowhere
	// to go and dropping it is correct.
	if StageOf(err) == StageTransport {
		d.cfg.Logger.Debug().Str("call_id", callID).Err(err).Msg("tool result dropped, transport closed")
		return
	}
	d.cfg.Logger.Error().Str("call_id", callID).Err(err).Msg("tool result send failed")
}

func toolPanicResult(name string) string {
	raw, err := json.Marshal(map[string]any{
		"success": false,
		"error":   "internal error executing " + name,
	})
	if err != nil {
		return `{"success":false,"error":"internal error"}`
	}
	return string(raw)
}
