package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Event type strings on the realtime data channel.
const (
	EventSessionUpdate          = "session.update"
	EventConversationItemCreate = "conversation.item.create"
	EventResponseCreate         = "response.create"

	EventInputTranscriptionCompleted = "conversation.item.input_audio_transcription.completed"
	EventAudioTranscriptDelta        = "response.audio_transcript.delta"
	EventAudioTranscriptDone         = "response.audio_transcript.done"
	EventFunctionCallArgumentsDone   = "response.function_call_arguments.done"
	EventError                       = "error"
)

// TurnDetection configures server-side voice activity detection.
type TurnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMS   int     `json:"prefix_padding_ms"`
	SilenceDurationMS int     `json:"silence_duration_ms"`
}

// ToolSchema declares one callable tool to the realtime model.
type ToolSchema struct {
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// SessionConfig is the payload of a session.update event.
type SessionConfig struct {
	Instructions            string              `json:"instructions,omitempty"`
	Voice                   string              `json:"voice,omitempty"`
	InputAudioTranscription *AudioTranscription `json:"input_audio_transcription,omitempty"`
	TurnDetection           *TurnDetection      `json:"turn_detection,omitempty"`
	Tools                   []ToolSchema        `json:"tools,omitempty"`
	ToolChoice              string              `json:"tool_choice,omitempty"`
}

type AudioTranscription struct {
	Model string `json:"model"`
}

type SessionUpdate struct {
	Type    string        `json:"type"`
	Session SessionConfig `json:"session"`
}

func NewSessionUpdate(cfg SessionConfig) SessionUpdate {
	return SessionUpdate{Type: EventSessionUpdate, Session: cfg}
}

// FunctionCallOutputItem carries a tool result back to the model.
type FunctionCallOutputItem struct {
	Type   string `json:"type"`
	CallID string `json:"call_id"`
	Output string `json:"output"`
}

type ConversationItemCreate struct {
	Type string                 `json:"type"`
	Item FunctionCallOutputItem `json:"item"`
}

func NewFunctionCallOutput(callID, output string) ConversationItemCreate {
	return ConversationItemCreate{
		Type: EventConversationItemCreate,
		Item: FunctionCallOutputItem{
			Type:   "function_call_output",
			CallID: callID,
			Output: output,
		},
	}
}

type ResponseCreate struct {
	Type string `json:"type"`
}

func NewResponseCreate() ResponseCreate {
	return ResponseCreate{Type: EventResponseCreate}
}

// Inbound events from the realtime peer.

type InputTranscriptionCompleted struct {
	Type       string `json:"type"`
	ItemID     string `json:"item_id"`
	Transcript string `json:"transcript"`
}

type AudioTranscriptDelta struct {
	Type       string `json:"type"`
	ResponseID string `json:"response_id"`
	Delta      string `json:"delta"`
}

type AudioTranscriptDone struct {
	Type       string `json:"type"`
	ResponseID string `json:"response_id"`
	Transcript string `json:"transcript"`
}

type FunctionCallArgumentsDone struct {
	Type      string `json:"type"`
	CallID    string `json:"call_id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type RealtimeError struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// UnknownServerEvent preserves events this service does not act on.
type UnknownServerEvent struct {
	EventType string
	Raw       json.RawMessage
}

// ParseServerEvent decodes one data-channel event into its typed form.
func ParseServerEvent(raw []byte) (any, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid event envelope: %w", err)
	}
	if env.Type == "" {
		return nil, errors.New("event missing type")
	}

	switch env.Type {
	case EventInputTranscriptionCompleted:
		var ev InputTranscriptionCompleted
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case EventAudioTranscriptDelta:
		var ev AudioTranscriptDelta
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case EventAudioTranscriptDone:
		var ev AudioTranscriptDone
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case EventFunctionCallArgumentsDone:
		var ev FunctionCallArgumentsDone
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, err
		}
		if ev.CallID == "" {
			return nil, errors.New("function call event missing call_id")
		}
		return ev, nil
	case EventError:
		var ev RealtimeError
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	default:
		return UnknownServerEvent{EventType: env.Type, Raw: append([]byte(nil), raw...)}, nil
	}
}
