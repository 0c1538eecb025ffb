package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/arohalabs/aroha/internal/geo"
	"github.com/arohalabs/aroha/internal/travel"
)

// MessageType identifies websocket payload variants on the browser bridge.
type MessageType string

const (
	// Server to browser.
	TypeTranscriptTurn MessageType = "transcript_turn"
	TypeAssistantDelta MessageType = "assistant_delta"
	TypeSpeakingState  MessageType = "speaking_state"
	TypeSessionState   MessageType = "session_state"
	TypePlacesUpdate   MessageType = "places_update"
	TypeMapCommand     MessageType = "map_command"
	TypeErrorEvent     MessageType = "error_event"

	// Browser to server.
	TypeClientControl MessageType = "client_control"
	TypeMapReady      MessageType = "map_ready"
	TypeMapResult     MessageType = "map_result"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// TranscriptTurn is one committed conversation turn, optionally carrying the
// journey options computed while answering it.
type TranscriptTurn struct {
	Type        MessageType      `json:"type"`
	Text        string           `json:"text"`
	IsUser      bool             `json:"is_user"`
	TSMs        int64            `json:"ts_ms"`
	Origin      string           `json:"origin,omitempty"`
	Destination string           `json:"destination,omitempty"`
	Journeys    []travel.Journey `json:"journeys,omitempty"`
}

// AssistantDelta streams assistant speech text as it is produced. The full
// turn follows as a TranscriptTurn once the model finishes speaking.
type AssistantDelta struct {
	Type  MessageType `json:"type"`
	Delta string      `json:"delta"`
}

type SpeakingState struct {
	Type     MessageType `json:"type"`
	Speaking bool        `json:"speaking"`
}

type SessionState struct {
	Type   MessageType `json:"type"`
	Phase  string      `json:"phase"`
	Detail string      `json:"detail,omitempty"`
}

type PlacesUpdate struct {
	Type   MessageType `json:"type"`
	Places []geo.Place `json:"places"`
	Count  int         `json:"count"`
}

// MapCommand instructs the browser map surface to perform one action. The ID
// correlates the browser's MapResult reply.
type MapCommand struct {
	Type   MessageType     `json:"type"`
	ID     string          `json:"id"`
	Action string          `json:"action"`
	Args   json.RawMessage `json:"args,omitempty"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

type ClientControl struct {
	Type   MessageType `json:"type"`
	Action string      `json:"action"`
}

// MapReady is sent once by the browser when the map surface has mounted.
type MapReady struct {
	Type MessageType `json:"type"`
}

// MapResult answers a MapCommand. Location and Address are set for actions
// that resolve a place.
type MapResult struct {
	Type     MessageType `json:"type"`
	ID       string      `json:"id"`
	Success  bool        `json:"success"`
	Location *geo.LatLng `json:"location,omitempty"`
	Address  string      `json:"address,omitempty"`
	Error    string      `json:"error,omitempty"`
}

// ParseClientMessage decodes one browser-originated websocket payload.
func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Action == "" {
			return nil, errors.New("invalid client_control")
		}
		return msg, nil
	case TypeMapReady:
		var msg MapReady
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeMapResult:
		var msg MapResult
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.ID == "" {
			return nil, errors.New("invalid map_result")
		}
		return msg, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, env.Type)
	}
}
