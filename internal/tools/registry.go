// Package tools holds the fixed table of functions the realtime model may
// call. The table is the single source of truth: both the wire schemas
// advertised in session.update and the dispatch switch derive from it.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/arohalabs/aroha/internal/backend"
	"github.com/arohalabs/aroha/internal/geo"
	"github.com/arohalabs/aroha/internal/mapctl"
	"github.com/arohalabs/aroha/internal/protocol"
	"github.com/arohalabs/aroha/internal/travel"
)

// Outcome classifies a dispatch for metrics and logging.
type Outcome string

const (
	OutcomeOK          Outcome = "ok"
	OutcomeError       Outcome = "error"
	OutcomeBadArgs     Outcome = "bad_args"
	OutcomeUnknownTool Outcome = "unknown_tool"
)

// Hooks let the registry report domain results to the UI bridge without
// depending on it.
type Hooks struct {
	JourneysPlanned func(origin, destination string, journeys []travel.Journey)
	PlacesFound     func(center geo.LatLng, places []geo.Place)
}

type handlerFunc func(ctx context.Context, args json.RawMessage) (any, error)

type toolDef struct {
	name        string
	description string
	parameters  string
	handler     handlerFunc
}

// Registry binds the tool table to its collaborators.
type Registry struct {
	surface mapctl.Surface
	api     *backend.Client
	gate    *mapctl.ReadyGate
	hooks   Hooks
	timeout time.Duration

	defs []toolDef
}

func New(surface mapctl.Surface, api *backend.Client, gate *mapctl.ReadyGate, hooks Hooks, timeout time.Duration) *Registry {
	r := &Registry{
		surface: surface,
		api:     api,
		gate:    gate,
		hooks:   hooks,
		timeout: timeout,
	}
	r.defs = []toolDef{
		{
			name:        "search_location",
			description: "Search for a location by name and center the map on it. Use when the user asks to see or find a place.",
			parameters: `{
				"type": "object",
				"properties": {
					"query": {"type": "string", "description": "Location name or address to search for"}
				},
				"required": ["query"]
			}`,
			handler: r.searchLocation,
		},
		{
			name:        "center_map",
			description: "Center the map on specific coordinates, optionally at a specific zoom level.",
			parameters: `{
				"type": "object",
				"properties": {
					"latitude": {"type": "number", "description": "Latitude to center on"},
					"longitude": {"type": "number", "description": "Longitude to center on"},
					"zoom": {"type": "number", "description": "Zoom level between 1 and 20, default 15"}
				},
				"required": ["latitude", "longitude"]
			}`,
			handler: r.centerMap,
		},
		{
			name:        "add_marker",
			description: "Add a marker to the map at specific coordinates, with an optional label.",
			parameters: `{
				"type": "object",
				"properties": {
					"latitude": {"type": "number", "description": "Latitude of the marker"},
					"longitude": {"type": "number", "description": "Longitude of the marker"},
					"label": {"type": "string", "description": "Optional label for the marker"}
				},
				"required": ["latitude", "longitude"]
			}`,
			handler: r.addMarker,
		},
		{
			name:        "get_directions",
			description: "Get driving directions between two locations and draw the route on the map.",
			parameters: `{
				"type": "object",
				"properties": {
					"origin": {"type": "string", "description": "Starting location"},
					"destination": {"type": "string", "description": "Destination location"}
				},
				"required": ["origin", "destination"]
			}`,
			handler: r.getDirections,
		},
		{
			name:        "compare_transportation",
			description: "Compare complete journey options with fares across metro, bus, cabs and auto for a trip between two locations, and draw the route.",
			parameters: `{
				"type": "object",
				"properties": {
					"origin": {"type": "string", "description": "Starting location"},
					"destination": {"type": "string", "description": "Destination location"}
				},
				"required": ["origin", "destination"]
			}`,
			handler: r.compareTransportation,
		},
		{
			name:        "find_nearby_places",
			description: "Find places of a given type near coordinates and show them on the map.",
			parameters: `{
				"type": "object",
				"properties": {
					"latitude": {"type": "number", "description": "Latitude of the search center"},
					"longitude": {"type": "number", "description": "Longitude of the search center"},
					"type": {
						"type": "string",
						"description": "Place type to search for",
						"enum": ["restaurant", "cafe", "bar", "store", "shopping_mall", "grocery_or_supermarket", "pharmacy", "hospital", "atm", "bank", "gas_station", "park", "gym", "museum", "tourist_attraction"]
					},
					"radius": {"type": "number", "description": "Search radius in meters, default 1500, max 50000"}
				},
				"required": ["latitude", "longitude"]
			}`,
			handler: r.findNearbyPlaces,
		},
	}
	return r
}

// Schemas returns the tool declarations for session.update, in table order.
func (r *Registry) Schemas() []protocol.ToolSchema {
	out := make([]protocol.ToolSchema, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, protocol.ToolSchema{
			Type:        "function",
			Name:        d.name,
			Description: d.description,
			Parameters:  json.RawMessage(d.parameters),
		})
	}
	return out
}

// Names returns the tool names in table order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d.name)
	}
	return out
}

type failure struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func failureJSON(msg string) string {
	raw, err := json.Marshal(failure{Success: false, Error: msg})
	if err != nil {
		return `{"success":false,"error":"internal error"}`
	}
	return string(raw)
}

// Dispatch runs the named tool and always returns a JSON document suitable
// for a function_call_output payload. Handler failures become structured
// error results, never Go errors; the caller still owes the model a reply.
func (r *Registry) Dispatch(ctx context.Context, name, argsJSON string) (string, Outcome) {
	var def *toolDef
	for i := range r.defs {
		if r.defs[i].name == name {
			def = &r.defs[i]
			break
		}
	}
	if def == nil {
		return failureJSON("Unknown function"), OutcomeUnknownTool
	}

	args := json.RawMessage(argsJSON)
	if argsJSON == "" {
		args = json.RawMessage("{}")
	}
	if !json.Valid(args) {
		return failureJSON("Invalid arguments: not valid JSON"), OutcomeBadArgs
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	result, err := def.handler(ctx, args)
	if err != nil {
		var bad *badArgsError
		if errors.As(err, &bad) {
			return failureJSON(err.Error()), OutcomeBadArgs
		}
		return failureJSON(err.Error()), OutcomeError
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return failureJSON(fmt.Sprintf("encode result: %v", err)), OutcomeError
	}
	return string(raw), OutcomeOK
}
