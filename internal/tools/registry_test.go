package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/arohalabs/aroha/internal/backend"
	"github.com/arohalabs/aroha/internal/geo"
	"github.com/arohalabs/aroha/internal/mapctl"
	"github.com/arohalabs/aroha/internal/travel"
)

func testBackend(t *testing.T) *backend.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/directions":
			if body["origin"] == "nowhere" {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"success": false, "error": "No route found between these locations. They may be too far apart or unreachable by road."}`))
				return
			}
			_, _ = w.Write([]byte(`{
				"success": true,
				"route": {"polyline": "abc123", "bounds": {"northeast": {"lat": 12.98, "lng": 77.65}, "southwest": {"lat": 12.92, "lng": 77.60}}, "steps": []},
				"distance": "7.2 km",
				"duration": "25 mins",
				"startAddress": "MG Road, Bengaluru",
				"endAddress": "Koramangala, Bengaluru",
				"startLocation": {"lat": 12.97, "lng": 77.61},
				"endLocation": {"lat": 12.93, "lng": 77.62}
			}`))
		case "/api/transportation/journeys":
			_, _ = w.Write([]byte(`{"success": true, "journeys": [{"journeyName": "Direct Bus", "totalFare": 15, "totalDuration": 29, "stages": [{"stage": "Bus Ride", "mode": "bus", "provider": "BMTC", "fare": 15, "duration": 29, "description": "Direct bus for 7.2km"}], "recommendation": "Most affordable option"}]}`))
		case "/api/transportation/compare":
			_, _ = w.Write([]byte(`{"success": true, "options": [{"mode": "metro", "provider": "Namma Metro (BMRCL)", "fare": 25, "currency": "INR", "description": "Metro ticket based on 7.2km distance"}]}`))
		case "/api/places/nearby":
			if body["type"] == "unicorn_stable" {
				_, _ = w.Write([]byte(`{"success": true, "places": [], "count": 0, "message": "No places found in this area. Try a wider radius or a different type."}`))
				return
			}
			_, _ = w.Write([]byte(`{"success": true, "places": [{"name": "Third Wave Coffee", "address": "Indiranagar", "location": {"lat": 12.97, "lng": 77.64}}], "count": 1}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return backend.NewClient(srv.URL)
}

func readyGate() *mapctl.ReadyGate {
	g := mapctl.NewReadyGate(time.Second)
	g.Resolve()
	return g
}

func testRegistry(t *testing.T, surface *mapctl.MockSurface, gate *mapctl.ReadyGate, hooks Hooks) *Registry {
	t.Helper()
	return New(surface, testBackend(t), gate, hooks, 5*time.Second)
}

func TestSchemasMatchTable(t *testing.T) {
	r := testRegistry(t, &mapctl.MockSurface{}, readyGate(), Hooks{})
	schemas := r.Schemas()
	want := []string{"search_location", "center_map", "add_marker", "get_directions", "compare_transportation", "find_nearby_places"}
	if len(schemas) != len(want) {
		t.Fatalf("got %d schemas, want %d", len(schemas), len(want))
	}
	for i, s := range schemas {
		if s.Name != want[i] {
			t.Errorf("schema[%d] = %q, want %q", i, s.Name, want[i])
		}
		if s.Type != "function" || s.Description == "" {
			t.Errorf("schema %s incomplete: %+v", s.Name, s)
		}
		var params map[string]any
		if err := json.Unmarshal(s.Parameters, &params); err != nil {
			t.Errorf("schema %s parameters invalid: %v", s.Name, err)
		}
	}
}

func TestDispatchUnknownTool(t *testing.T) {
	r := testRegistry(t, &mapctl.MockSurface{}, readyGate(), Hooks{})
	out, outcome := r.Dispatch(context.Background(), "teleport", `{}`)
	if outcome != OutcomeUnknownTool {
		t.Fatalf("outcome = %q", outcome)
	}
	var res struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("output not json: %v", err)
	}
	if res.Success || res.Error != "Unknown function" {
		t.Errorf("result = %+v", res)
	}
}

func TestDispatchBadArguments(t *testing.T) {
	r := testRegistry(t, &mapctl.MockSurface{}, readyGate(), Hooks{})

	out, outcome := r.Dispatch(context.Background(), "search_location", `not json`)
	if outcome != OutcomeBadArgs {
		t.Errorf("invalid json outcome = %q", outcome)
	}
	if !strings.Contains(out, "Invalid arguments") {
		t.Errorf("output = %s", out)
	}

	_, outcome = r.Dispatch(context.Background(), "search_location", `{"query": "  "}`)
	if outcome != OutcomeBadArgs {
		t.Errorf("empty query outcome = %q", outcome)
	}
}

func TestDispatchSearchLocation(t *testing.T) {
	surface := &mapctl.MockSurface{
		Location: geo.LatLng{Lat: 12.97, Lng: 77.61},
		Address:  "MG Road, Bengaluru",
	}
	r := testRegistry(t, surface, readyGate(), Hooks{})

	out, outcome := r.Dispatch(context.Background(), "search_location", `{"query": "MG Road"}`)
	if outcome != OutcomeOK {
		t.Fatalf("outcome = %q, output = %s", outcome, out)
	}
	var res struct {
		Success  bool       `json:"success"`
		Location geo.LatLng `json:"location"`
		Address  string     `json:"address"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !res.Success || res.Address != "MG Road, Bengaluru" || res.Location.Lat != 12.97 {
		t.Errorf("result = %+v", res)
	}
	if calls := surface.Calls(); len(calls) != 1 || calls[0] != "search:MG Road" {
		t.Errorf("surface calls = %v", calls)
	}
}

func TestDispatchBlocksOnUnreadyMap(t *testing.T) {
	gate := mapctl.NewReadyGate(30 * time.Millisecond)
	surface := &mapctl.MockSurface{}
	r := testRegistry(t, surface, gate, Hooks{})

	out, outcome := r.Dispatch(context.Background(), "center_map", `{"latitude": 12.97, "longitude": 77.61}`)
	if outcome != OutcomeError {
		t.Fatalf("outcome = %q", outcome)
	}
	if !strings.Contains(out, "map is not ready") {
		t.Errorf("output = %s", out)
	}
	if len(surface.Calls()) != 0 {
		t.Error("surface must not be touched before the gate resolves")
	}
}

func TestDispatchGetDirections(t *testing.T) {
	surface := &mapctl.MockSurface{}
	var hookCalls int
	hooks := Hooks{
		JourneysPlanned: func(origin, destination string, journeys []travel.Journey) { hookCalls++ },
	}
	r := testRegistry(t, surface, readyGate(), hooks)

	out, outcome := r.Dispatch(context.Background(), "get_directions", `{"origin": "MG Road", "destination": "Koramangala"}`)
	if outcome != OutcomeOK {
		t.Fatalf("outcome = %q, output = %s", outcome, out)
	}
	var res struct {
		Success  bool          `json:"success"`
		Route    geo.RoutePath `json:"route"`
		Distance string        `json:"distance"`
		Duration string        `json:"duration"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !res.Success || res.Distance != "7.2 km" || res.Duration != "25 mins" {
		t.Errorf("result = %+v", res)
	}
	if res.Route.Polyline != "abc123" {
		t.Errorf("route = %+v", res.Route)
	}
	if strings.Contains(out, `"journeys"`) {
		t.Errorf("directions result carries journeys: %s", out)
	}

	calls := surface.Calls()
	if len(calls) != 1 || !strings.HasPrefix(calls[0], "route:") {
		t.Errorf("surface calls = %v", calls)
	}
	// Journey planning belongs to compare_transportation.
	if hookCalls != 0 {
		t.Errorf("journeys hook fired %d times", hookCalls)
	}
}

func TestDispatchGetDirectionsNoRouteSkipsDraw(t *testing.T) {
	surface := &mapctl.MockSurface{}
	r := testRegistry(t, surface, readyGate(), Hooks{})

	out, outcome := r.Dispatch(context.Background(), "get_directions", `{"origin": "nowhere", "destination": "Koramangala"}`)
	if outcome != OutcomeError {
		t.Fatalf("outcome = %q", outcome)
	}
	if !strings.Contains(out, "No route found") {
		t.Errorf("output = %s", out)
	}
	if len(surface.Calls()) != 0 {
		t.Errorf("no route must not draw, calls = %v", surface.Calls())
	}
}

func TestDispatchNearbyPlaces(t *testing.T) {
	surface := &mapctl.MockSurface{Location: geo.LatLng{Lat: 12.97, Lng: 77.64}}
	var hookPlaces []geo.Place
	r := testRegistry(t, surface, readyGate(), Hooks{
		PlacesFound: func(center geo.LatLng, places []geo.Place) { hookPlaces = places },
	})

	out, outcome := r.Dispatch(context.Background(), "find_nearby_places", `{"latitude": 12.97, "longitude": 77.64, "type": "cafe"}`)
	if outcome != OutcomeOK {
		t.Fatalf("outcome = %q, output = %s", outcome, out)
	}
	var res struct {
		Success bool `json:"success"`
		Count   int  `json:"count"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !res.Success || res.Count != 1 || len(hookPlaces) != 1 {
		t.Errorf("result = %+v, hook places = %d", res, len(hookPlaces))
	}
	calls := surface.Calls()
	if len(calls) != 1 || calls[0] != "show_places" {
		t.Errorf("surface calls = %v", calls)
	}
}

func TestDispatchNearbyPlacesZeroResultsClearsMarkers(t *testing.T) {
	surface := &mapctl.MockSurface{Location: geo.LatLng{Lat: 12.97, Lng: 77.64}}
	r := testRegistry(t, surface, readyGate(), Hooks{})

	out, outcome := r.Dispatch(context.Background(), "find_nearby_places", `{"latitude": 12.97, "longitude": 77.64, "type": "unicorn_stable"}`)
	if outcome != OutcomeOK {
		t.Fatalf("outcome = %q, output = %s", outcome, out)
	}
	var res struct {
		Success bool        `json:"success"`
		Places  []geo.Place `json:"places"`
		Count   int         `json:"count"`
		Message string      `json:"message"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !res.Success || res.Count != 0 || res.Places == nil || res.Message == "" {
		t.Errorf("result = %+v", res)
	}
	calls := surface.Calls()
	if len(calls) != 1 || calls[0] != "clear_places" {
		t.Errorf("surface calls = %v", calls)
	}
}

func TestDispatchCompareTransportationStashesJourneys(t *testing.T) {
	surface := &mapctl.MockSurface{}
	var gotOrigin, gotDest string
	var gotJourneys []travel.Journey
	hooks := Hooks{
		JourneysPlanned: func(origin, destination string, journeys []travel.Journey) {
			gotOrigin, gotDest, gotJourneys = origin, destination, journeys
		},
	}
	r := testRegistry(t, surface, readyGate(), hooks)

	out, outcome := r.Dispatch(context.Background(), "compare_transportation", `{"origin": "MG Road", "destination": "Koramangala"}`)
	if outcome != OutcomeOK {
		t.Fatalf("outcome = %q, output = %s", outcome, out)
	}
	var res struct {
		Success  bool             `json:"success"`
		Journeys []travel.Journey `json:"journeys"`
		Distance string           `json:"distance"`
		Duration string           `json:"duration"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !res.Success || res.Distance != "7.2 km" || res.Duration != "25 mins" {
		t.Errorf("result = %+v", res)
	}
	if len(res.Journeys) != 1 || res.Journeys[0].JourneyName != "Direct Bus" {
		t.Errorf("journeys = %+v", res.Journeys)
	}

	// The stash feeds the transcript card, so the hook must fire with the
	// resolved addresses even when the tool call itself succeeds.
	if gotOrigin != "MG Road, Bengaluru" || gotDest != "Koramangala, Bengaluru" {
		t.Errorf("hook got %q -> %q", gotOrigin, gotDest)
	}
	if len(gotJourneys) != 1 || gotJourneys[0].JourneyName != "Direct Bus" {
		t.Errorf("hook journeys = %+v", gotJourneys)
	}

	calls := surface.Calls()
	if len(calls) != 1 || !strings.HasPrefix(calls[0], "route:") {
		t.Errorf("surface calls = %v", calls)
	}
}

func TestDispatchCenterMap(t *testing.T) {
	surface := &mapctl.MockSurface{}
	r := testRegistry(t, surface, readyGate(), Hooks{})

	out, outcome := r.Dispatch(context.Background(), "center_map", `{"latitude": 12.9716, "longitude": 77.5946, "zoom": 12}`)
	if outcome != OutcomeOK {
		t.Fatalf("outcome = %q, output = %s", outcome, out)
	}
	var res struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !res.Success || res.Message != "Map centered" {
		t.Errorf("result = %+v", res)
	}
	if calls := surface.Calls(); len(calls) != 1 || calls[0] != "center:12.9716,77.5946" {
		t.Errorf("surface calls = %v", calls)
	}

	_, outcome = r.Dispatch(context.Background(), "center_map", `{"latitude": 12.9716}`)
	if outcome != OutcomeBadArgs {
		t.Errorf("missing longitude outcome = %q", outcome)
	}
}

func TestDispatchAddMarker(t *testing.T) {
	surface := &mapctl.MockSurface{}
	r := testRegistry(t, surface, readyGate(), Hooks{})

	out, outcome := r.Dispatch(context.Background(), "add_marker", `{"latitude": 12.9352, "longitude": 77.6245, "label": "Office"}`)
	if outcome != OutcomeOK {
		t.Fatalf("outcome = %q, output = %s", outcome, out)
	}
	var res struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !res.Success || res.Message != "Marker added" {
		t.Errorf("result = %+v", res)
	}
	if calls := surface.Calls(); len(calls) != 1 || calls[0] != "marker:12.9352,77.6245" {
		t.Errorf("surface calls = %v", calls)
	}
}

func TestDispatchSurfaceErrorBecomesResult(t *testing.T) {
	surface := &mapctl.MockSurface{SearchErr: context.DeadlineExceeded}
	r := testRegistry(t, surface, readyGate(), Hooks{})
	out, outcome := r.Dispatch(context.Background(), "search_location", `{"query": "MG Road"}`)
	if outcome != OutcomeError {
		t.Fatalf("outcome = %q", outcome)
	}
	var res struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Success || res.Error == "" {
		t.Errorf("result = %+v", res)
	}
}
