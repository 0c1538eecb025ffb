package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/arohalabs/aroha/internal/geo"
)

// badArgsError marks argument validation failures so Dispatch can classify
// them separately from handler failures.
type badArgsError struct {
	msg string
}

func (e *badArgsError) Error() string { return e.msg }

func badArgs(format string, args ...any) error {
	return &badArgsError{msg: fmt.Sprintf(format, args...)}
}

func decodeArgs(raw json.RawMessage, out any) error {
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	if err := dec.Decode(out); err != nil {
		return badArgs("Invalid arguments: %v", err)
	}
	return nil
}

// waitForMap holds the handler until the map surface is ready.
func (r *Registry) waitForMap(ctx context.Context) error {
	if err := r.gate.Wait(ctx); err != nil {
		return fmt.Errorf("map is not ready: %w", err)
	}
	return nil
}

func (r *Registry) searchLocation(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		Query string `json:"query"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if strings.TrimSpace(args.Query) == "" {
		return nil, badArgs("query is required")
	}
	if err := r.waitForMap(ctx); err != nil {
		return nil, err
	}

	loc, address, err := r.surface.SearchLocation(ctx, args.Query)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"success":  true,
		"location": loc,
		"address":  address,
	}, nil
}

func (r *Registry) centerMap(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
		Zoom      float64  `json:"zoom"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if args.Latitude == nil || args.Longitude == nil {
		return nil, badArgs("latitude and longitude are required")
	}
	zoom := int(args.Zoom)
	if zoom == 0 {
		zoom = 15
	}
	if zoom < 1 || zoom > 20 {
		return nil, badArgs("zoom must be between 1 and 20")
	}
	if err := r.waitForMap(ctx); err != nil {
		return nil, err
	}

	loc := geo.LatLng{Lat: *args.Latitude, Lng: *args.Longitude}
	if err := r.surface.CenterMap(ctx, loc, zoom); err != nil {
		return nil, err
	}
	return map[string]any{
		"success": true,
		"message": "Map centered",
	}, nil
}

func (r *Registry) addMarker(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
		Label     string   `json:"label"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if args.Latitude == nil || args.Longitude == nil {
		return nil, badArgs("latitude and longitude are required")
	}
	if err := r.waitForMap(ctx); err != nil {
		return nil, err
	}

	loc := geo.LatLng{Lat: *args.Latitude, Lng: *args.Longitude}
	if err := r.surface.AddMarker(ctx, loc, args.Label); err != nil {
		return nil, err
	}
	return map[string]any{
		"success": true,
		"message": "Marker added",
	}, nil
}

func (r *Registry) getDirections(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		Origin      string `json:"origin"`
		Destination string `json:"destination"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if strings.TrimSpace(args.Origin) == "" || strings.TrimSpace(args.Destination) == "" {
		return nil, badArgs("origin and destination are required")
	}

	if err := r.waitForMap(ctx); err != nil {
		return nil, err
	}

	d, err := r.api.Directions(ctx, args.Origin, args.Destination)
	if err != nil {
		// No route, no draw. The previous route stays on the map.
		return nil, err
	}
	if err := r.surface.DrawRoute(ctx, d.Route); err != nil {
		return nil, err
	}

	return map[string]any{
		"success":  true,
		"route":    d.Route,
		"distance": d.Distance,
		"duration": d.Duration,
	}, nil
}

func (r *Registry) compareTransportation(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		Origin      string `json:"origin"`
		Destination string `json:"destination"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if strings.TrimSpace(args.Origin) == "" || strings.TrimSpace(args.Destination) == "" {
		return nil, badArgs("origin and destination are required")
	}

	if err := r.waitForMap(ctx); err != nil {
		return nil, err
	}

	d, err := r.api.Directions(ctx, args.Origin, args.Destination)
	if err != nil {
		return nil, err
	}
	if err := r.surface.DrawRoute(ctx, d.Route); err != nil {
		return nil, err
	}

	journeys, err := r.api.Journeys(ctx, d.StartLocation, d.EndLocation, d.DistanceKm())
	if err != nil {
		return nil, err
	}
	if r.hooks.JourneysPlanned != nil {
		r.hooks.JourneysPlanned(d.StartAddress, d.EndAddress, journeys)
	}

	return map[string]any{
		"success":  true,
		"journeys": journeys,
		"distance": d.Distance,
		"duration": d.Duration,
	}, nil
}

func (r *Registry) findNearbyPlaces(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
		Type      string   `json:"type"`
		Radius    float64  `json:"radius"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if args.Latitude == nil || args.Longitude == nil {
		return nil, badArgs("latitude and longitude are required")
	}
	radius := int(args.Radius)
	if radius <= 0 {
		radius = 1500
	}
	if radius > 50000 {
		radius = 50000
	}
	if err := r.waitForMap(ctx); err != nil {
		return nil, err
	}

	center := geo.LatLng{Lat: *args.Latitude, Lng: *args.Longitude}
	places, message, err := r.api.NearbyPlaces(ctx, center, radius, args.Type)
	if err != nil {
		// Leftover markers would contradict the spoken failure.
		_ = r.surface.ClearPlaces(ctx)
		return nil, err
	}

	if len(places) == 0 {
		// Stale markers from a previous search would contradict the
		// spoken "nothing found" answer.
		if err := r.surface.ClearPlaces(ctx); err != nil {
			return nil, err
		}
		if message == "" {
			message = "No places found in this area. Try a wider radius or a different type."
		}
		if r.hooks.PlacesFound != nil {
			r.hooks.PlacesFound(center, []geo.Place{})
		}
		return map[string]any{
			"success": true,
			"places":  []geo.Place{},
			"count":   0,
			"message": message,
		}, nil
	}

	if err := r.surface.ShowPlaces(ctx, center, places); err != nil {
		return nil, err
	}
	if r.hooks.PlacesFound != nil {
		r.hooks.PlacesFound(center, places)
	}
	return map[string]any{
		"success": true,
		"places":  places,
		"count":   len(places),
	}, nil
}
