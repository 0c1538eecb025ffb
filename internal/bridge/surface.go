package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/arohalabs/aroha/internal/geo"
	"github.com/arohalabs/aroha/internal/protocol"
)

// ErrSurfaceGone reports that the UI connection dropped while a map command
// was in flight.
var ErrSurfaceGone = errors.New("map surface disconnected")

// command sends one map command to the browser and waits for its correlated
// result.
func (h *Hub) command(ctx context.Context, action string, args any) (protocol.MapResult, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return protocol.MapResult{}, fmt.Errorf("encode %s args: %w", action, err)
	}

	id := uuid.NewString()
	ch := make(chan protocol.MapResult, 1)
	h.pendingMu.Lock()
	h.pending[id] = ch
	h.pendingMu.Unlock()

	h.send(protocol.MapCommand{
		Type:   protocol.TypeMapCommand,
		ID:     id,
		Action: action,
		Args:   raw,
	})

	select {
	case res, ok := <-ch:
		if !ok {
			return protocol.MapResult{}, ErrSurfaceGone
		}
		if !res.Success {
			msg := res.Error
			if msg == "" {
				msg = action + " failed"
			}
			return protocol.MapResult{}, errors.New(msg)
		}
		return res, nil
	case <-ctx.Done():
		h.pendingMu.Lock()
		delete(h.pending, id)
		h.pendingMu.Unlock()
		return protocol.MapResult{}, ctx.Err()
	}
}

func (h *Hub) SearchLocation(ctx context.Context, query string) (geo.LatLng, string, error) {
	res, err := h.command(ctx, "search_location", map[string]any{"query": query})
	if err != nil {
		return geo.LatLng{}, "", err
	}
	if res.Location == nil {
		return geo.LatLng{}, "", fmt.Errorf("search result for %q missing location", query)
	}
	return *res.Location, res.Address, nil
}

func (h *Hub) CenterMap(ctx context.Context, loc geo.LatLng, zoom int) error {
	_, err := h.command(ctx, "center_map", map[string]any{
		"latitude":  loc.Lat,
		"longitude": loc.Lng,
		"zoom":      zoom,
	})
	return err
}

func (h *Hub) AddMarker(ctx context.Context, loc geo.LatLng, label string) error {
	_, err := h.command(ctx, "add_marker", map[string]any{
		"latitude":  loc.Lat,
		"longitude": loc.Lng,
		"label":     label,
	})
	return err
}

func (h *Hub) DrawRoute(ctx context.Context, route geo.RoutePath) error {
	_, err := h.command(ctx, "draw_route", map[string]any{
		"polyline": route.Polyline,
		"bounds":   route.Bounds,
	})
	return err
}

func (h *Hub) ClearRoute(ctx context.Context) error {
	_, err := h.command(ctx, "clear_route", map[string]any{})
	return err
}

func (h *Hub) SetMapType(ctx context.Context, mapType string) error {
	_, err := h.command(ctx, "set_map_type", map[string]any{"mapType": mapType})
	return err
}

func (h *Hub) ShowPlaces(ctx context.Context, center geo.LatLng, places []geo.Place) error {
	_, err := h.command(ctx, "show_places", map[string]any{"center": center, "places": places})
	return err
}

func (h *Hub) ClearPlaces(ctx context.Context) error {
	_, err := h.command(ctx, "clear_places", map[string]any{})
	return err
}
