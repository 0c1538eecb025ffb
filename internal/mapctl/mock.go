package mapctl

import (
	"context"
	"fmt"
	"sync"

	"github.com/arohalabs/aroha/internal/geo"
)

// MockSurface records map operations for tests.
type MockSurface struct {
	mu    sync.Mutex
	calls []string

	SearchErr error
	RouteErr  error
	Location  geo.LatLng
	Address   string
}

func (m *MockSurface) record(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, op)
}

// Calls returns the operations performed so far, in order.
func (m *MockSurface) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *MockSurface) SearchLocation(ctx context.Context, query string) (geo.LatLng, string, error) {
	m.record("search:" + query)
	if m.SearchErr != nil {
		return geo.LatLng{}, "", m.SearchErr
	}
	return m.Location, m.Address, nil
}

func (m *MockSurface) CenterMap(ctx context.Context, loc geo.LatLng, zoom int) error {
	m.record(fmt.Sprintf("center:%.4f,%.4f", loc.Lat, loc.Lng))
	return m.SearchErr
}

func (m *MockSurface) AddMarker(ctx context.Context, loc geo.LatLng, label string) error {
	m.record(fmt.Sprintf("marker:%.4f,%.4f", loc.Lat, loc.Lng))
	return m.SearchErr
}

func (m *MockSurface) DrawRoute(ctx context.Context, route geo.RoutePath) error {
	m.record("route:" + route.Polyline)
	return m.RouteErr
}

func (m *MockSurface) ClearRoute(ctx context.Context) error {
	m.record("clear_route")
	return nil
}

func (m *MockSurface) SetMapType(ctx context.Context, mapType string) error {
	m.record("maptype:" + mapType)
	return nil
}

func (m *MockSurface) ShowPlaces(ctx context.Context, center geo.LatLng, places []geo.Place) error {
	m.record("show_places")
	return nil
}

func (m *MockSurface) ClearPlaces(ctx context.Context) error {
	m.record("clear_places")
	return nil
}
