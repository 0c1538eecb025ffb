// Package mapctl defines the control surface for the browser-hosted map and
// the readiness gate that holds tool dispatch until the map has mounted.
package mapctl

import (
	"context"

	"github.com/arohalabs/aroha/internal/geo"
)

// Surface is the set of map operations tool handlers can drive. The concrete
// implementation lives on the other side of the browser bridge.
type Surface interface {
	// SearchLocation geocodes a free-text query, centers the map on the
	// result, and returns the resolved coordinate and formatted address.
	SearchLocation(ctx context.Context, query string) (geo.LatLng, string, error)

	// CenterMap recenters on a coordinate at the given zoom.
	CenterMap(ctx context.Context, loc geo.LatLng, zoom int) error

	// AddMarker drops a labelled marker at a coordinate.
	AddMarker(ctx context.Context, loc geo.LatLng, label string) error

	// DrawRoute renders a polyline route and fits the viewport to its
	// bounds.
	DrawRoute(ctx context.Context, route geo.RoutePath) error

	// ClearRoute removes any rendered route.
	ClearRoute(ctx context.Context) error

	// SetMapType switches the base layer, e.g. "roadmap" or "satellite".
	SetMapType(ctx context.Context, mapType string) error

	// ShowPlaces drops markers for a set of places around a center.
	ShowPlaces(ctx context.Context, center geo.LatLng, places []geo.Place) error

	// ClearPlaces removes place markers.
	ClearPlaces(ctx context.Context) error
}
