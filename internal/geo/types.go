package geo

import (
	"strconv"
	"strings"
)

// LatLng is a WGS84 coordinate pair.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Bounds is the viewport rectangle enclosing a route.
type Bounds struct {
	Northeast LatLng `json:"northeast"`
	Southwest LatLng `json:"southwest"`
}

// RouteStep is a single navigation instruction within a route leg.
type RouteStep struct {
	Instruction string `json:"instruction"`
	Distance    string `json:"distance"`
	Duration    string `json:"duration"`
}

// RoutePath is the drawable part of a route: the encoded polyline,
// the bounds to fit the viewport to, and the turn-by-turn steps.
type RoutePath struct {
	Polyline string      `json:"polyline"`
	Bounds   Bounds      `json:"bounds"`
	Steps    []RouteStep `json:"steps"`
}

// Directions is a resolved driving route between two places.
type Directions struct {
	Route         RoutePath `json:"route"`
	Distance      string    `json:"distance"`
	Duration      string    `json:"duration"`
	StartAddress  string    `json:"startAddress"`
	EndAddress    string    `json:"endAddress"`
	StartLocation LatLng    `json:"startLocation"`
	EndLocation   LatLng    `json:"endLocation"`
}

// DistanceKm parses the human-readable distance into kilometers.
// Values like "350 m" are converted; unparseable text yields 0.
func (d Directions) DistanceKm() float64 {
	text := strings.TrimSpace(d.Distance)
	switch {
	case strings.Contains(text, "km"):
		v, err := strconv.ParseFloat(strings.TrimSpace(strings.ReplaceAll(strings.TrimSuffix(text, "km"), ",", "")), 64)
		if err != nil {
			return 0
		}
		return v
	case strings.Contains(text, "m"):
		v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(text, "m")), 64)
		if err != nil {
			return 0
		}
		return v / 1000
	}
	return 0
}

// PlacePhoto references a photo attached to a place result.
type PlacePhoto struct {
	Reference string `json:"reference"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// Place is a point of interest returned by a nearby search.
type Place struct {
	Name             string       `json:"name"`
	Address          string       `json:"address"`
	Location         LatLng       `json:"location"`
	Rating           float64      `json:"rating,omitempty"`
	UserRatingsTotal int          `json:"userRatingsTotal,omitempty"`
	Types            []string     `json:"types,omitempty"`
	PriceLevel       int          `json:"priceLevel,omitempty"`
	BusinessStatus   string       `json:"businessStatus,omitempty"`
	PlaceID          string       `json:"placeId,omitempty"`
	OpenNow          *bool        `json:"openNow,omitempty"`
	Icon             string       `json:"icon,omitempty"`
	Photos           []PlacePhoto `json:"photos,omitempty"`
}
