package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// StatusError reports a non-OK status from the upstream geo provider. The
// message is safe to surface to callers; it never carries the API key.
type StatusError struct {
	Status  string
	Message string
}

func (e *StatusError) Error() string { return e.Message }

// ErrNoRoute is returned when the provider finds no route between the
// requested endpoints.
var ErrNoRoute = &StatusError{
	Status:  "ZERO_RESULTS",
	Message: "No route found between these locations. They may be too far apart or unreachable by road.",
}

func statusMessage(status string) string {
	switch status {
	case "REQUEST_DENIED":
		return "The maps service rejected the request. Check the server API key configuration."
	case "OVER_QUERY_LIMIT":
		return "The maps service quota has been exceeded. Try again later."
	case "INVALID_REQUEST":
		return "The maps service could not understand the request."
	default:
		return fmt.Sprintf("The maps service returned status %s.", status)
	}
}

// Client talks to the Google Maps web service APIs.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  strings.TrimSpace(apiKey),
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	params.Set("key", c.apiKey)
	u := c.baseURL + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	res, err := c.client.Do(req)
	if err != nil {
		// The transport error may embed the request URL, which carries
		// the key. Strip it before surfacing.
		return errors.New("maps request failed: " + scrubKey(err.Error(), c.apiKey))
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("maps http status %d", res.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func scrubKey(s, key string) string {
	if key == "" {
		return s
	}
	return strings.ReplaceAll(s, key, "[redacted]")
}

type directionsResponse struct {
	Status string `json:"status"`
	Routes []struct {
		OverviewPolyline struct {
			Points string `json:"points"`
		} `json:"overview_polyline"`
		Bounds Bounds `json:"bounds"`
		Legs   []struct {
			StartAddress  string `json:"start_address"`
			EndAddress    string `json:"end_address"`
			StartLocation LatLng `json:"start_location"`
			EndLocation   LatLng `json:"end_location"`
			Distance      struct {
				Text  string `json:"text"`
				Value int    `json:"value"`
			} `json:"distance"`
			Duration struct {
				Text  string `json:"text"`
				Value int    `json:"value"`
			} `json:"duration"`
			Steps []struct {
				HTMLInstructions string `json:"html_instructions"`
				Distance         struct {
					Text string `json:"text"`
				} `json:"distance"`
				Duration struct {
					Text string `json:"text"`
				} `json:"duration"`
			} `json:"steps"`
		} `json:"legs"`
	} `json:"routes"`
}

// Directions resolves a driving route between two free-text locations.
func (c *Client) Directions(ctx context.Context, origin, destination string) (Directions, error) {
	params := url.Values{}
	params.Set("origin", origin)
	params.Set("destination", destination)
	params.Set("mode", "driving")

	var resp directionsResponse
	if err := c.get(ctx, "/maps/api/directions/json", params, &resp); err != nil {
		return Directions{}, err
	}

	switch resp.Status {
	case "OK":
	case "ZERO_RESULTS", "NOT_FOUND":
		return Directions{}, ErrNoRoute
	default:
		return Directions{}, &StatusError{Status: resp.Status, Message: statusMessage(resp.Status)}
	}
	if len(resp.Routes) == 0 || len(resp.Routes[0].Legs) == 0 {
		return Directions{}, ErrNoRoute
	}

	leg := resp.Routes[0].Legs[0]
	d := Directions{
		Route: RoutePath{
			Polyline: resp.Routes[0].OverviewPolyline.Points,
			Bounds:   resp.Routes[0].Bounds,
		},
		Distance:      leg.Distance.Text,
		Duration:      leg.Duration.Text,
		StartAddress:  leg.StartAddress,
		EndAddress:    leg.EndAddress,
		StartLocation: leg.StartLocation,
		EndLocation:   leg.EndLocation,
	}
	for _, s := range leg.Steps {
		d.Route.Steps = append(d.Route.Steps, RouteStep{
			Instruction: stripTags(s.HTMLInstructions),
			Distance:    s.Distance.Text,
			Duration:    s.Duration.Text,
		})
	}
	return d, nil
}

type placesResponse struct {
	Status  string `json:"status"`
	Results []struct {
		Name             string `json:"name"`
		Vicinity         string `json:"vicinity"`
		FormattedAddress string `json:"formatted_address"`
		Geometry         struct {
			Location LatLng `json:"location"`
		} `json:"geometry"`
		Rating           float64  `json:"rating"`
		UserRatingsTotal int      `json:"user_ratings_total"`
		Types            []string `json:"types"`
		PriceLevel       int      `json:"price_level"`
		BusinessStatus   string   `json:"business_status"`
		PlaceID          string   `json:"place_id"`
		Icon             string   `json:"icon"`
		OpeningHours     *struct {
			OpenNow bool `json:"open_now"`
		} `json:"opening_hours"`
		Photos []struct {
			PhotoReference string `json:"photo_reference"`
			Width          int    `json:"width"`
			Height         int    `json:"height"`
		} `json:"photos"`
	} `json:"results"`
}

// maxPlaces caps how many results a nearby search returns.
const maxPlaces = 20

// NearbyPlaces searches for places of a given type around a coordinate. A
// ZERO_RESULTS status is not an error; it returns an empty slice.
func (c *Client) NearbyPlaces(ctx context.Context, center LatLng, radiusMeters int, placeType, keyword string) ([]Place, error) {
	params := url.Values{}
	params.Set("location", fmt.Sprintf("%f,%f", center.Lat, center.Lng))
	params.Set("radius", fmt.Sprintf("%d", radiusMeters))
	if placeType != "" {
		params.Set("type", placeType)
	}
	if keyword != "" {
		params.Set("keyword", keyword)
	}

	var resp placesResponse
	if err := c.get(ctx, "/maps/api/place/nearbysearch/json", params, &resp); err != nil {
		return nil, err
	}

	switch resp.Status {
	case "OK":
	case "ZERO_RESULTS":
		return []Place{}, nil
	default:
		return nil, &StatusError{Status: resp.Status, Message: statusMessage(resp.Status)}
	}

	results := resp.Results
	if len(results) > maxPlaces {
		results = results[:maxPlaces]
	}
	places := make([]Place, 0, len(results))
	for _, r := range results {
		address := r.Vicinity
		if address == "" {
			address = r.FormattedAddress
		}
		p := Place{
			Name:             r.Name,
			Address:          address,
			Location:         r.Geometry.Location,
			Rating:           r.Rating,
			UserRatingsTotal: r.UserRatingsTotal,
			Types:            r.Types,
			PriceLevel:       r.PriceLevel,
			BusinessStatus:   r.BusinessStatus,
			PlaceID:          r.PlaceID,
			Icon:             r.Icon,
		}
		if r.OpeningHours != nil {
			open := r.OpeningHours.OpenNow
			p.OpenNow = &open
		}
		if len(r.Photos) > 0 {
			ph := r.Photos[0]
			p.Photos = []PlacePhoto{{Reference: ph.PhotoReference, Width: ph.Width, Height: ph.Height}}
		}
		places = append(places, p)
	}
	return places, nil
}

// stripTags removes HTML markup from provider instruction strings.
func stripTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
