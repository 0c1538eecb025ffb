// Command arohaperf replays synthetic browser traffic against a running
// aroha instance and reports query endpoint latencies. It connects to the
// websocket bridge as a fake map panel, answers map commands, and times the
// HTTP query endpoints the tool dispatcher depends on.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/arohalabs/aroha/internal/protocol"
)

type options struct {
	baseURL     string
	rounds      int
	origin      string
	destination string
	placeType   string
	radius      int
	interDelay  time.Duration
	timeout     time.Duration
	verbose     bool
}

type probe struct {
	name string
	path string
	body any
}

var defaultPairs = [][2]string{
	{"MG Road Bengaluru", "Kempegowda International Airport"},
	{"Indiranagar", "Whitefield"},
	{"Koramangala", "Majestic Bus Station"},
	{"HSR Layout", "Cubbon Park"},
}

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "arohaperf: %v\n", err)
		os.Exit(2)
	}
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "arohaperf: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var cfg options
	var interMS int
	var timeoutMS int

	flag.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8080", "aroha base URL")
	flag.IntVar(&cfg.rounds, "rounds", 10, "number of probe rounds")
	flag.StringVar(&cfg.origin, "origin", "", "fixed origin (default cycles through sample pairs)")
	flag.StringVar(&cfg.destination, "destination", "", "fixed destination")
	flag.StringVar(&cfg.placeType, "place-type", "restaurant", "place type for the nearby probe")
	flag.IntVar(&cfg.radius, "radius", 1500, "nearby search radius in meters")
	flag.IntVar(&interMS, "inter-round-ms", 250, "delay between rounds in milliseconds")
	flag.IntVar(&timeoutMS, "timeout-ms", 20000, "per-request timeout in milliseconds")
	flag.BoolVar(&cfg.verbose, "verbose", true, "print per-round progress")
	flag.Parse()

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if cfg.rounds <= 0 {
		return options{}, fmt.Errorf("rounds must be > 0")
	}
	if cfg.radius <= 0 || cfg.radius > 50000 {
		return options{}, fmt.Errorf("radius must be in (0,50000]")
	}
	if (cfg.origin == "") != (cfg.destination == "") {
		return options{}, fmt.Errorf("origin and destination must be set together")
	}
	if interMS < 0 {
		interMS = 0
	}
	if timeoutMS < 1000 {
		timeoutMS = 1000
	}
	cfg.interDelay = time.Duration(interMS) * time.Millisecond
	cfg.timeout = time.Duration(timeoutMS) * time.Millisecond
	return cfg, nil
}

func run(cfg options) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	wsURL, err := wsURLFor(cfg.baseURL)
	if err != nil {
		return fmt.Errorf("build ws URL: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("open websocket: %w", err)
	}
	defer conn.Close()

	readErrCh := make(chan error, 1)
	go surfaceLoop(conn, readErrCh, cfg.verbose)

	if err := conn.WriteJSON(protocol.MapReady{Type: protocol.TypeMapReady}); err != nil {
		return fmt.Errorf("send map_ready: %w", err)
	}

	client := &http.Client{Timeout: cfg.timeout}
	samples := make(map[string][]time.Duration)

	for i := 0; i < cfg.rounds; i++ {
		select {
		case err := <-readErrCh:
			return fmt.Errorf("ws read: %w", err)
		default:
		}

		origin, destination := cfg.origin, cfg.destination
		if origin == "" {
			pair := defaultPairs[i%len(defaultPairs)]
			origin, destination = pair[0], pair[1]
		}

		journey := map[string]any{
			"fromLat": 12.9716, "fromLng": 77.5946,
			"toLat": 13.1989, "toLng": 77.7068,
			"distanceKm": 12.5,
		}
		probes := []probe{
			{"directions", "/api/directions", map[string]any{"origin": origin, "destination": destination}},
			{"journeys", "/api/transportation/journeys", journey},
			{"compare", "/api/transportation/compare", journey},
			{"places", "/api/places/nearby", map[string]any{
				"latitude": 12.9716, "longitude": 77.5946,
				"radius": cfg.radius, "type": cfg.placeType,
			}},
		}
		for _, p := range probes {
			d, err := timePost(ctx, client, cfg.baseURL+p.path, p.body)
			if err != nil {
				return fmt.Errorf("round %d %s: %w", i+1, p.name, err)
			}
			samples[p.name] = append(samples[p.name], d)
			if cfg.verbose {
				fmt.Printf("arohaperf: round %d/%d %s %s\n", i+1, cfg.rounds, p.name, d.Round(time.Millisecond))
			}
		}
		if cfg.interDelay > 0 && i < cfg.rounds-1 {
			time.Sleep(cfg.interDelay)
		}
	}

	report(samples)
	return nil
}

// surfaceLoop plays the browser's part: every map_command gets a successful
// map_result so tool-driven sessions against the same instance keep moving.
func surfaceLoop(conn *websocket.Conn, readErrCh chan<- error, verbose bool) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case readErrCh <- err:
			default:
			}
			return
		}
		var env struct {
			Type protocol.MessageType `json:"type"`
			ID   string               `json:"id"`
		}
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		switch env.Type {
		case protocol.TypeMapCommand:
			res := protocol.MapResult{
				Type:    protocol.TypeMapResult,
				ID:      env.ID,
				Success: true,
			}
			if err := conn.WriteJSON(res); err != nil {
				select {
				case readErrCh <- err:
				default:
				}
				return
			}
		case protocol.TypeErrorEvent:
			if verbose {
				fmt.Fprintf(os.Stderr, "arohaperf: error_event: %s\n", strings.TrimSpace(string(data)))
			}
		}
	}
}

func timePost(ctx context.Context, client *http.Client, rawURL string, body any) (time.Duration, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	start := time.Now()
	res, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()
	elapsed := time.Since(start)
	if res.StatusCode >= 500 {
		return 0, fmt.Errorf("HTTP %d", res.StatusCode)
	}
	return elapsed, nil
}

func wsURLFor(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

func report(samples map[string][]time.Duration) {
	names := make([]string, 0, len(samples))
	for name := range samples {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("arohaperf: latency summary")
	for _, name := range names {
		ds := samples[name]
		fmt.Printf("  %-12s n=%-4d p50=%-8s p95=%-8s max=%s\n",
			name, len(ds),
			percentile(ds, 0.50).Round(time.Millisecond),
			percentile(ds, 0.95).Round(time.Millisecond),
			percentile(ds, 1.0).Round(time.Millisecond))
	}
}

// percentile returns the q-th percentile using nearest-rank on a sorted copy.
func percentile(ds []time.Duration, q float64) time.Duration {
	if len(ds) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), ds...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	idx := int(q*float64(len(sorted))+0.5) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
