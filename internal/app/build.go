package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/arohalabs/aroha/internal/backend"
	"github.com/arohalabs/aroha/internal/bridge"
	"github.com/arohalabs/aroha/internal/config"
	"github.com/arohalabs/aroha/internal/geo"
	"github.com/arohalabs/aroha/internal/httpapi"
	"github.com/arohalabs/aroha/internal/memory"
	"github.com/arohalabs/aroha/internal/observability"
	"github.com/arohalabs/aroha/internal/session"
)

// BuildResult holds the assembled application graph.
type BuildResult struct {
	Config      config.Config
	API         *httpapi.Server
	Sessions    *session.Manager
	Hub         *bridge.Hub
	Coordinator *Coordinator
	Metrics     *observability.Metrics
	Store       memory.Store
	Cleanup     func() error
}

// Build wires every component from configuration. The query endpoints and
// the voice coordinator share one process; the coordinator talks to the
// endpoints over HTTP so the tool path exercises the same surface the
// browser does.
func Build(ctx context.Context, cfg config.Config, log zerolog.Logger) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	store, err := memory.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("init transcript store: %w", err)
	}

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	hub := bridge.NewHub(log, metrics)

	geoClient := geo.NewClient(cfg.GoogleAPIBaseURL, cfg.GoogleMapsAPIKey)
	apiClient := backend.NewClient(cfg.QueryServiceURL)

	coord := NewCoordinator(cfg, log, sessions, hub, apiClient, store, metrics)
	hub.SetControlHandler(coord.HandleControl)

	api := httpapi.New(cfg, log, sessions, geoClient, store, hub, metrics)

	cleanup := func() error {
		coord.StopSession()
		return store.Close()
	}

	return &BuildResult{
		Config:      cfg,
		API:         api,
		Sessions:    sessions,
		Hub:         hub,
		Coordinator: coord,
		Metrics:     metrics,
		Store:       store,
		Cleanup:     cleanup,
	}, nil
}
