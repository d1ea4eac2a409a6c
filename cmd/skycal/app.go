package main

import (
	"context"
	"errors"
	"fmt"

	"skycal/internal/config"
	"skycal/internal/fetch"
	"skycal/internal/gcal"
	"skycal/internal/hass"
	"skycal/internal/ics"
	appLog "skycal/internal/log"
	"skycal/internal/metrics"
	"skycal/internal/provider"
	"skycal/internal/widget"
)

// app is everything a command needs once the config is loaded.
type app struct {
	cfg         *config.Config
	router      *provider.Router
	metrics     *metrics.Provider
	coordinator *fetch.Coordinator
	widget      *widget.Widget
}

// loadConfig loads and validates the config at path.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newApp builds providers, router, metrics, coordinator and widget from a
// validated config.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	router, err := newRouter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	mp, err := metrics.New(ctx, metrics.Config{
		Enabled:        cfg.Metrics.Enabled,
		Tracing:        cfg.Metrics.Tracing,
		ServiceName:    "skycal",
		ServiceVersion: version,
	})
	if err != nil {
		return nil, err
	}

	sources := make([]fetch.Source, 0, len(cfg.Entities))
	for _, id := range cfg.Entities {
		sources = append(sources, fetch.Source{ID: id, Color: cfg.Colors[id]})
	}

	coord := fetch.NewCoordinator(router, fetch.Options{
		Sources:       sources,
		Location:      cfg.Location(),
		Staleness:     cfg.Staleness(),
		SourceTimeout: cfg.SourceTimeout(),
		PastDays:      cfg.Fetch.PastDays,
		FutureDays:    cfg.Fetch.FutureDays,
		FollowAnchor:  cfg.Fetch.FollowAnchor,
		Metrics:       mp.Recorder(),
		Tracer:        mp.Tracer("skycal/fetch"),
	})

	w, err := widget.New(cfg, coord, nil)
	if err != nil {
		_ = mp.Shutdown(ctx)
		return nil, err
	}

	return &app{
		cfg:         cfg,
		router:      router,
		metrics:     mp,
		coordinator: coord,
		widget:      w,
	}, nil
}

// newRouter wires each entity to its backend: ICS ids to the feed provider,
// Google ids to the Calendar API, everything else to Home Assistant.
func newRouter(ctx context.Context, cfg *config.Config) (*provider.Router, error) {
	var def provider.Backend
	if cfg.HomeAssistant.URL != "" {
		client, err := hass.New(cfg.HomeAssistant.URL, cfg.HomeAssistant.Token, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", config.ErrConfiguration, err)
		}
		def = client
	}
	router := provider.NewRouter(def)

	fetcher := ics.NewFetcher(cfg.CacheDir, nil)
	if len(cfg.ICS) > 0 {
		feeds := ics.NewProvider(fetcher)
		ids := make([]string, 0, len(cfg.ICS))
		for _, f := range cfg.ICS {
			feeds.AddFeed(ics.Feed{ID: f.ID, URL: f.URL, Name: f.Name})
			ids = append(ids, f.ID)
		}
		router.Route(feeds, ids...)
	}

	if len(cfg.Google.Calendars) > 0 {
		cals := make([]gcal.Calendar, 0, len(cfg.Google.Calendars))
		ids := make([]string, 0, len(cfg.Google.Calendars))
		for _, c := range cfg.Google.Calendars {
			cals = append(cals, gcal.Calendar{ID: c.ID, CalendarID: c.CalendarID, Name: c.Name})
			ids = append(ids, c.ID)
		}
		g, err := gcal.New(ctx, cfg.Google.APIKey, cals, fetcher)
		if err != nil {
			return nil, err
		}
		router.Route(g, ids...)
	}

	for _, id := range cfg.Entities {
		if _, err := router.Backend(id); err != nil {
			return nil, errors.Join(config.ErrConfiguration, err)
		}
	}
	return router, nil
}

func (a *app) shutdown(ctx context.Context) {
	if err := a.metrics.Shutdown(ctx); err != nil {
		appLog.Error("metrics shutdown failed", err)
	}
}

func logEffectiveConfig(cfg *config.Config) {
	appLog.Info("effective config",
		"listen", cfg.Listen,
		"timezone", cfg.Location().String(),
		"refresh", cfg.RefreshCron,
		"entities", len(cfg.Entities),
		"ics_count", len(cfg.ICS),
		"google_count", len(cfg.Google.Calendars),
		"home_assistant", cfg.HomeAssistant.URL != "",
		"default_view", cfg.DefaultView,
		"staleness", cfg.Staleness().String(),
		"follow_anchor", cfg.Fetch.FollowAnchor,
		"column_mode", cfg.Layout.ColumnMode,
		"metrics", cfg.Metrics.Enabled,
	)
}
