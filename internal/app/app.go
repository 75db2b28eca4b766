// Package app wires the shared runtime of every command: database, response
// cache, per-host request limiter, metrics and profiling.
package app

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/vthunder/culturedb/internal/apiclient"
	"github.com/vthunder/culturedb/internal/cache"
	"github.com/vthunder/culturedb/internal/config"
	"github.com/vthunder/culturedb/internal/logging"
	"github.com/vthunder/culturedb/internal/metrics"
	"github.com/vthunder/culturedb/internal/profiling"
	"github.com/vthunder/culturedb/internal/store"
)

// Options adjusts how the runtime is assembled.
type Options struct {
	// NoCache bypasses cached responses; fresh responses are still stored.
	NoCache      bool
	ProfileLevel profiling.Level
}

// App holds the process-wide resources. Close releases them.
type App struct {
	Config   *config.Config
	DB       *store.DB
	Cache    cache.Store
	Limiter  *apiclient.Limiter
	Metrics  *metrics.Collector
	Profiler *profiling.Profiler

	refresh bool
}

// Open connects to the database and cache described by cfg.
func Open(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	logging.SetDebug(cfg.Debug)

	db, err := store.Open(ctx, cfg.StoreOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	cs, err := cache.Open(ctx, cfg.CacheStoreConfig())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	prof, err := profiling.New(opts.ProfileLevel, cfg.ProfileFile)
	if err != nil {
		db.Close()
		return nil, err
	}

	a := &App{
		Config:   cfg,
		DB:       db,
		Cache:    cs,
		Limiter:  apiclient.NewLimiter(0),
		Metrics:  metrics.NewCollector(),
		Profiler: prof,
		refresh:  opts.NoCache,
	}
	a.limit(cfg.MediaDive.BaseURL, cfg.MediaDive.Delay())
	a.limit(cfg.BacDive.BaseURL, cfg.BacDive.Delay())
	a.limit(cfg.NCBI.EUtilsURL, cfg.NCBI.Delay())

	logging.Info("app", "Database: %s (%s), cache: %s", describeDB(cfg), db.Driver(), cs.Driver())
	return a, nil
}

func (a *App) limit(base string, d time.Duration) {
	if u, err := url.Parse(base); err == nil && u.Host != "" {
		a.Limiter.SetInterval(u.Host, d)
	}
}

// MediaDive returns a client for the MediaDive REST API.
func (a *App) MediaDive() (*apiclient.Client, error) {
	return a.client(a.Config.MediaDive, "mediadive", nil)
}

// BacDive returns a client for the BacDive API.
func (a *App) BacDive() (*apiclient.Client, error) {
	return a.client(a.Config.BacDive, "bacdive", nil)
}

// NCBI returns a client for E-utilities carrying the registration
// parameters NCBI asks every caller to send.
func (a *App) NCBI() (*apiclient.Client, error) {
	n := a.Config.NCBI
	params := apiclient.Params{}
	if n.Tool != "" {
		params["tool"] = n.Tool
	}
	if n.Email != "" {
		params["email"] = n.Email
	}
	if n.APIKey != "" {
		params["api_key"] = n.APIKey
	}
	return a.client(config.APIConfig{BaseURL: n.EUtilsURL}, "ncbi", params)
}

func (a *App) client(api config.APIConfig, namespace string, params apiclient.Params) (*apiclient.Client, error) {
	return apiclient.New(apiclient.Options{
		BaseURL:       api.BaseURL,
		Timeout:       api.TimeoutDuration(),
		MaxAttempts:   api.MaxAttempts,
		Limiter:       a.Limiter,
		Cache:         a.Cache,
		Namespace:     namespace,
		Refresh:       a.refresh,
		Metrics:       a.Metrics,
		DefaultParams: params,
	})
}

// Close writes the metrics textfile if configured and releases resources.
func (a *App) Close() error {
	if path := a.Config.MetricsFile; path != "" {
		if _, err := a.Metrics.SampleProcess(); err != nil {
			logging.Debug("app", "process sample: %v", err)
		}
		if err := a.Metrics.WriteTextfile(path); err != nil {
			logging.Warn("app", "failed to write metrics: %v", err)
		} else {
			logging.Info("app", "Metrics written to %s", path)
		}
	}
	a.Profiler.Close()
	return a.DB.Close()
}

func describeDB(cfg *config.Config) string {
	if cfg.DB.Driver == store.DriverPgx {
		return "postgres"
	}
	return cfg.DB.Path
}
