package app

import (
	"flag"
	"fmt"

	"github.com/vthunder/culturedb/internal/config"
	"github.com/vthunder/culturedb/internal/logging"
)

// Flags are the command-line settings every command shares. Non-empty
// values override the config file and environment.
type Flags struct {
	ConfigPath  string
	DBPath      string
	Driver      string
	DBURL       string
	CacheDir    string
	MetricsFile string
	NoCache     bool
	Debug       bool
}

// RegisterFlags defines the shared flags on fs.
func RegisterFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{}
	fs.StringVar(&f.ConfigPath, "config", "", "YAML config file")
	fs.StringVar(&f.DBPath, "db", "", "SQLite database path")
	fs.StringVar(&f.Driver, "driver", "", "database driver: sqlite3, sqlite or pgx")
	fs.StringVar(&f.DBURL, "db-url", "", "Postgres connection string (pgx driver)")
	fs.StringVar(&f.CacheDir, "cache-dir", "", "response cache directory")
	fs.StringVar(&f.MetricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")
	fs.BoolVar(&f.NoCache, "no-cache", false, "ignore cached responses (fresh ones are still stored)")
	fs.BoolVar(&f.Debug, "debug", false, "verbose logging")
	return f
}

// Load reads .env, the config file and the environment, then applies the
// flags and validates the result.
func (f *Flags) Load() (*config.Config, error) {
	if config.LoadDotenv() {
		logging.Debug("main", "Loaded .env")
	}
	cfg, err := config.Load(f.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	Override(&cfg.DB.Path, f.DBPath)
	Override(&cfg.DB.Driver, f.Driver)
	Override(&cfg.DB.URL, f.DBURL)
	Override(&cfg.Cache.Dir, f.CacheDir)
	Override(&cfg.MetricsFile, f.MetricsFile)
	cfg.Debug = cfg.Debug || f.Debug
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Override sets *dst to v when v is non-empty.
func Override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
