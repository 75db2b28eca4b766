package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vthunder/culturedb/internal/cache"
	"github.com/vthunder/culturedb/internal/store"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "culturedb.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if cfg.MediaDive.Delay() != 500*time.Millisecond {
		t.Errorf("delay = %s", cfg.MediaDive.Delay())
	}
	if cfg.MediaDive.TimeoutDuration() != 30*time.Second {
		t.Errorf("timeout = %s", cfg.MediaDive.TimeoutDuration())
	}
	if cfg.DB.Driver != store.DriverSQLite3 || cfg.Cache.Driver != string(cache.DriverFilesystem) {
		t.Errorf("unexpected drivers: %+v %+v", cfg.DB, cfg.Cache)
	}
}

func TestPrecedence_FileThenEnv(t *testing.T) {
	cfg := Default()
	path := writeFile(t, `
db:
  path: from-file.db
mediadive:
  request_delay: 2
  max_attempts: 6
curated_growth:
  "Escherichia coli":
    "1": 0.9
`)
	if err := cfg.mergeFile(path); err != nil {
		t.Fatal(err)
	}
	cfg.applyEnv(envMap(map[string]string{
		"DB_PATH":                 "from-env.db",
		"MEDIADIVE_MAX_ATTEMPTS":  "not-a-number",
		"CACHE_S3_PATH_STYLE":     "true",
		"MEDIADIVE_REQUEST_DELAY": "",
	}))

	if cfg.DB.Path != "from-env.db" {
		t.Errorf("env should override file: %q", cfg.DB.Path)
	}
	if cfg.MediaDive.RequestDelay != 2 {
		t.Errorf("file value lost: %v", cfg.MediaDive.RequestDelay)
	}
	if cfg.MediaDive.MaxAttempts != 6 {
		t.Errorf("malformed env should be ignored: %d", cfg.MediaDive.MaxAttempts)
	}
	if cfg.MediaDive.Timeout != 30 {
		t.Errorf("unset key should keep default: %v", cfg.MediaDive.Timeout)
	}
	if !cfg.Cache.S3.PathStyle {
		t.Error("path style not applied")
	}
	if cfg.CuratedGrowth["Escherichia coli"]["1"] != 0.9 {
		t.Errorf("curated map = %v", cfg.CuratedGrowth)
	}
}

func TestLoad_FileErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	path := writeFile(t, "db: [unclosed")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "parse") {
		t.Errorf("expected parse error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown db driver", func(c *Config) { c.DB.Driver = "mysql" }, "unknown db driver"},
		{"pgx without url", func(c *Config) { c.DB.Driver = store.DriverPgx }, "DATABASE_URL"},
		{"zero attempts", func(c *Config) { c.MediaDive.MaxAttempts = 0 }, "max_attempts"},
		{"negative delay", func(c *Config) { c.BacDive.RequestDelay = -1 }, "request_delay"},
		{"zero timeout", func(c *Config) { c.MediaDive.Timeout = 0 }, "timeout"},
		{"s3 without bucket", func(c *Config) { c.Cache.Driver = "s3" }, "CACHE_S3_BUCKET"},
		{"unknown cache", func(c *Config) { c.Cache.Driver = "redis" }, "unknown cache driver"},
		{"split fractions", func(c *Config) { c.Features.TestSize, c.Features.ValSize = 0.5, 0.5 }, "sum below 1"},
		{"confidence range", func(c *Config) {
			c.CuratedGrowth = map[string]map[string]float64{"x": {"1": 1.5}}
		}, "out of range"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestNCBIDelay(t *testing.T) {
	n := NCBIConfig{}
	if n.Delay() != 340*time.Millisecond {
		t.Errorf("anonymous delay = %s", n.Delay())
	}
	n.APIKey = "k"
	if n.Delay() != 100*time.Millisecond {
		t.Errorf("keyed delay = %s", n.Delay())
	}
	n.RequestDelay = 1
	if n.Delay() != time.Second {
		t.Errorf("explicit delay = %s", n.Delay())
	}
}

func TestConversions(t *testing.T) {
	cfg := Default()
	cfg.Cache.Driver = "s3"
	cfg.Cache.S3.Bucket = "b"
	cc := cfg.CacheStoreConfig()
	if cc.Driver != cache.DriverS3 || cc.S3.Bucket != "b" || cc.Root != "data/raw/api_cache" {
		t.Errorf("cache config = %+v", cc)
	}
	so := cfg.StoreOptions()
	if so.Path != "data/mediadive.db" || so.Driver != store.DriverSQLite3 {
		t.Errorf("store options = %+v", so)
	}
}
