// Package config assembles runtime settings from defaults, an optional YAML
// file and the environment. Command-line flags are applied by each command
// on top of the loaded Config.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/vthunder/culturedb/internal/cache"
	"github.com/vthunder/culturedb/internal/store"
)

// Config is the full settings tree. YAML keys mirror the field tags.
type Config struct {
	DB        DBConfig    `yaml:"db"`
	MediaDive APIConfig   `yaml:"mediadive"`
	BacDive   APIConfig   `yaml:"bacdive"`
	NCBI      NCBIConfig  `yaml:"ncbi"`
	Cache     CacheConfig `yaml:"cache"`
	Features  Features    `yaml:"features"`

	GenomesDir  string `yaml:"genomes_dir"`
	MetricsFile string `yaml:"metrics_file"`
	ProfileFile string `yaml:"profile_file"`
	Debug       bool   `yaml:"debug"`

	// CuratedGrowth maps an organism name pattern to media ids and the
	// confidence that the organism grows on each.
	CuratedGrowth map[string]map[string]float64 `yaml:"curated_growth"`
}

type DBConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	URL    string `yaml:"url"`
}

// APIConfig describes one paginated JSON API. Durations are in seconds.
type APIConfig struct {
	BaseURL      string  `yaml:"base_url"`
	RequestDelay float64 `yaml:"request_delay"`
	Timeout      float64 `yaml:"timeout"`
	MaxAttempts  int     `yaml:"max_attempts"`
}

// Delay returns the minimum spacing between requests.
func (a APIConfig) Delay() time.Duration { return seconds(a.RequestDelay) }

// TimeoutDuration returns the per-request timeout.
func (a APIConfig) TimeoutDuration() time.Duration { return seconds(a.Timeout) }

type NCBIConfig struct {
	EUtilsURL    string  `yaml:"eutils_url"`
	APIKey       string  `yaml:"api_key"`
	Email        string  `yaml:"email"`
	Tool         string  `yaml:"tool"`
	RequestDelay float64 `yaml:"request_delay"`
}

// Delay returns the request spacing, tighter when an API key is set.
func (n NCBIConfig) Delay() time.Duration {
	if n.RequestDelay > 0 {
		return seconds(n.RequestDelay)
	}
	if n.APIKey != "" {
		return 100 * time.Millisecond
	}
	return 340 * time.Millisecond
}

// Features controls dataset export. Fractions are of all samples.
type Features struct {
	OutDir   string  `yaml:"out_dir"`
	Method   string  `yaml:"embedding_method"`
	Seed     int64   `yaml:"seed"`
	TestSize float64 `yaml:"test_size"`
	ValSize  float64 `yaml:"val_size"`
}

type CacheConfig struct {
	Driver string   `yaml:"driver"`
	Dir    string   `yaml:"dir"`
	S3     S3Config `yaml:"s3"`
}

type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	Prefix    string `yaml:"prefix"`
	PathStyle bool   `yaml:"path_style"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		DB: DBConfig{
			Driver: store.DriverSQLite3,
			Path:   "data/mediadive.db",
		},
		MediaDive: APIConfig{
			BaseURL:      "https://mediadive.dsmz.de/rest",
			RequestDelay: 0.5,
			Timeout:      30,
			MaxAttempts:  4,
		},
		BacDive: APIConfig{
			BaseURL:      "https://bacdive.dsmz.de/api",
			RequestDelay: 0.5,
			Timeout:      30,
			MaxAttempts:  4,
		},
		NCBI: NCBIConfig{
			EUtilsURL: "https://eutils.ncbi.nlm.nih.gov/entrez/eutils",
			Tool:      "culturedb",
		},
		Cache: CacheConfig{
			Driver: string(cache.DriverFilesystem),
			Dir:    "data/raw/api_cache",
			S3:     S3Config{Prefix: "api_cache"},
		},
		Features: Features{
			OutDir:   "data/processed",
			Method:   "kmer_4",
			Seed:     42,
			TestSize: 0.15,
			ValSize:  0.15,
		},
		GenomesDir: "data/raw/genomes",
	}
}

// LoadDotenv reads .env into the process environment if present. Existing
// variables win.
func LoadDotenv(paths ...string) bool {
	return godotenv.Load(paths...) == nil
}

// Load builds a Config from defaults, the YAML file at path (if non-empty)
// and the process environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

// applyEnv overlays environment variables. Malformed numbers are ignored so
// that Validate reports the value actually in effect.
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *float64) {
		if v, ok := lookup(key); ok {
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				*dst = f
			}
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				*dst = n
			}
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok {
			if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
				*dst = b
			}
		}
	}

	str("DB_DRIVER", &c.DB.Driver)
	str("DB_PATH", &c.DB.Path)
	str("DATABASE_URL", &c.DB.URL)

	str("MEDIADIVE_BASE_URL", &c.MediaDive.BaseURL)
	num("MEDIADIVE_REQUEST_DELAY", &c.MediaDive.RequestDelay)
	num("MEDIADIVE_TIMEOUT", &c.MediaDive.Timeout)
	integer("MEDIADIVE_MAX_ATTEMPTS", &c.MediaDive.MaxAttempts)

	str("BACDIVE_BASE_URL", &c.BacDive.BaseURL)
	num("BACDIVE_REQUEST_DELAY", &c.BacDive.RequestDelay)

	str("NCBI_EUTILS_URL", &c.NCBI.EUtilsURL)
	str("NCBI_API_KEY", &c.NCBI.APIKey)
	str("NCBI_EMAIL", &c.NCBI.Email)
	str("NCBI_TOOL", &c.NCBI.Tool)
	num("NCBI_REQUEST_DELAY", &c.NCBI.RequestDelay)

	str("CACHE_DRIVER", &c.Cache.Driver)
	str("CACHE_DIR", &c.Cache.Dir)
	str("CACHE_S3_BUCKET", &c.Cache.S3.Bucket)
	str("CACHE_S3_REGION", &c.Cache.S3.Region)
	str("CACHE_S3_ENDPOINT", &c.Cache.S3.Endpoint)
	str("CACHE_S3_PREFIX", &c.Cache.S3.Prefix)
	boolean("CACHE_S3_PATH_STYLE", &c.Cache.S3.PathStyle)

	str("FEATURES_OUT_DIR", &c.Features.OutDir)
	str("EMBEDDING_METHOD", &c.Features.Method)
	num("TEST_SIZE", &c.Features.TestSize)
	num("VAL_SIZE", &c.Features.ValSize)
	if v, ok := lookup("SEED"); ok {
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			c.Features.Seed = n
		}
	}

	str("GENOMES_DIR", &c.GenomesDir)
	str("METRICS_FILE", &c.MetricsFile)
	str("PROFILE_FILE", &c.ProfileFile)
	boolean("DEBUG", &c.Debug)
}

// Validate rejects settings no run could succeed with.
func (c *Config) Validate() error {
	switch c.DB.Driver {
	case store.DriverSQLite3, store.DriverSQLite:
		if c.DB.Path == "" {
			return fmt.Errorf("db path is required for driver %s", c.DB.Driver)
		}
	case store.DriverPgx:
		if c.DB.URL == "" {
			return fmt.Errorf("DATABASE_URL is required for driver pgx")
		}
	default:
		return fmt.Errorf("unknown db driver %q", c.DB.Driver)
	}

	for name, api := range map[string]APIConfig{"mediadive": c.MediaDive, "bacdive": c.BacDive} {
		if api.BaseURL == "" {
			return fmt.Errorf("%s base_url is required", name)
		}
		if api.RequestDelay < 0 {
			return fmt.Errorf("%s request_delay must not be negative", name)
		}
		if api.Timeout <= 0 {
			return fmt.Errorf("%s timeout must be positive", name)
		}
		if api.MaxAttempts <= 0 {
			return fmt.Errorf("%s max_attempts must be positive", name)
		}
	}

	switch cache.Driver(c.Cache.Driver) {
	case cache.DriverFilesystem:
		if c.Cache.Dir == "" {
			return fmt.Errorf("cache dir is required for driver fs")
		}
	case cache.DriverS3:
		if c.Cache.S3.Bucket == "" {
			return fmt.Errorf("CACHE_S3_BUCKET is required for driver s3")
		}
	case cache.DriverMemory:
	default:
		return fmt.Errorf("unknown cache driver %q", c.Cache.Driver)
	}

	if c.Features.TestSize < 0 || c.Features.ValSize < 0 || c.Features.TestSize+c.Features.ValSize >= 1 {
		return fmt.Errorf("test_size and val_size must be non-negative and sum below 1")
	}

	for pattern, media := range c.CuratedGrowth {
		for id, conf := range media {
			if conf < 0 || conf > 1 {
				return fmt.Errorf("curated_growth %q medium %s: confidence %v out of range", pattern, id, conf)
			}
		}
	}
	return nil
}

// StoreOptions converts the DB settings for store.Open.
func (c *Config) StoreOptions() store.Options {
	return store.Options{Driver: c.DB.Driver, Path: c.DB.Path, URL: c.DB.URL}
}

// CacheStoreConfig converts the cache settings for cache.Open.
func (c *Config) CacheStoreConfig() cache.Config {
	return cache.Config{
		Driver: cache.Driver(c.Cache.Driver),
		Root:   c.Cache.Dir,
		S3: cache.S3Config{
			Bucket:    c.Cache.S3.Bucket,
			Region:    c.Cache.S3.Region,
			Endpoint:  c.Cache.S3.Endpoint,
			Prefix:    c.Cache.S3.Prefix,
			PathStyle: c.Cache.S3.PathStyle,
		},
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
