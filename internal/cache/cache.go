// Package cache stores raw API responses keyed by request identity. Entries
// never expire; deleting the cache forces a re-fetch without touching the
// database.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Driver names a cache backend.
type Driver string

const (
	DriverFilesystem Driver = "fs"
	DriverS3         Driver = "s3"
	DriverMemory     Driver = "memory"
)

// ErrInvalidName is returned for namespaces or keys that could escape the
// cache root.
var ErrInvalidName = errors.New("invalid cache name")

// Store holds cached response bodies grouped by namespace.
type Store interface {
	// Get returns the cached body and true, or false on a miss.
	Get(ctx context.Context, namespace, key string) ([]byte, bool, error)
	// Put stores body under key, replacing any existing entry.
	Put(ctx context.Context, namespace, key string, body []byte) error
	Delete(ctx context.Context, namespace, key string) (bool, error)
	// List returns the keys stored in a namespace, sorted.
	List(ctx context.Context, namespace string) ([]string, error)
	Driver() Driver
}

// Key derives the cache key for a request: the hex SHA-256 of the endpoint
// and the query parameters in sorted order. Different parameters always
// give different keys.
func Key(endpoint string, params map[string]string) string {
	v := make(url.Values, len(params))
	for k, val := range params {
		v.Set(k, val)
	}
	sum := sha256.Sum256([]byte(endpoint + "|" + v.Encode()))
	return hex.EncodeToString(sum[:])
}

// Config selects and configures a backend.
type Config struct {
	Driver Driver
	Root   string // fs root directory
	S3     S3Config
}

// Open builds the configured store.
func Open(ctx context.Context, cfg Config) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		return NewFilesystem(cfg.Root)
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown cache driver %q", driver)
	}
}

// checkName rejects empty names, path separators and traversal.
func checkName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
