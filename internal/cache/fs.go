package cache

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const fileSuffix = ".json"

// Filesystem keeps one file per entry at <root>/<namespace>/<key>.json.
type Filesystem struct {
	root string
}

// NewFilesystem returns a filesystem cache rooted at root, creating it.
func NewFilesystem(root string) (*Filesystem, error) {
	if root == "" {
		root = "data/raw/api_cache"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Filesystem{root: root}, nil
}

func (s *Filesystem) Driver() Driver { return DriverFilesystem }

// Root returns the cache directory.
func (s *Filesystem) Root() string { return s.root }

func (s *Filesystem) pathFor(namespace, key string) (string, error) {
	if err := checkName(namespace); err != nil {
		return "", err
	}
	if err := checkName(key); err != nil {
		return "", err
	}
	return filepath.Join(s.root, namespace, key+fileSuffix), nil
}

func (s *Filesystem) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	path, err := s.pathFor(namespace, key)
	if err != nil {
		return nil, false, err
	}
	body, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return body, true, nil
}

// Put writes to a temp file in the same directory and renames it into place,
// so a crash never leaves a truncated entry behind.
func (s *Filesystem) Put(ctx context.Context, namespace, key string, body []byte) error {
	path, err := s.pathFor(namespace, key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(body); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (s *Filesystem) Delete(ctx context.Context, namespace, key string) (bool, error) {
	path, err := s.pathFor(namespace, key)
	if err != nil {
		return false, err
	}
	err = os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Filesystem) List(ctx context.Context, namespace string) ([]string, error) {
	if err := checkName(namespace); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(s.root, namespace))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, fileSuffix))
	}
	sort.Strings(keys)
	return keys, nil
}
