// Package localfs is an object store on the local filesystem. Keys map to
// paths under a base directory; '/' in a key creates subdirectories.
package localfs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ironsheep/creek-ocr/internal/failure"
	"github.com/ironsheep/creek-ocr/internal/storage"
)

const tempSuffix = ".tmp"

// Storage is an object store rooted at a base directory.
type Storage struct {
	basePath string
}

// New creates basePath if needed. An empty path uses ./data/storage.
func New(basePath string) (*Storage, error) {
	if basePath == "" {
		basePath = "./data/storage"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Storage{basePath: basePath}, nil
}

// path resolves key under the base directory, rejecting keys that would
// escape it.
func (s *Storage) path(key string) (string, error) {
	clean := path.Clean("/" + key)
	if key == "" || strings.HasSuffix(key, "/") || clean == "/" || clean[1:] != key {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(s.basePath, filepath.FromSlash(key)), nil
}

// Put writes data under key. The write goes to a temporary file that is
// renamed into place, so readers never see a partial object.
func (s *Storage) Put(_ context.Context, key string, data []byte) error {
	p, err := s.path(key)
	if err != nil {
		return failure.NewStorage("put", key, err)
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return failure.NewStorage("put", key, fmt.Errorf("create dir: %w", err))
	}

	// Each writer gets its own temp file; concurrent Puts to one key race
	// only on the final rename.
	f, err := os.CreateTemp(filepath.Dir(p), filepath.Base(p)+".*"+tempSuffix)
	if err != nil {
		return failure.NewStorage("put", key, fmt.Errorf("create temp: %w", err))
	}
	tmp := f.Name()
	_, werr := f.Write(data)
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr == nil {
		werr = os.Chmod(tmp, 0o644)
	}
	if werr != nil {
		_ = os.Remove(tmp)
		return failure.NewStorage("put", key, fmt.Errorf("write file: %w", werr))
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return failure.NewStorage("put", key, fmt.Errorf("rename file: %w", err))
	}
	return nil
}

func (s *Storage) Get(_ context.Context, key string) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, failure.NewStorage("get", key, err)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, failure.NewStorage("get", key, storage.ErrNotFound)
		}
		return nil, failure.NewStorage("get", key, fmt.Errorf("read file: %w", err))
	}
	return data, nil
}

func (s *Storage) Exists(_ context.Context, key string) (bool, error) {
	p, err := s.path(key)
	if err != nil {
		return false, failure.NewStorage("exists", key, err)
	}
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, failure.NewStorage("exists", key, err)
	}
	return !info.IsDir(), nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Storage) Delete(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return failure.NewStorage("delete", key, err)
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return failure.NewStorage("delete", key, err)
	}
	return nil
}

// List returns the sorted keys starting with prefix. Temp files from
// in-progress writes are skipped.
func (s *Storage) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(s.basePath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(p, tempSuffix) {
			return nil
		}
		rel, err := filepath.Rel(s.basePath, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, failure.NewStorage("list", prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}

var _ storage.ObjectStore = (*Storage)(nil)
