// ABOUTME: File-backed storage for the session store
// ABOUTME: Writes one 0600 file per key, replaced atomically on every save

package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileStorage persists each key as <dir>/<key>.json
type FileStorage struct {
	dir string
}

// NewFileStorage returns storage rooted at dir. The directory is created on
// first write.
func NewFileStorage(dir string) *FileStorage {
	return &FileStorage{dir: dir}
}

func (f *FileStorage) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return "", fmt.Errorf("session: invalid storage key %q", key)
	}
	return filepath.Join(f.dir, key+".json"), nil
}

func (f *FileStorage) Get(ctx context.Context, key string) ([]byte, error) {
	p, err := f.path(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session: failed to read %s: %w", p, err)
	}
	return data, nil
}

func (f *FileStorage) Set(ctx context.Context, key string, value []byte) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(f.dir, 0o700); err != nil {
		return fmt.Errorf("session: failed to create %s: %w", f.dir, err)
	}

	if err := writeFileAtomic(p, value, 0o600); err != nil {
		return fmt.Errorf("session: failed to write %s: %w", p, err)
	}
	return nil
}

func (f *FileStorage) Delete(ctx context.Context, key string) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}

	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("session: failed to delete %s: %w", p, err)
	}
	return nil
}
