package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalClient stores objects as files directly under a root directory.
type LocalClient struct {
	root string
}

// NewLocalClient constructs a filesystem backend rooted at rootDir.
func NewLocalClient(rootDir string) (*LocalClient, error) {
	if strings.TrimSpace(rootDir) == "" {
		return nil, errors.New("storage root dir is required")
	}
	abs, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, err
	}
	return &LocalClient{root: filepath.Clean(abs)}, nil
}

// EnsureBucket creates the root directory when missing.
func (l *LocalClient) EnsureBucket(ctx context.Context) error {
	return os.MkdirAll(l.root, 0o755)
}

// PutNew creates the file for key, failing if it already exists.
func (l *LocalClient) PutNew(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	path, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(l.root, 0o755); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ErrObjectExists
		}
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return err
	}
	return nil
}

// Get opens the file stored for key.
func (l *LocalClient) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	path, err := l.path(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrObjectNotFound, err)
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrObjectNotFound
		}
		return nil, err
	}
	return f, nil
}

// Delete removes the file for key if present.
func (l *LocalClient) Delete(ctx context.Context, key string) error {
	path, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Bucket returns the root directory.
func (l *LocalClient) Bucket() string {
	return l.root
}

func (l *LocalClient) path(key string) (string, error) {
	if !validKey(key) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(l.root, key), nil
}
