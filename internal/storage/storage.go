package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
)

const (
	// DefaultContentType is recorded when the caller supplies none.
	DefaultContentType = "application/octet-stream"
	defaultExtension   = "bin"
	maxExtensionLength = 16
)

var (
	// ErrObjectNotFound is returned when no payload exists for a key.
	ErrObjectNotFound = errors.New("object not found")
	// ErrObjectExists is returned when a write targets a key that is already taken.
	ErrObjectExists = errors.New("object already exists")
	// ErrIntegrity is returned when stored bytes do not match their recorded
	// size or checksum.
	ErrIntegrity = errors.New("object integrity check failed")
	// ErrInvalidKey is returned for keys a backend cannot address.
	ErrInvalidKey = errors.New("invalid object key")
)

// StoredObject describes a payload written by Store. Key is an opaque
// locator; it is only meaningful to the Storage that produced it.
type StoredObject struct {
	Key            string `json:"key"`
	ContentType    string `json:"contentType"`
	Size           int64  `json:"size"`
	ChecksumSHA256 string `json:"checksumSha256"`
}

// ObjectStorage defines common object operations across backends.
// PutNew must fail with ErrObjectExists instead of replacing an existing
// object, Get must report ErrObjectNotFound for missing keys, and Delete must
// succeed when the key is already gone.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	PutNew(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Bucket() string
}

// Storage wraps an ObjectStorage backend with key generation and checksums.
type Storage struct {
	backend ObjectStorage
	newKey  func(ext string) string
}

// Option customizes a Storage.
type Option func(*Storage)

// WithKeyFunc replaces the random key generator.
func WithKeyFunc(fn func(ext string) string) Option {
	return func(s *Storage) {
		if fn != nil {
			s.newKey = fn
		}
	}
}

// NewStorage constructs a Storage wrapper for the provided backend.
func NewStorage(backend ObjectStorage, opts ...Option) *Storage {
	s := &Storage{backend: backend, newKey: randomKey}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureBucket ensures the configured bucket exists.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	return s.backend.EnsureBucket(ctx)
}

// Bucket returns the configured bucket name.
func (s *Storage) Bucket() string {
	return s.backend.Bucket()
}

// Store writes the full payload of r under a freshly generated key. size is
// the length declared by the caller; when positive it must match the bytes
// actually read.
func (s *Storage) Store(ctx context.Context, r io.Reader, originalName, contentType string, size int64) (StoredObject, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return StoredObject{}, fmt.Errorf("read payload: %w", err)
	}
	if size > 0 && int64(len(data)) != size {
		return StoredObject{}, fmt.Errorf("%w: declared %d bytes, read %d", ErrIntegrity, size, len(data))
	}

	if strings.TrimSpace(contentType) == "" {
		contentType = DefaultContentType
	}
	key := s.newKey(Extension(originalName))

	if err := s.backend.PutNew(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return StoredObject{}, fmt.Errorf("put %s: %w", key, err)
	}

	return StoredObject{
		Key:            key,
		ContentType:    contentType,
		Size:           int64(len(data)),
		ChecksumSHA256: Checksum(data),
	}, nil
}

// Load returns the full payload stored under key.
func (s *Storage) Load(ctx context.Context, key string) ([]byte, error) {
	rc, err := s.backend.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// LoadVerified loads obj.Key and checks the bytes against the recorded size
// and checksum.
func (s *Storage) LoadVerified(ctx context.Context, obj StoredObject) ([]byte, error) {
	data, err := s.Load(ctx, obj.Key)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) != obj.Size {
		return nil, fmt.Errorf("%w: %s has %d bytes, expected %d", ErrIntegrity, obj.Key, len(data), obj.Size)
	}
	if obj.ChecksumSHA256 != "" && !strings.EqualFold(Checksum(data), obj.ChecksumSHA256) {
		return nil, fmt.Errorf("%w: %s checksum mismatch", ErrIntegrity, obj.Key)
	}
	return data, nil
}

// Delete removes the payload under key. Missing keys are not an error.
func (s *Storage) Delete(ctx context.Context, key string) error {
	if err := s.backend.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Checksum returns the hex-encoded SHA-256 of data.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Extension returns the part of name after its last dot, reduced to ASCII
// letters and digits. It falls back to "bin".
func Extension(name string) string {
	idx := strings.LastIndex(name, ".")
	if idx < 0 {
		return defaultExtension
	}
	var b strings.Builder
	for _, r := range name[idx+1:] {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
		if b.Len() == maxExtensionLength {
			break
		}
	}
	if b.Len() == 0 {
		return defaultExtension
	}
	return b.String()
}

func randomKey(ext string) string {
	return uuid.NewString() + "." + ext
}

func validKey(key string) bool {
	if key == "" || key == "." || key == ".." {
		return false
	}
	return !strings.ContainsAny(key, `/\`) && !strings.Contains(key, "..")
}
