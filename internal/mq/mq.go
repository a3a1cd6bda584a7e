// Package mq publishes and consumes broker-agnostic messages. The server uses
// it to hand blob cleanup work that failed inline to the reaper.
package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ChannelBlobOrphaned carries OrphanedBlob events.
const ChannelBlobOrphaned = "blob.orphaned"

// Reasons recorded on OrphanedBlob.
const (
	ReasonMetadataInsertFailed = "metadata_insert_failed"
	ReasonDeleteFailed         = "blob_delete_failed"
)

// ErrNoBackend is returned by Subscribe when no broker is configured.
var ErrNoBackend = errors.New("no message queue backend configured")

// Message represents a broker-agnostic payload delivered to subscribers.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Handler processes a message. Return an error to signal a retry/nack.
type Handler func(ctx context.Context, msg Message) error

// Backend defines the broker-agnostic operations used by the app.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

// OrphanedBlob names a stored payload that no attachment row references.
type OrphanedBlob struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

// MQ wraps a backend with a stable API.
type MQ struct {
	backend Backend
}

// New constructs an MQ wrapper for the provided backend.
func New(backend Backend) *MQ {
	return &MQ{backend: backend}
}

// Publish sends a message to the named channel.
func (m *MQ) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	return m.backend.Publish(ctx, channel, data, attrs)
}

// Subscribe consumes messages from the named channel.
func (m *MQ) Subscribe(ctx context.Context, channel string, handler Handler) error {
	return m.backend.Subscribe(ctx, channel, handler)
}

// PublishOrphan encodes blob as JSON and publishes it on ChannelBlobOrphaned.
func (m *MQ) PublishOrphan(ctx context.Context, blob OrphanedBlob) (string, error) {
	if strings.TrimSpace(blob.Key) == "" {
		return "", errors.New("orphan key is required")
	}
	data, err := json.Marshal(blob)
	if err != nil {
		return "", err
	}
	return m.Publish(ctx, ChannelBlobOrphaned, data, map[string]string{"reason": blob.Reason})
}

// DecodeOrphan parses an OrphanedBlob payload.
func DecodeOrphan(msg Message) (OrphanedBlob, error) {
	var blob OrphanedBlob
	if err := json.Unmarshal(msg.Data, &blob); err != nil {
		return OrphanedBlob{}, fmt.Errorf("decode orphan %s: %w", msg.ID, err)
	}
	if strings.TrimSpace(blob.Key) == "" {
		return OrphanedBlob{}, fmt.Errorf("decode orphan %s: empty key", msg.ID)
	}
	return blob, nil
}

// Close closes the underlying backend.
func (m *MQ) Close() error {
	return m.backend.Close()
}
