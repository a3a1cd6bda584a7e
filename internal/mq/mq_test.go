package mq

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskboard/apiserver/config"
)

type recordingBackend struct {
	channel string
	data    []byte
	attrs   map[string]string
}

func (r *recordingBackend) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	r.channel, r.data, r.attrs = channel, data, attrs
	return "msg-1", nil
}

func (r *recordingBackend) Subscribe(ctx context.Context, channel string, handler Handler) error {
	return handler(ctx, Message{ID: "msg-1", Data: r.data, Attributes: r.attrs})
}

func (r *recordingBackend) Close() error { return nil }

func TestPublishOrphan_RoundTrip(t *testing.T) {
	backend := &recordingBackend{}
	q := New(backend)

	id, err := q.PublishOrphan(context.Background(), OrphanedBlob{Key: "k.bin", Reason: ReasonDeleteFailed})
	require.NoError(t, err)
	assert.Equal(t, "msg-1", id)
	assert.Equal(t, ChannelBlobOrphaned, backend.channel)
	assert.Equal(t, ReasonDeleteFailed, backend.attrs["reason"])

	var got OrphanedBlob
	err = q.Subscribe(context.Background(), ChannelBlobOrphaned, func(ctx context.Context, msg Message) error {
		var decodeErr error
		got, decodeErr = DecodeOrphan(msg)
		return decodeErr
	})
	require.NoError(t, err)
	assert.Equal(t, OrphanedBlob{Key: "k.bin", Reason: ReasonDeleteFailed}, got)
}

func TestPublishOrphan_RequiresKey(t *testing.T) {
	_, err := New(&recordingBackend{}).PublishOrphan(context.Background(), OrphanedBlob{})
	assert.Error(t, err)
}

func TestDecodeOrphan_Rejects(t *testing.T) {
	_, err := DecodeOrphan(Message{ID: "1", Data: []byte("not json")})
	assert.Error(t, err)

	empty, _ := json.Marshal(OrphanedBlob{Reason: "x"})
	_, err = DecodeOrphan(Message{ID: "2", Data: empty})
	assert.Error(t, err)
}

func TestNewFromConfig_None(t *testing.T) {
	q, err := NewFromConfig(context.Background(), config.MQConfig{Backend: config.MQNone})
	require.NoError(t, err)

	id, err := q.Publish(context.Background(), ChannelBlobOrphaned, []byte("{}"), nil)
	require.NoError(t, err)
	assert.Empty(t, id)

	err = q.Subscribe(context.Background(), ChannelBlobOrphaned, nil)
	assert.ErrorIs(t, err, ErrNoBackend)
	assert.NoError(t, q.Close())
}

func TestNewFromConfig_Unknown(t *testing.T) {
	_, err := NewFromConfig(context.Background(), config.MQConfig{Backend: "kafka"})
	assert.Error(t, err)
}

func TestHeadersToAttributes(t *testing.T) {
	attrs := headersToAttributes(map[string]any{"a": "x", "b": []byte("y"), "c": 3})
	assert.Equal(t, map[string]string{"a": "x", "b": "y", "c": "3"}, attrs)
	assert.Nil(t, headersToAttributes(nil))
}

func TestAttributesToHeaders(t *testing.T) {
	headers := attributesToHeaders(map[string]string{"reason": ReasonDeleteFailed})
	assert.Equal(t, ReasonDeleteFailed, headers["reason"])
	assert.Nil(t, attributesToHeaders(nil))
}

func TestDeadLetterArgs(t *testing.T) {
	args := deadLetterArgs(ChannelBlobOrphaned + ".dead")
	assert.Equal(t, "", args["x-dead-letter-exchange"])
	assert.Equal(t, "blob.orphaned.dead", args["x-dead-letter-routing-key"])
}

func TestSubscriptionConfig(t *testing.T) {
	cfg := subscriptionConfig(nil, 45*time.Second)
	assert.Equal(t, 45*time.Second, cfg.AckDeadline)
	if assert.NotNil(t, cfg.RetryPolicy) {
		assert.Equal(t, pubsubMinBackoff, cfg.RetryPolicy.MinimumBackoff)
		assert.Equal(t, pubsubMaxBackoff, cfg.RetryPolicy.MaximumBackoff)
	}
}
