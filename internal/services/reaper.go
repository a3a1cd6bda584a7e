package services

import (
	"context"
	"errors"

	"github.com/taskboard/apiserver/internal/logging"
	"github.com/taskboard/apiserver/internal/mq"
	"github.com/taskboard/apiserver/internal/storage"
)

// Subscriber consumes messages from a named channel until ctx is done.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string, handler mq.Handler) error
}

// BlobReaper deletes blobs reported on the orphan channel.
type BlobReaper struct {
	storage *storage.Storage
	log     logging.Logger
}

func NewBlobReaper(store *storage.Storage, log logging.Logger) *BlobReaper {
	return &BlobReaper{storage: store, log: log}
}

// Run blocks consuming orphan events. It returns nil when ctx is cancelled.
func (r *BlobReaper) Run(ctx context.Context, sub Subscriber) error {
	err := sub.Subscribe(ctx, mq.ChannelBlobOrphaned, r.Handle)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Handle deletes the key carried by msg. Undecodable messages are dropped;
// storage errors are returned so the broker redelivers.
func (r *BlobReaper) Handle(ctx context.Context, msg mq.Message) error {
	blob, err := mq.DecodeOrphan(msg)
	if err != nil {
		r.log.Warn(ctx, "dropping orphan message", "message_id", msg.ID, "error", err)
		return nil
	}
	if err := r.storage.Delete(ctx, blob.Key); err != nil {
		r.log.Error(ctx, "reap blob failed", "key", blob.Key, "error", err)
		return err
	}
	r.log.Info(ctx, "reaped blob", "key", blob.Key, "reason", blob.Reason)
	return nil
}
