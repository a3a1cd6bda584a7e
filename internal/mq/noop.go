package mq

import "context"

// NoopClient drops published messages. It backs MQ_BACKEND=none.
type NoopClient struct{}

func (NoopClient) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	return "", nil
}

func (NoopClient) Subscribe(ctx context.Context, channel string, handler Handler) error {
	return ErrNoBackend
}

func (NoopClient) Close() error { return nil }
