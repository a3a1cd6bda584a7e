package mq

import (
	"context"
	"fmt"

	"github.com/taskboard/apiserver/config"
)

// NewFromConfig builds the backend selected by cfg.Backend and wraps it.
func NewFromConfig(ctx context.Context, cfg config.MQConfig) (*MQ, error) {
	var (
		backend Backend
		err     error
	)
	switch cfg.Backend {
	case config.MQNone, "":
		backend = NoopClient{}
	case config.MQRabbitMQ:
		backend, err = NewRabbitMQClient(cfg.RabbitMQ)
	case config.MQPubSub:
		backend, err = NewPubSubClient(ctx, cfg.PubSub)
	default:
		return nil, fmt.Errorf("unknown mq backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s mq: %w", cfg.Backend, err)
	}
	return New(backend), nil
}
