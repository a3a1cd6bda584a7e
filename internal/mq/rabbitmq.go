package mq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/taskboard/apiserver/config"
)

// RabbitMQClient publishes to and consumes from queues named after channels
// on the default exchange. Messages are persistent. A message whose handler
// fails on redelivery is rejected into the dead-letter queue, when one is
// configured, instead of being dropped.
type RabbitMQClient struct {
	conn    *amqp.Connection
	channel *amqp.Channel

	queueDurable     bool
	queueAutoDelete  bool
	deadLetterSuffix string

	mu       sync.Mutex
	declared map[string]bool
}

func NewRabbitMQClient(cfg config.RabbitMQConfig) (*RabbitMQClient, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("rabbitmq url is required")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}

	if cfg.PrefetchCount > 0 {
		if err := ch.Qos(cfg.PrefetchCount, 0, false); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, fmt.Errorf("set rabbitmq prefetch: %w", err)
		}
	}

	return &RabbitMQClient{
		conn:             conn,
		channel:          ch,
		queueDurable:     cfg.QueueDurable,
		queueAutoDelete:  cfg.QueueAutoDelete,
		deadLetterSuffix: strings.TrimSpace(cfg.DeadLetterSuffix),
		declared:         make(map[string]bool),
	}, nil
}

func (r *RabbitMQClient) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("rabbitmq channel is required")
	}
	if err := r.ensureQueue(channel); err != nil {
		return "", err
	}

	messageID := uuid.NewString()
	err := r.channel.PublishWithContext(ctx, "", channel, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    messageID,
		Headers:      attributesToHeaders(attrs),
		Body:         data,
	})
	if err != nil {
		return "", fmt.Errorf("publish to %s: %w", channel, err)
	}
	return messageID, nil
}

// Subscribe consumes channel until ctx is done. Handler errors requeue a
// first delivery and reject a redelivered one.
func (r *RabbitMQClient) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("rabbitmq channel is required")
	}
	if err := r.ensureQueue(channel); err != nil {
		return err
	}

	consumerTag := "taskboard-" + uuid.NewString()
	deliveries, err := r.channel.Consume(channel, consumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", channel, err)
	}
	defer func() {
		_ = r.channel.Cancel(consumerTag, false)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("rabbitmq delivery channel closed")
			}
			message := Message{
				ID:         delivery.MessageId,
				Data:       delivery.Body,
				Attributes: headersToAttributes(delivery.Headers),
			}
			if err := handler(ctx, message); err != nil {
				_ = delivery.Nack(false, !delivery.Redelivered)
				continue
			}
			_ = delivery.Ack(false)
		}
	}
}

func (r *RabbitMQClient) Close() error {
	if r.channel != nil {
		_ = r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

// ensureQueue declares channel, and its dead-letter queue, once per client.
func (r *RabbitMQClient) ensureQueue(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.declared[name] {
		return nil
	}

	var args amqp.Table
	if r.deadLetterSuffix != "" {
		dead := name + r.deadLetterSuffix
		if _, err := r.channel.QueueDeclare(dead, r.queueDurable, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", dead, err)
		}
		args = deadLetterArgs(dead)
	}
	if _, err := r.channel.QueueDeclare(name, r.queueDurable, r.queueAutoDelete, false, false, args); err != nil {
		return fmt.Errorf("declare queue %s: %w", name, err)
	}
	r.declared[name] = true
	return nil
}

// deadLetterArgs routes rejected messages through the default exchange to queue.
func deadLetterArgs(queue string) amqp.Table {
	return amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": queue,
	}
}

func attributesToHeaders(attrs map[string]string) amqp.Table {
	if len(attrs) == 0 {
		return nil
	}
	headers := make(amqp.Table, len(attrs))
	for key, value := range attrs {
		headers[key] = value
	}
	return headers
}

func headersToAttributes(headers amqp.Table) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	attrs := make(map[string]string, len(headers))
	for key, value := range headers {
		switch typed := value.(type) {
		case string:
			attrs[key] = typed
		case []byte:
			attrs[key] = string(typed)
		default:
			attrs[key] = fmt.Sprint(value)
		}
	}
	return attrs
}
