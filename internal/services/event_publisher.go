// internal/services/event_publisher.go
// 投遞事件發布 - RabbitMQ (選用)

package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"bulk-mailer/internal/models"
)

// EventPublisher 投遞事件發布介面
type EventPublisher interface {
	Publish(ctx context.Context, event models.DeliveryEvent) error
	Close() error
}

// NoopPublisher 未設定 RabbitMQ 時使用
type NoopPublisher struct{}

// Publish 不做任何事
func (NoopPublisher) Publish(context.Context, models.DeliveryEvent) error { return nil }

// Close 不做任何事
func (NoopPublisher) Close() error { return nil }

// amqpChannel 發布所需的 channel 操作
type amqpChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// QueuePublisher RabbitMQ 事件發布
type QueuePublisher struct {
	conn    *amqp.Connection
	channel amqpChannel
	queue   string
	mu      sync.Mutex
}

// NewQueuePublisher 連線 RabbitMQ 並宣告事件隊列
func NewQueuePublisher(url, queue string) (*QueuePublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	p, err := newQueuePublisher(channel, queue)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

func newQueuePublisher(channel amqpChannel, queue string) (*QueuePublisher, error) {
	// 宣告事件隊列
	_, err := channel.QueueDeclare(
		queue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}
	return &QueuePublisher{channel: channel, queue: queue}, nil
}

// Publish 發布投遞事件
func (p *QueuePublisher) Publish(ctx context.Context, event models.DeliveryEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	return p.channel.PublishWithContext(
		ctx,
		"",      // exchange
		p.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			MessageId:    event.RunID + ":" + event.Email,
			Body:         body,
		},
	)
}

// Close 關閉連接
func (p *QueuePublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
