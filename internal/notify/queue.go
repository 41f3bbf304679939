package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultMailQueue はメール送信キューのデフォルト名。
const DefaultMailQueue = "mail.outbound"

// AMQPChannel はQueuePublisherが使うAMQPチャネル操作。*amqp.Channelが満たす。
type AMQPChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// QueuePublisher はメールをAMQPキューに積むSender。
// 実際の送信はworkerのmail.Consumerが行う。
type QueuePublisher struct {
	ch    AMQPChannel
	queue string
}

// NewQueuePublisher はキューを宣言してQueuePublisherを生成する。
func NewQueuePublisher(ch AMQPChannel, queue string) (*QueuePublisher, error) {
	if queue == "" {
		queue = DefaultMailQueue
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("failed to declare mail queue: %w", err)
	}
	return &QueuePublisher{ch: ch, queue: queue}, nil
}

// Send はメールを永続メッセージとしてキューに投入する。
func (p *QueuePublisher) Send(ctx context.Context, to, subject, body string) error {
	payload, err := json.Marshal(Message{To: to, Subject: subject, Body: body})
	if err != nil {
		return fmt.Errorf("failed to marshal mail message: %w", err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         payload,
	}
	if err := p.ch.PublishWithContext(ctx, "", p.queue, false, false, pub); err != nil {
		return fmt.Errorf("failed to publish mail message: %w", err)
	}
	return nil
}

var _ Sender = (*QueuePublisher)(nil)
