// Package mail はメール送信キューを消費し、実際の送信手段へ配送するワーカーを提供する。
package mail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/hitoshi/booklog/internal/notify"
)

// defaultPrefetch はブローカーから同時に受け取る未ACKメッセージの上限。
const defaultPrefetch = 16

// ErrDeliveriesClosed は配送チャネルがブローカー側で閉じられたことを示す。
// 呼び出し側は接続を張り直す。
var ErrDeliveriesClosed = errors.New("mail deliveries channel closed")

// Channel はConsumerが使うAMQPチャネル操作。*amqp.Channelが満たす。
type Channel interface {
	Qos(prefetchCount, prefetchSize int, global bool) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

// FailureRecorder は配送失敗を記録する。metrics.MetricsCollectorが満たす。
type FailureRecorder interface {
	RecordNotificationFailure(flow string)
}

// Consumer はメールキューを消費してSenderで配送する。
type Consumer struct {
	ch       Channel
	queue    string
	sender   notify.Sender
	failures FailureRecorder
	logger   *slog.Logger
}

// NewConsumer は新しいConsumerを生成する。queueが空ならnotify.DefaultMailQueueを使う。
func NewConsumer(ch Channel, queue string, sender notify.Sender, failures FailureRecorder, logger *slog.Logger) *Consumer {
	if queue == "" {
		queue = notify.DefaultMailQueue
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{ch: ch, queue: queue, sender: sender, failures: failures, logger: logger}
}

// Run はキューを宣言して消費を開始し、ctxがキャンセルされるまでメッセージを処理する。
// ctxのキャンセルではnilを、配送チャネルの切断ではErrDeliveriesClosedを返す。
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.ch.Qos(defaultPrefetch, 0, false); err != nil {
		c.logger.Warn("failed to set mail consumer prefetch",
			slog.String("error", err.Error()),
		)
	}

	if _, err := c.ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare mail queue: %w", err)
	}

	deliveries, err := c.ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume mail queue: %w", err)
	}

	c.logger.Info("mail consumer started", slog.String("queue", c.queue))

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("mail consumer stopped", slog.String("queue", c.queue))
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return ErrDeliveriesClosed
			}
			c.handle(ctx, d)
		}
	}
}

// handle は1件のメッセージを配送し、結果に応じてAck/Nackする。
// 壊れたメッセージは破棄し、送信失敗は1度だけ再キューする。
func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	var msg notify.Message
	if err := json.Unmarshal(d.Body, &msg); err != nil || msg.To == "" {
		c.logger.Error("discarding malformed mail message",
			slog.Uint64("delivery_tag", d.DeliveryTag),
			slog.Any("error", err),
		)
		c.recordFailure()
		_ = d.Nack(false, false)
		return
	}

	if err := c.sender.Send(ctx, msg.To, msg.Subject, msg.Body); err != nil {
		requeue := !d.Redelivered
		c.logger.Error("failed to deliver mail",
			slog.String("subject", msg.Subject),
			slog.Bool("requeue", requeue),
			slog.String("error", err.Error()),
		)
		c.recordFailure()
		_ = d.Nack(false, requeue)
		return
	}

	if err := d.Ack(false); err != nil {
		c.logger.Warn("failed to ack mail message",
			slog.Uint64("delivery_tag", d.DeliveryTag),
			slog.String("error", err.Error()),
		)
	}
}

func (c *Consumer) recordFailure() {
	if c.failures != nil {
		c.failures.RecordNotificationFailure("mail_worker")
	}
}
