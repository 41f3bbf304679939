package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/hitoshi/booklog/internal/config"
	"github.com/hitoshi/booklog/internal/metrics"
	"github.com/hitoshi/booklog/internal/notify"
	"github.com/hitoshi/booklog/internal/repository"
	"github.com/hitoshi/booklog/internal/worker/cleanup"
	"github.com/hitoshi/booklog/internal/worker/mail"
)

const maxReconnectBackoff = 30 * time.Second

// runWorker はワーカーモードで起動する。
// 期限切れセッションの定期削除と、AMQP経由のメール配送を実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := signalContext()
	defer cancel()

	var wg sync.WaitGroup

	cleanupJob := cleanup.NewSessionCleanupJob(repository.NewPostgresSessionRepo(db), slog.Default())
	wg.Add(1)
	go func() {
		defer wg.Done()
		cleanupJob.Start(ctx, cfg.SessionCleanupInterval)
	}()

	if cfg.AMQPURL != "" {
		delivery := deliverySender(cfg)
		wg.Add(1)
		go func() {
			defer wg.Done()
			consumeMail(ctx, cfg, delivery)
		}()
	} else {
		slog.Info("AMQP_URL is not set, mail consumer disabled")
	}

	slog.Info("worker starting",
		slog.Duration("session_cleanup_interval", cfg.SessionCleanupInterval),
		slog.String("mail_queue", cfg.MailQueue),
	)

	<-ctx.Done()
	slog.Info("shutting down worker...")
	wg.Wait()

	slog.Info("worker stopped gracefully")
	return nil
}

// deliverySender はキューから取り出したメールの実配送手段を返す。
// SMTP_HOSTが未設定ならログ出力にとどめる。
func deliverySender(cfg *config.Config) notify.Sender {
	if cfg.SMTPHost == "" {
		slog.Warn("SMTP_HOST is not set, queued mail will only be logged")
		return notify.NewLogSender()
	}
	return notify.NewSMTPSender(smtpConfig(cfg))
}

// consumeMail はブローカーへの接続とメールキューの消費を繰り返す。
// 接続失敗や切断時は指数バックオフで再接続し、ctxのキャンセルで終了する。
func consumeMail(ctx context.Context, cfg *config.Config, sender notify.Sender) {
	backoff := time.Second
	for {
		err := consumeOnce(ctx, cfg, sender)
		if ctx.Err() != nil {
			return
		}

		slog.Warn("mail consumer disconnected, retrying",
			slog.String("error", errString(err)),
			slog.Duration("backoff", backoff),
		)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = nextBackoff(backoff)
	}
}

// consumeOnce は1回分の接続でメールキューを消費する。
func consumeOnce(ctx context.Context, cfg *config.Config, sender notify.Sender) error {
	conn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		return fmt.Errorf("failed to dial broker: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open broker channel: %w", err)
	}
	defer ch.Close()

	consumer := mail.NewConsumer(ch, cfg.MailQueue, sender, metrics.Nop{}, slog.Default())
	return consumer.Run(ctx)
}

// nextBackoff は再接続待ち時間を倍にし、上限で打ち切る。
func nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > maxReconnectBackoff {
		return maxReconnectBackoff
	}
	return next
}

func errString(err error) string {
	if err == nil {
		return "consumer stopped"
	}
	return err.Error()
}
