// Package notify はメール通知の送信手段を提供する。
// 送信手段はSenderインターフェースで抽象化し、ログ出力・SMTP・AMQPキューを切り替えられる。
package notify

import (
	"context"
	"log/slog"
)

// Sender はメール送信のインターフェース。
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Message はキュー経由で受け渡すメール1通分。
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// LogSender は送信内容をログに出力するだけの開発用Sender。
type LogSender struct{}

// NewLogSender はLogSenderを生成する。
func NewLogSender() *LogSender {
	return &LogSender{}
}

// Send はメール内容をログに出力する。
func (s *LogSender) Send(ctx context.Context, to, subject, body string) error {
	slog.InfoContext(ctx, "mail delivered to log",
		slog.String("to", to),
		slog.String("subject", subject),
		slog.String("body", body),
	)
	return nil
}

var _ Sender = (*LogSender)(nil)
