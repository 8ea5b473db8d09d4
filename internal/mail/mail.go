// Package mail はトランザクションメール（メール認証、パスワードリセット）の送信を提供する。
package mail

import (
	"context"
	"errors"
	"log/slog"
)

// ErrDelivery はメール送信に失敗したことを表す。
var ErrDelivery = errors.New("mail delivery failed")

// Message は送信するメール1通を表す。
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Sender はメール送信のインターフェース。
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender はメールを送信せずにログへ出力するSender。
// メールAPIが未設定の開発環境で使う。
type LogSender struct{}

// Send はメールの宛先と件名をログに記録する。本文は記録しない。
func (LogSender) Send(ctx context.Context, msg Message) error {
	slog.InfoContext(ctx, "mail not sent (log sender)",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.Int("html_bytes", len(msg.HTML)),
	)
	return nil
}

var _ Sender = LogSender{}
