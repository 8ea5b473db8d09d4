package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/friendsplace/internal/metrics"
	"github.com/sony/gobreaker"
)

// BreakerSender は連続失敗したメールAPIへの呼び出しを一定時間遮断するSender。
type BreakerSender struct {
	next    Sender
	cb      *gobreaker.CircuitBreaker
	metrics metrics.MetricsCollector
}

// BreakerConfig はサーキットブレーカーの設定。
type BreakerConfig struct {
	MaxFailures uint32
	OpenTimeout time.Duration
}

// DefaultBreakerConfig は5回連続失敗で30秒間遮断する。
var DefaultBreakerConfig = BreakerConfig{MaxFailures: 5, OpenTimeout: 30 * time.Second}

// NewBreakerSender はnextをサーキットブレーカーで包む。
func NewBreakerSender(next Sender, cfg BreakerConfig, m metrics.MetricsCollector) *BreakerSender {
	if m == nil {
		m = metrics.Nop{}
	}
	st := gobreaker.Settings{
		Name:        "mail",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state changed",
				slog.String("name", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	}
	return &BreakerSender{next: next, cb: gobreaker.NewCircuitBreaker(st), metrics: m}
}

// Send はブレーカーが閉じている場合のみ送信する。遮断中はErrDeliveryを返す。
func (b *BreakerSender) Send(ctx context.Context, msg Message) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.Send(ctx, msg)
	})
	if err != nil {
		b.metrics.RecordDependencyFailure("mail")
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: %v", ErrDelivery, err)
		}
		return err
	}
	return nil
}

// State は現在のブレーカー状態を返す。
func (b *BreakerSender) State() gobreaker.State {
	return b.cb.State()
}

var _ Sender = (*BreakerSender)(nil)
