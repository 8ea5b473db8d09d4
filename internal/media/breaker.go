package media

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerStore は連続失敗したストレージへの書き込みを一定時間遮断するObjectStore。
type BreakerStore struct {
	next ObjectStore
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerStore はnextをサーキットブレーカーで包む。
// maxFailures回連続で失敗するとopenTimeoutの間は即座にエラーを返す。
func NewBreakerStore(next ObjectStore, maxFailures uint32, openTimeout time.Duration) *BreakerStore {
	st := gobreaker.Settings{
		Name:        "media",
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state changed",
				slog.String("name", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	}
	return &BreakerStore{next: next, cb: gobreaker.NewCircuitBreaker(st)}
}

func (b *BreakerStore) Put(ctx context.Context, key, contentType string, body []byte) (string, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Put(ctx, key, contentType, body)
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

var _ ObjectStore = (*BreakerStore)(nil)
