// Package reconcile はフレンドグラフの整合性を定期的に修復するジョブを提供する。
// 逆方向の行が欠けたフレンド片側を検出して対称に戻し、
// フレンド成立済みの2人の間に残った保留リクエストを削除する。
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hitoshi/friendsplace/internal/metrics"
	"github.com/hitoshi/friendsplace/internal/repository"
)

const (
	// defaultBatchSize は1回の実行で修復する片側エッジの上限。
	defaultBatchSize = 500
	// defaultConcurrency はペアロックを並行して取る最大数。
	defaultConcurrency = 4
)

// Result は1回の実行結果を表す。
type Result struct {
	Orphans         int
	MirrorsRestored int
	StaleRequests   int64
	Failed          int
}

// Job はフレンドグラフ整合性の修復ジョブ。冪等で、修復対象がなければ何もしない。
type Job struct {
	graph       repository.FriendGraphRepository
	metrics     metrics.MetricsCollector
	logger      *slog.Logger
	BatchSize   int
	Concurrency int
}

// NewJob は新しいJobを生成する。
func NewJob(graph repository.FriendGraphRepository, m metrics.MetricsCollector, logger *slog.Logger) *Job {
	if m == nil {
		m = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Job{
		graph:       graph,
		metrics:     m,
		logger:      logger,
		BatchSize:   defaultBatchSize,
		Concurrency: defaultConcurrency,
	}
}

// Start はintervalごとにRunを実行する。起動直後に1回実行し、ctxがキャンセルされるまで継続する。
func (j *Job) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("整合性ワーカーを開始しました", slog.Duration("interval", interval))
	j.runLogged(ctx)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("整合性ワーカーを停止しました")
			return
		case <-ticker.C:
			j.runLogged(ctx)
		}
	}
}

func (j *Job) runLogged(ctx context.Context) {
	if _, err := j.Run(ctx); err != nil {
		j.logger.Error("整合性チェックの実行に失敗しました", slog.String("error", err.Error()))
	}
}

// Run は整合性チェックを1回実行する。
// 片側だけのフレンド行は、ペアロック内で再確認したうえで逆方向の行を追加する。
func (j *Job) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	var res Result

	edges, err := j.graph.ListOrphanEdges(ctx, j.BatchSize)
	if err != nil {
		return res, fmt.Errorf("片側フレンド行の取得に失敗: %w", err)
	}
	res.Orphans = len(edges)

	var restored, failed atomic.Int64
	sem := make(chan struct{}, max(j.Concurrency, 1))
	var wg sync.WaitGroup

	for _, edge := range edges {
		wg.Add(1)
		sem <- struct{}{}

		go func(e repository.FriendEdge) {
			defer wg.Done()
			defer func() { <-sem }()

			j.logger.Warn("片側のみのフレンド行を検出しました",
				slog.String("user_id", e.UserID),
				slog.String("friend_id", e.FriendID),
			)
			ok, err := j.restoreMirror(ctx, e)
			if err != nil {
				failed.Add(1)
				j.logger.Error("フレンド行の修復に失敗しました",
					slog.String("user_id", e.UserID),
					slog.String("friend_id", e.FriendID),
					slog.String("error", err.Error()),
				)
				return
			}
			if ok {
				restored.Add(1)
			}
		}(edge)
	}
	wg.Wait()

	res.MirrorsRestored = int(restored.Load())
	res.Failed = int(failed.Load())
	j.metrics.RecordReconcileRepairs("mirror_restored", res.MirrorsRestored)

	stale, err := j.graph.DeleteRequestsBetweenFriends(ctx)
	if err != nil {
		return res, fmt.Errorf("残存リクエストの削除に失敗: %w", err)
	}
	res.StaleRequests = stale
	j.metrics.RecordReconcileRepairs("stale_request", int(stale))

	j.logger.Info("整合性チェックが完了しました",
		slog.Int("orphans", res.Orphans),
		slog.Int("mirrors_restored", res.MirrorsRestored),
		slog.Int64("stale_requests", res.StaleRequests),
		slog.Int("failed", res.Failed),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return res, nil
}

// restoreMirror はe.FriendIDからe.UserIDへの行を追加する。
// ロック取得までに状態が変わっていた場合は何もせずfalseを返す。
func (j *Job) restoreMirror(ctx context.Context, e repository.FriendEdge) (bool, error) {
	restored := false
	err := j.graph.WithPairLock(ctx, e.UserID, e.FriendID, func(tx repository.GraphTx) error {
		forward, err := tx.HasFriendEdge(ctx, e.UserID, e.FriendID)
		if err != nil {
			return err
		}
		reverse, err := tx.HasFriendEdge(ctx, e.FriendID, e.UserID)
		if err != nil {
			return err
		}
		if !forward || reverse {
			return nil
		}

		if err := tx.AddFriendEdge(ctx, e.FriendID, e.UserID); err != nil {
			return err
		}
		if _, err := tx.RemoveRequest(ctx, e.UserID, e.FriendID); err != nil {
			return err
		}
		if _, err := tx.RemoveRequest(ctx, e.FriendID, e.UserID); err != nil {
			return err
		}
		restored = true
		return nil
	})
	return restored, err
}
