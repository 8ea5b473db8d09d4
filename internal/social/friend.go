// Package social はフレンドグラフとリアクションのドメインロジックを提供する。
package social

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/friendsplace/internal/metrics"
	"github.com/hitoshi/friendsplace/internal/model"
	"github.com/hitoshi/friendsplace/internal/repository"
)

// FriendService はフレンドリクエストとフレンド関係を管理するサービス層。
// 書き込みはすべてWithPairLockの中で行い、2人分の行を同一トランザクションで更新する。
type FriendService struct {
	graph   repository.FriendGraphRepository
	metrics metrics.MetricsCollector
}

// NewFriendService はFriendServiceの新しいインスタンスを生成する。
// mがnilの場合はメトリクスを記録しない。
func NewFriendService(graph repository.FriendGraphRepository, m metrics.MetricsCollector) *FriendService {
	if m == nil {
		m = metrics.Nop{}
	}
	return &FriendService{graph: graph, metrics: m}
}

// SendOrCancel はsenderからreceiverへのリクエストを送信する。
// 既に保留中であれば取り消す。
func (s *FriendService) SendOrCancel(ctx context.Context, senderID, receiverID string) (model.FriendOutcome, error) {
	if senderID == receiverID {
		return "", model.NewValidationError("自分自身にフレンドリクエストを送ることはできません")
	}

	var outcome model.FriendOutcome
	err := s.graph.WithPairLock(ctx, senderID, receiverID, func(tx repository.GraphTx) error {
		if err := requireUser(ctx, tx, receiverID); err != nil {
			return err
		}

		friends, err := tx.HasFriendEdge(ctx, receiverID, senderID)
		if err != nil {
			return err
		}
		if friends {
			return model.NewAlreadyFriendsError()
		}

		pending, err := tx.HasRequest(ctx, senderID, receiverID)
		if err != nil {
			return err
		}
		if pending {
			if _, err := tx.RemoveRequest(ctx, senderID, receiverID); err != nil {
				return err
			}
			outcome = model.FriendRequestCancelled
			return nil
		}

		if err := tx.AddRequest(ctx, senderID, receiverID); err != nil {
			return err
		}
		outcome = model.FriendRequestSent
		return nil
	})
	if err != nil {
		return "", s.fail("send_or_cancel", err)
	}

	s.record(outcome, senderID, receiverID)
	return outcome, nil
}

// Accept はsenderからreceiverへの保留リクエストを承認し、双方向のフレンド関係を作る。
// 片側だけ存在する中途半端な状態は、欠けた側を補って収束させる。
func (s *FriendService) Accept(ctx context.Context, senderID, receiverID string) (model.FriendOutcome, error) {
	if senderID == receiverID {
		return "", model.NewValidationError("自分自身のリクエストは承認できません")
	}

	err := s.graph.WithPairLock(ctx, senderID, receiverID, func(tx repository.GraphTx) error {
		if err := checkPending(ctx, tx, senderID, receiverID); err != nil {
			return err
		}
		if _, err := tx.RemoveRequest(ctx, senderID, receiverID); err != nil {
			return err
		}
		// 相互に送り合っていた場合は逆向きのリクエストも残さない
		if _, err := tx.RemoveRequest(ctx, receiverID, senderID); err != nil {
			return err
		}
		if err := tx.AddFriendEdge(ctx, receiverID, senderID); err != nil {
			return err
		}
		return tx.AddFriendEdge(ctx, senderID, receiverID)
	})
	if err != nil {
		return "", s.fail("accept", err)
	}

	s.record(model.FriendRequestAccepted, senderID, receiverID)
	return model.FriendRequestAccepted, nil
}

// Reject はsenderからreceiverへの保留リクエストを削除する。
// 前提条件はAcceptと同じ。
func (s *FriendService) Reject(ctx context.Context, senderID, receiverID string) (model.FriendOutcome, error) {
	if senderID == receiverID {
		return "", model.NewValidationError("自分自身のリクエストは拒否できません")
	}

	err := s.graph.WithPairLock(ctx, senderID, receiverID, func(tx repository.GraphTx) error {
		if err := checkPending(ctx, tx, senderID, receiverID); err != nil {
			return err
		}
		_, err := tx.RemoveRequest(ctx, senderID, receiverID)
		return err
	})
	if err != nil {
		return "", s.fail("reject", err)
	}

	s.record(model.FriendRequestRejected, senderID, receiverID)
	return model.FriendRequestRejected, nil
}

// RemoveFriend はuserとfriendのフレンド関係を両側とも削除する。
func (s *FriendService) RemoveFriend(ctx context.Context, userID, friendID string) (model.FriendOutcome, error) {
	if userID == friendID {
		return "", model.NewValidationError("自分自身をフレンドから削除することはできません")
	}

	err := s.graph.WithPairLock(ctx, userID, friendID, func(tx repository.GraphTx) error {
		if err := requireUser(ctx, tx, friendID); err != nil {
			return err
		}
		removedOwn, err := tx.RemoveFriendEdge(ctx, userID, friendID)
		if err != nil {
			return err
		}
		removedMirror, err := tx.RemoveFriendEdge(ctx, friendID, userID)
		if err != nil {
			return err
		}
		if !removedOwn && !removedMirror {
			return model.NewNotFriendsError()
		}
		return nil
	})
	if err != nil {
		return "", s.fail("remove", err)
	}

	s.record(model.FriendRemoved, userID, friendID)
	return model.FriendRemoved, nil
}

// Friends はユーザーのフレンド一覧を返す。
func (s *FriendService) Friends(ctx context.Context, userID string) ([]*model.UserSummary, error) {
	friends, err := s.graph.ListFriends(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("フレンド一覧の取得に失敗しました: %w", err)
	}
	return friends, nil
}

// PendingRequests はユーザー宛ての保留リクエスト一覧を返す。
func (s *FriendService) PendingRequests(ctx context.Context, userID string) ([]*model.UserSummary, error) {
	requests, err := s.graph.ListRequests(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("フレンドリクエスト一覧の取得に失敗しました: %w", err)
	}
	return requests, nil
}

// checkPending はAccept/Rejectの共通前提条件を検証する。
// 両側のフレンド行があればAlreadyFriends、どちらもなく保留リクエストもなければRequestNotFound。
func checkPending(ctx context.Context, tx repository.GraphTx, senderID, receiverID string) error {
	if err := requireUser(ctx, tx, senderID); err != nil {
		return err
	}

	own, err := tx.HasFriendEdge(ctx, receiverID, senderID)
	if err != nil {
		return err
	}
	mirror, err := tx.HasFriendEdge(ctx, senderID, receiverID)
	if err != nil {
		return err
	}
	if own && mirror {
		return model.NewAlreadyFriendsError()
	}

	pending, err := tx.HasRequest(ctx, senderID, receiverID)
	if err != nil {
		return err
	}
	if !pending && !own && !mirror {
		return model.NewRequestNotFoundError()
	}
	return nil
}

func requireUser(ctx context.Context, tx repository.GraphTx, id string) error {
	exists, err := tx.UserExists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return model.NewUserNotFoundError()
	}
	return nil
}

// fail はAPIErrorをそのまま返し、それ以外はラップして返す。
func (s *FriendService) fail(op string, err error) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		s.metrics.RecordFriendOutcome(apiErr.Code)
		return apiErr
	}
	return fmt.Errorf("フレンド操作(%s)に失敗しました: %w", op, err)
}

func (s *FriendService) record(outcome model.FriendOutcome, a, b string) {
	s.metrics.RecordFriendOutcome(string(outcome))
	slog.Info("friend graph updated",
		slog.String("outcome", string(outcome)),
		slog.String("user_id", a),
		slog.String("target_id", b),
	)
}
