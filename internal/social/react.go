package social

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/friendsplace/internal/metrics"
	"github.com/hitoshi/friendsplace/internal/model"
	"github.com/hitoshi/friendsplace/internal/repository"
)

// maxReactAttempts は同時更新で条件付き書き込みが外れた場合の再試行上限。
const maxReactAttempts = 3

// PostFinder は投稿の存在確認に使うインターフェース。
type PostFinder interface {
	FindByID(ctx context.Context, id string) (*model.Post, error)
}

// UserFinder はユーザーの存在確認に使うインターフェース。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// ReactService は投稿へのリアクションを管理するサービス層。
// (投稿, ユーザー)ごとにリアクションは最大1件。
type ReactService struct {
	reacts  repository.ReactRepository
	posts   PostFinder
	users   UserFinder
	metrics metrics.MetricsCollector
	now     func() time.Time
}

// NewReactService はReactServiceの新しいインスタンスを生成する。
func NewReactService(reacts repository.ReactRepository, posts PostFinder, users UserFinder, m metrics.MetricsCollector) *ReactService {
	if m == nil {
		m = metrics.Nop{}
	}
	return &ReactService{
		reacts:  reacts,
		posts:   posts,
		users:   users,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// React はユーザーのリアクションを切り替える。
// 未リアクションなら作成、同じ値なら削除、異なる値なら更新する。
func (s *ReactService) React(ctx context.Context, postID, userID string, value model.ReactType) (model.ReactOutcome, error) {
	if !value.Valid() {
		return "", model.NewValidationError(fmt.Sprintf("リアクションの種類が不正です: %s", value))
	}
	if err := s.requirePost(ctx, postID); err != nil {
		return "", err
	}

	for attempt := 1; attempt <= maxReactAttempts; attempt++ {
		outcome, done, err := s.tryReact(ctx, postID, userID, value)
		if err != nil {
			return "", err
		}
		if done {
			s.metrics.RecordReactOutcome(string(outcome))
			slog.Debug("react applied",
				slog.String("post_id", postID),
				slog.String("user_id", userID),
				slog.String("outcome", string(outcome)),
				slog.Int("attempt", attempt),
			)
			return outcome, nil
		}
	}

	s.metrics.RecordReactOutcome("conflict")
	return "", fmt.Errorf("リアクションの更新が競合しました（%d回試行）: post=%s user=%s", maxReactAttempts, postID, userID)
}

// tryReact は現在のリアクションを読み、それを前提にした条件付き書き込みを1回行う。
// 前提が崩れていた場合はdone=falseを返す。
func (s *ReactService) tryReact(ctx context.Context, postID, userID string, value model.ReactType) (model.ReactOutcome, bool, error) {
	existing, err := s.reacts.FindByPostAndUser(ctx, postID, userID)
	if err != nil {
		return "", false, fmt.Errorf("リアクションの取得に失敗しました: %w", err)
	}

	if existing == nil {
		now := s.now()
		err := s.reacts.Create(ctx, &model.React{
			ID:        uuid.NewString(),
			PostID:    postID,
			UserID:    userID,
			React:     value,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if errors.Is(err, repository.ErrReactExists) {
			return "", false, nil
		}
		if err != nil {
			return "", false, fmt.Errorf("リアクションの作成に失敗しました: %w", err)
		}
		return model.ReactCreated, true, nil
	}

	if existing.React == value {
		removed, err := s.reacts.DeleteIfValue(ctx, existing.ID, value)
		if err != nil {
			return "", false, fmt.Errorf("リアクションの削除に失敗しました: %w", err)
		}
		return model.ReactRemoved, removed, nil
	}

	updated, err := s.reacts.UpdateIfValue(ctx, existing.ID, existing.React, value)
	if err != nil {
		return "", false, fmt.Errorf("リアクションの更新に失敗しました: %w", err)
	}
	return model.ReactUpdated, updated, nil
}

// ListByPost は投稿へのリアクション一覧を返す。
func (s *ReactService) ListByPost(ctx context.Context, postID string) ([]*model.React, error) {
	if err := s.requirePost(ctx, postID); err != nil {
		return nil, err
	}
	reacts, err := s.reacts.ListByPost(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("リアクション一覧の取得に失敗しました: %w", err)
	}
	return reacts, nil
}

// List は全リアクションを返す。管理者向け。
func (s *ReactService) List(ctx context.Context) ([]*model.React, error) {
	reacts, err := s.reacts.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("リアクション一覧の取得に失敗しました: %w", err)
	}
	return reacts, nil
}

// Get は指定IDのリアクションを返す。管理者向け。
func (s *ReactService) Get(ctx context.Context, id string) (*model.React, error) {
	react, err := s.reacts.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("リアクションの取得に失敗しました: %w", err)
	}
	if react == nil {
		return nil, model.NewReactNotFoundError(id)
	}
	return react, nil
}

// Create はリアクションを直接作成する。管理者向け。
// 投稿かユーザーが存在しなければNOT_FOUND系のエラー、
// 同一(投稿, ユーザー)のリアクションが既にあればDUPLICATE_FIELDを返す。
func (s *ReactService) Create(ctx context.Context, postID, userID string, value model.ReactType) (*model.React, error) {
	if !value.Valid() {
		return nil, model.NewValidationError(fmt.Sprintf("リアクションの種類が不正です: %s", value))
	}
	if err := s.requirePost(ctx, postID); err != nil {
		return nil, err
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	now := s.now()
	react := &model.React{
		ID:        uuid.NewString(),
		PostID:    postID,
		UserID:    userID,
		React:     value,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = s.reacts.Create(ctx, react)
	if errors.Is(err, repository.ErrReactExists) {
		return nil, model.NewDuplicateFieldError("リアクション")
	}
	if err != nil {
		return nil, fmt.Errorf("リアクションの作成に失敗しました: %w", err)
	}
	return react, nil
}

// Update は指定IDのリアクションの値を変更する。管理者向け。
func (s *ReactService) Update(ctx context.Context, id string, value model.ReactType) (*model.React, error) {
	if !value.Valid() {
		return nil, model.NewValidationError(fmt.Sprintf("リアクションの種類が不正です: %s", value))
	}
	react, err := s.reacts.Update(ctx, id, value)
	if err != nil {
		return nil, fmt.Errorf("リアクションの更新に失敗しました: %w", err)
	}
	if react == nil {
		return nil, model.NewReactNotFoundError(id)
	}
	return react, nil
}

// Delete は指定IDのリアクションを削除する。管理者向け。
func (s *ReactService) Delete(ctx context.Context, id string) error {
	err := s.reacts.DeleteByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.NewReactNotFoundError(id)
	}
	if err != nil {
		return fmt.Errorf("リアクションの削除に失敗しました: %w", err)
	}
	return nil
}

func (s *ReactService) requirePost(ctx context.Context, postID string) error {
	post, err := s.posts.FindByID(ctx, postID)
	if err != nil {
		return fmt.Errorf("投稿の取得に失敗しました: %w", err)
	}
	if post == nil {
		return model.NewPostNotFoundError(postID)
	}
	return nil
}
