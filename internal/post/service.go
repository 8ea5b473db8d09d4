// Package post は投稿とコメントのドメインロジックを提供する。
package post

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/hitoshi/friendsplace/internal/media"
	"github.com/hitoshi/friendsplace/internal/model"
	"github.com/hitoshi/friendsplace/internal/policy"
	"github.com/hitoshi/friendsplace/internal/repository"
	"github.com/hitoshi/friendsplace/internal/security"
)

// DefaultListLimit は投稿一覧の既定取得件数。
const DefaultListLimit = 100

// maxBackgroundLength は背景指定の最大文字数。
const maxBackgroundLength = 200

// ReactLister は投稿詳細に含めるリアクション一覧の取得インターフェース。
type ReactLister interface {
	ListByPost(ctx context.Context, postID string) ([]*model.React, error)
}

// CreateInput は投稿作成の入力。
type CreateInput struct {
	Text       string
	Background string
	Image      []byte
}

// UpdateInput は投稿更新の入力。nilのフィールドは変更しない。投稿者と画像は変更できない。
type UpdateInput struct {
	Text       *string `json:"text"`
	Background *string `json:"background"`
}

// Detail はリアクションとコメントを含む投稿詳細。
type Detail struct {
	Post     *model.Post
	Reacts   []*model.React
	Comments []*model.Comment
}

// Service は投稿のビジネスロジックを提供する。
type Service struct {
	posts     repository.PostRepository
	comments  repository.CommentRepository
	reacts    ReactLister
	uploader  media.Uploader
	sanitizer security.TextSanitizer
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	posts repository.PostRepository,
	comments repository.CommentRepository,
	reacts ReactLister,
	uploader media.Uploader,
	sanitizer security.TextSanitizer,
) *Service {
	return &Service{
		posts:     posts,
		comments:  comments,
		reacts:    reacts,
		uploader:  uploader,
		sanitizer: sanitizer,
		now:       time.Now,
	}
}

// List は投稿を新しい順に返す。
func (s *Service) List(ctx context.Context, limit int) ([]*model.Post, error) {
	if limit <= 0 || limit > DefaultListLimit {
		limit = DefaultListLimit
	}
	posts, err := s.posts.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("投稿一覧の取得に失敗しました: %w", err)
	}
	return posts, nil
}

// Create は投稿を作成する。画像があれば投稿者のフォルダにアップロードする。
func (s *Service) Create(ctx context.Context, author *model.User, in CreateInput) (*model.Post, error) {
	if author == nil {
		return nil, model.NewUnauthorizedError()
	}

	text := s.sanitizer.Sanitize(in.Text)
	background := s.sanitizer.Sanitize(in.Background)
	if err := validateText(text, background); err != nil {
		return nil, err
	}
	if text == "" && len(in.Image) == 0 {
		return nil, model.NewValidationError("投稿本文または画像を指定してください")
	}

	var imageURL string
	if len(in.Image) > 0 {
		url, err := uploadImage(ctx, s.uploader, in.Image, author.ID+"/post_images", media.PostImage)
		if err != nil {
			return nil, err
		}
		imageURL = url
	}

	now := s.now().UTC()
	p := &model.Post{
		ID:         uuid.New().String(),
		UserID:     author.ID,
		Text:       text,
		Image:      imageURL,
		Background: background,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.posts.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("投稿の作成に失敗しました: %w", err)
	}

	slog.Info("post created",
		slog.String("post_id", p.ID),
		slog.String("user_id", author.ID),
	)
	return p, nil
}

// Get はリアクションとコメントを含む投稿詳細を返す。
func (s *Service) Get(ctx context.Context, id string) (*Detail, error) {
	p, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	reacts, err := s.reacts.ListByPost(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("リアクションの取得に失敗しました: %w", err)
	}
	comments, err := s.comments.ListByPost(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("コメントの取得に失敗しました: %w", err)
	}
	return &Detail{Post: p, Reacts: reacts, Comments: comments}, nil
}

// Update は投稿の本文と背景を更新する。投稿者本人または管理者のみ実行できる。
func (s *Service) Update(ctx context.Context, requester *model.User, id string, in UpdateInput) (*model.Post, error) {
	p, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := policy.CanModifyPost(requester, p); err != nil {
		return nil, err
	}

	if in.Text != nil {
		text := s.sanitizer.Sanitize(*in.Text)
		in.Text = &text
	}
	if in.Background != nil {
		background := s.sanitizer.Sanitize(*in.Background)
		in.Background = &background
	}
	if err := validateText(deref(in.Text), deref(in.Background)); err != nil {
		return nil, err
	}
	if in.Text != nil && *in.Text == "" && p.Image == "" {
		return nil, model.NewValidationError("投稿本文または画像を指定してください")
	}
	if in.Text == nil && in.Background == nil {
		return p, nil
	}

	updated, err := s.posts.Update(ctx, id, in.Text, in.Background)
	if err != nil {
		return nil, fmt.Errorf("投稿の更新に失敗しました: %w", err)
	}
	if updated == nil {
		return nil, model.NewPostNotFoundError(id)
	}
	return updated, nil
}

// Delete は投稿を削除する。コメントとリアクションはCASCADE削除される。
func (s *Service) Delete(ctx context.Context, requester *model.User, id string) error {
	p, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if err := policy.CanModifyPost(requester, p); err != nil {
		return err
	}

	err = s.posts.DeleteByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.NewPostNotFoundError(id)
	}
	if err != nil {
		return fmt.Errorf("投稿の削除に失敗しました: %w", err)
	}

	slog.Info("post deleted",
		slog.String("post_id", id),
		slog.String("user_id", requester.ID),
	)
	return nil
}

func (s *Service) find(ctx context.Context, id string) (*model.Post, error) {
	p, err := s.posts.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("投稿の取得に失敗しました: %w", err)
	}
	if p == nil {
		return nil, model.NewPostNotFoundError(id)
	}
	return p, nil
}

func validateText(text, background string) error {
	var msgs []string
	if utf8.RuneCountInString(text) > model.MaxPostTextLength {
		msgs = append(msgs, fmt.Sprintf("本文は%d文字以内で入力してください", model.MaxPostTextLength))
	}
	if utf8.RuneCountInString(background) > maxBackgroundLength {
		msgs = append(msgs, fmt.Sprintf("背景は%d文字以内で指定してください", maxBackgroundLength))
	}
	if len(msgs) > 0 {
		return model.NewValidationError(msgs...)
	}
	return nil
}

// uploadImage は画像をアップロードし、失敗をAPIErrorに変換する。
func uploadImage(ctx context.Context, uploader media.Uploader, data []byte, folder string, t media.Transform) (string, error) {
	url, err := uploader.Upload(ctx, data, folder, t)
	switch {
	case err == nil:
		return url, nil
	case errors.Is(err, media.ErrInvalidImage):
		return "", model.NewValidationError("画像ファイルを読み込めませんでした")
	case errors.Is(err, media.ErrTooLarge):
		return "", model.NewValidationError("画像ファイルのサイズが大きすぎます")
	}
	slog.ErrorContext(ctx, "image upload failed",
		slog.String("folder", folder),
		slog.String("error", err.Error()),
	)
	return "", model.NewUploadError()
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
