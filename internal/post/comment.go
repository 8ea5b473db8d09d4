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
	"github.com/hitoshi/friendsplace/internal/repository"
	"github.com/hitoshi/friendsplace/internal/security"
)

// CommentInput はコメント作成の入力。
type CommentInput struct {
	Comment string
	Image   []byte
}

// CommentService はコメントのビジネスロジックを提供する。
type CommentService struct {
	comments  repository.CommentRepository
	posts     repository.PostRepository
	uploader  media.Uploader
	sanitizer security.TextSanitizer
	now       func() time.Time
}

// NewCommentService はCommentServiceを生成する。
func NewCommentService(
	comments repository.CommentRepository,
	posts repository.PostRepository,
	uploader media.Uploader,
	sanitizer security.TextSanitizer,
) *CommentService {
	return &CommentService{
		comments:  comments,
		posts:     posts,
		uploader:  uploader,
		sanitizer: sanitizer,
		now:       time.Now,
	}
}

// ListByPost は投稿へのコメントを古い順に返す。
func (s *CommentService) ListByPost(ctx context.Context, postID string) ([]*model.Comment, error) {
	if err := s.requirePost(ctx, postID); err != nil {
		return nil, err
	}
	comments, err := s.comments.ListByPost(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("コメント一覧の取得に失敗しました: %w", err)
	}
	return comments, nil
}

// List は全コメントを返す。
func (s *CommentService) List(ctx context.Context) ([]*model.Comment, error) {
	comments, err := s.comments.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("コメント一覧の取得に失敗しました: %w", err)
	}
	return comments, nil
}

// Create は投稿にコメントする。認証済みであれば誰でもコメントできる。
func (s *CommentService) Create(ctx context.Context, author *model.User, postID string, in CommentInput) (*model.Comment, error) {
	if author == nil {
		return nil, model.NewUnauthorizedError()
	}
	if err := s.requirePost(ctx, postID); err != nil {
		return nil, err
	}

	text := s.sanitizer.Sanitize(in.Comment)
	if err := validateComment(text); err != nil {
		return nil, err
	}
	if text == "" && len(in.Image) == 0 {
		return nil, model.NewValidationError("コメント本文または画像を指定してください")
	}

	var imageURL string
	if len(in.Image) > 0 {
		folder := fmt.Sprintf("%s/post_images/%s/comment_images", author.ID, postID)
		url, err := uploadImage(ctx, s.uploader, in.Image, folder, media.CommentImage)
		if err != nil {
			return nil, err
		}
		imageURL = url
	}

	now := s.now().UTC()
	c := &model.Comment{
		ID:        uuid.New().String(),
		PostID:    postID,
		UserID:    author.ID,
		Comment:   text,
		Image:     imageURL,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.comments.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("コメントの作成に失敗しました: %w", err)
	}

	slog.Info("comment created",
		slog.String("comment_id", c.ID),
		slog.String("post_id", postID),
		slog.String("user_id", author.ID),
	)
	return c, nil
}

// Get は指定IDのコメントを返す。
func (s *CommentService) Get(ctx context.Context, id string) (*model.Comment, error) {
	c, err := s.comments.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("コメントの取得に失敗しました: %w", err)
	}
	if c == nil {
		return nil, model.NewCommentNotFoundError(id)
	}
	return c, nil
}

// Update はコメント本文を更新する。
func (s *CommentService) Update(ctx context.Context, id, comment string) (*model.Comment, error) {
	text := s.sanitizer.Sanitize(comment)
	if text == "" {
		return nil, model.NewValidationError("コメント本文を入力してください")
	}
	if err := validateComment(text); err != nil {
		return nil, err
	}

	c, err := s.comments.Update(ctx, id, text)
	if err != nil {
		return nil, fmt.Errorf("コメントの更新に失敗しました: %w", err)
	}
	if c == nil {
		return nil, model.NewCommentNotFoundError(id)
	}
	return c, nil
}

// Delete は指定IDのコメントを削除する。
func (s *CommentService) Delete(ctx context.Context, id string) error {
	err := s.comments.DeleteByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.NewCommentNotFoundError(id)
	}
	if err != nil {
		return fmt.Errorf("コメントの削除に失敗しました: %w", err)
	}
	return nil
}

func (s *CommentService) requirePost(ctx context.Context, postID string) error {
	p, err := s.posts.FindByID(ctx, postID)
	if err != nil {
		return fmt.Errorf("投稿の取得に失敗しました: %w", err)
	}
	if p == nil {
		return model.NewPostNotFoundError(postID)
	}
	return nil
}

func validateComment(text string) error {
	if utf8.RuneCountInString(text) > model.MaxPostTextLength {
		return model.NewValidationError(fmt.Sprintf("コメントは%d文字以内で入力してください", model.MaxPostTextLength))
	}
	return nil
}
