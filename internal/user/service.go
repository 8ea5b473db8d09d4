// Package user はユーザー管理（登録、プロフィール更新、退会、管理者向けCRUD、保存済み投稿）のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/hitoshi/friendsplace/internal/credential"
	"github.com/hitoshi/friendsplace/internal/media"
	"github.com/hitoshi/friendsplace/internal/model"
	"github.com/hitoshi/friendsplace/internal/repository"
	"github.com/hitoshi/friendsplace/internal/security"
)

// PostFinder は保存対象の投稿の存在確認に使うインターフェース。
type PostFinder interface {
	FindByID(ctx context.Context, id string) (*model.Post, error)
}

// CreateInput はユーザー作成の入力。サインアップと管理者作成で共用する。
type CreateInput struct {
	FirstName  string `json:"firstName" validate:"required,alpha,min=3,max=30"`
	LastName   string `json:"lastName" validate:"required,alpha,min=3,max=30"`
	Username   string `json:"username" validate:"required,alpha,min=3,max=30"`
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required"`
	Gender     string `json:"gender" validate:"required,oneof=male female"`
	BirthYear  int    `json:"birthYear" validate:"required,min=1900,notfuture_year"`
	BirthMonth int    `json:"birthMonth" validate:"required,min=1,max=12"`
	BirthDate  int    `json:"birthDate" validate:"required,min=1,max=31"`
	// Role と IsVerified は管理者作成でのみ使う。
	Role       string `json:"role" validate:"omitempty,oneof=user admin"`
	IsVerified bool   `json:"isVerified"`
}

// ProfileInput は本人によるプロフィール更新の入力。nilのフィールドは変更しない。
type ProfileInput struct {
	FirstName  *string `json:"firstName" validate:"omitempty,alpha,min=3,max=30"`
	LastName   *string `json:"lastName" validate:"omitempty,alpha,min=3,max=30"`
	Username   *string `json:"username" validate:"omitempty,alpha,min=3,max=30"`
	Gender     *string `json:"gender" validate:"omitempty,oneof=male female"`
	BirthYear  *int    `json:"birthYear" validate:"omitempty,min=1900,notfuture_year"`
	BirthMonth *int    `json:"birthMonth" validate:"omitempty,min=1,max=12"`
	BirthDate  *int    `json:"birthDate" validate:"omitempty,min=1,max=31"`
}

// ProfileImages はプロフィール更新時にアップロードする画像。
type ProfileImages struct {
	Avatar     []byte
	CoverPhoto []byte
}

// AdminUpdateInput は管理者によるユーザー更新の入力。パスワードは変更できない。
type AdminUpdateInput struct {
	ProfileInput
	Email      *string `json:"email" validate:"omitempty,email"`
	Role       *string `json:"role" validate:"omitempty,oneof=user admin"`
	IsVerified *bool   `json:"isVerified"`
}

// DetailsInput はプロフィール詳細の更新入力。nilのフィールドは変更しない。
// 空文字列を指定するとその項目を消去する。
type DetailsInput struct {
	Bio          *string `json:"bio" validate:"omitempty,max=500"`
	Job          *string `json:"job" validate:"omitempty,max=100"`
	Workplace    *string `json:"workplace" validate:"omitempty,max=100"`
	HighSchool   *string `json:"highSchool" validate:"omitempty,max=100"`
	College      *string `json:"college" validate:"omitempty,max=100"`
	CurrentCity  *string `json:"currentCity" validate:"omitempty,max=100"`
	HomeTown     *string `json:"homeTown" validate:"omitempty,max=100"`
	Relationship *string `json:"relationship" validate:"omitempty,relationship"`
	Instagram    *string `json:"instagram" validate:"omitempty,max=200"`
	LinkedIn     *string `json:"linkedin" validate:"omitempty,max=200"`
	Twitter      *string `json:"twitter" validate:"omitempty,max=200"`
}

// Service はユーザー管理のサービス層。
type Service struct {
	users    repository.UserRepository
	posts    PostFinder
	hasher   *credential.PasswordHasher
	uploader media.Uploader
	guard    security.URLGuard
	validate *validator.Validate
	now      func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	users repository.UserRepository,
	posts PostFinder,
	hasher *credential.PasswordHasher,
	uploader media.Uploader,
	guard security.URLGuard,
) *Service {
	now := func() time.Time { return time.Now().UTC() }
	return &Service{
		users:    users,
		posts:    posts,
		hasher:   hasher,
		uploader: uploader,
		guard:    guard,
		validate: newValidator(now),
		now:      now,
	}
}

// Create は入力を検証し、パスワードをハッシュ化してユーザーを作成する。
func (s *Service) Create(ctx context.Context, in CreateInput) (*model.User, error) {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}
	if err := passwordPolicyError(in.Password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("パスワードのハッシュ化に失敗しました: %w", err)
	}

	role := model.RoleUser
	if in.Role != "" {
		role = model.Role(in.Role)
	}

	now := s.now()
	u := &model.User{
		ID:           uuid.NewString(),
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         role,
		IsVerified:   in.IsVerified,
		Gender:       model.Gender(in.Gender),
		BirthYear:    in.BirthYear,
		BirthMonth:   in.BirthMonth,
		BirthDate:    in.BirthDate,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, mapStoreError("ユーザーの作成に失敗しました", err)
	}

	slog.Info("user created",
		slog.String("user_id", u.ID),
		slog.String("role", string(u.Role)),
	)
	return u, nil
}

// Get は指定IDのユーザーを返す。
func (s *Service) Get(ctx context.Context, id string) (*model.User, error) {
	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if u == nil {
		return nil, model.NewUserNotFoundError()
	}
	return u, nil
}

// List は全ユーザーを返す。管理者向け。
func (s *Service) List(ctx context.Context) ([]*model.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	return users, nil
}

// UpdateProfile は本人のプロフィールと画像を更新する。
// 画像は検証が通った後にアップロードする。
func (s *Service) UpdateProfile(ctx context.Context, userID string, in ProfileInput, images ProfileImages) (*model.User, error) {
	trimProfile(&in)
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}

	patch := profilePatch(in)
	if len(images.Avatar) > 0 {
		url, err := s.upload(ctx, images.Avatar, userID+"/profile_images", media.Avatar)
		if err != nil {
			return nil, err
		}
		patch.Avatar = &url
	}
	if len(images.CoverPhoto) > 0 {
		url, err := s.upload(ctx, images.CoverPhoto, userID+"/cover_images", media.CoverPhoto)
		if err != nil {
			return nil, err
		}
		patch.CoverPhoto = &url
	}

	return s.apply(ctx, userID, patch)
}

// UpdateDetails はプロフィール詳細を更新する。
// SNSリンクはhttp(s)かつ公開ホストを指すURLのみ受け付ける。
func (s *Service) UpdateDetails(ctx context.Context, userID string, in DetailsInput) (*model.User, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}
	for _, link := range []*string{in.Instagram, in.LinkedIn, in.Twitter} {
		if link == nil || *link == "" {
			continue
		}
		if err := s.checkLink(*link); err != nil {
			return nil, err
		}
	}

	current, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	details := mergeDetails(current.Details, in)
	return s.apply(ctx, userID, model.UserPatch{Details: &details})
}

// AdminUpdate は管理者がユーザーを更新する。
func (s *Service) AdminUpdate(ctx context.Context, id string, in AdminUpdateInput) (*model.User, error) {
	trimProfile(&in.ProfileInput)
	if in.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*in.Email))
		in.Email = &email
	}
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}

	patch := profilePatch(in.ProfileInput)
	patch.Email = in.Email
	patch.IsVerified = in.IsVerified
	if in.Role != nil {
		role := model.Role(*in.Role)
		patch.Role = &role
	}
	return s.apply(ctx, id, patch)
}

// Delete は指定IDのユーザーを削除する。フレンド行・投稿・リアクションはCASCADE削除される。
func (s *Service) Delete(ctx context.Context, id string) error {
	slog.Info("退会処理を開始します", slog.String("user_id", id))

	err := s.users.DeleteByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.NewUserNotFoundError()
	}
	if err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	slog.Info("退会処理が完了しました", slog.String("user_id", id))
	return nil
}

// ToggleSavedPost は投稿の保存状態を切り替え、切り替え後に保存済みかを返す。
func (s *Service) ToggleSavedPost(ctx context.Context, userID, postID string) (bool, error) {
	post, err := s.posts.FindByID(ctx, postID)
	if err != nil {
		return false, fmt.Errorf("投稿の取得に失敗しました: %w", err)
	}
	if post == nil {
		return false, model.NewPostNotFoundError(postID)
	}

	saved, err := s.users.ToggleSavedPost(ctx, userID, postID)
	if err != nil {
		return false, fmt.Errorf("保存済み投稿の更新に失敗しました: %w", err)
	}
	return saved, nil
}

func (s *Service) apply(ctx context.Context, id string, patch model.UserPatch) (*model.User, error) {
	if patch.IsEmpty() {
		return s.Get(ctx, id)
	}
	u, err := s.users.Update(ctx, id, patch)
	if err != nil {
		return nil, mapStoreError("ユーザーの更新に失敗しました", err)
	}
	if u == nil {
		return nil, model.NewUserNotFoundError()
	}
	return u, nil
}

func (s *Service) upload(ctx context.Context, data []byte, folder string, t media.Transform) (string, error) {
	url, err := s.uploader.Upload(ctx, data, folder, t)
	if err == nil {
		return url, nil
	}
	if errors.Is(err, media.ErrInvalidImage) {
		return "", model.NewValidationError("画像ファイルを読み込めませんでした")
	}
	if errors.Is(err, media.ErrTooLarge) {
		return "", model.NewValidationError("画像ファイルのサイズが大きすぎます")
	}
	slog.ErrorContext(ctx, "profile image upload failed",
		slog.String("folder", folder),
		slog.String("error", err.Error()),
	)
	return "", model.NewUploadError()
}

func (s *Service) checkLink(link string) error {
	err := s.guard.ValidateURL(link)
	if err == nil {
		return nil
	}
	var blocked *security.BlockedHostError
	if errors.As(err, &blocked) {
		return model.NewSSRFBlockedError()
	}
	return model.NewInvalidURLError(link)
}

// passwordPolicyError はパスワード長の違反をValidationErrorに変換する。
func passwordPolicyError(plain string) error {
	switch credential.CheckPolicy(plain) {
	case credential.ErrPasswordTooShort:
		return model.NewValidationError(fmt.Sprintf("パスワードは%d文字以上で入力してください", credential.MinPasswordLength))
	case credential.ErrPasswordTooLong:
		return model.NewValidationError(fmt.Sprintf("パスワードは%d文字以内で入力してください", credential.MaxPasswordLength))
	}
	return nil
}

// PasswordPolicyError はパスワード長の違反をValidationErrorとして返す。違反がなければnil。
func PasswordPolicyError(plain string) error {
	return passwordPolicyError(plain)
}

// mapStoreError は一意制約違反をDUPLICATE_FIELDに変換し、それ以外はラップして返す。
func mapStoreError(msg string, err error) error {
	var dup *repository.DuplicateError
	if errors.As(err, &dup) {
		return model.NewDuplicateFieldError(dup.Field)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func trimProfile(in *ProfileInput) {
	for _, p := range []*string{in.FirstName, in.LastName, in.Username} {
		if p != nil {
			*p = strings.TrimSpace(*p)
		}
	}
}

func profilePatch(in ProfileInput) model.UserPatch {
	patch := model.UserPatch{
		FirstName:  in.FirstName,
		LastName:   in.LastName,
		Username:   in.Username,
		BirthYear:  in.BirthYear,
		BirthMonth: in.BirthMonth,
		BirthDate:  in.BirthDate,
	}
	if in.Gender != nil {
		g := model.Gender(*in.Gender)
		patch.Gender = &g
	}
	return patch
}

func mergeDetails(d model.Details, in DetailsInput) model.Details {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	set(&d.Bio, in.Bio)
	set(&d.Job, in.Job)
	set(&d.Workplace, in.Workplace)
	set(&d.HighSchool, in.HighSchool)
	set(&d.College, in.College)
	set(&d.CurrentCity, in.CurrentCity)
	set(&d.HomeTown, in.HomeTown)
	set(&d.Relationship, in.Relationship)
	set(&d.Instagram, in.Instagram)
	set(&d.LinkedIn, in.LinkedIn)
	set(&d.Twitter, in.Twitter)
	return d
}
