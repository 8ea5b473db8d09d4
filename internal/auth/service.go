// Package auth は認証フロー（サインアップ、メール認証、ログイン、パスワードリセット・変更）と
// セッショントークンの検証を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/friendsplace/internal/credential"
	"github.com/hitoshi/friendsplace/internal/metrics"
	"github.com/hitoshi/friendsplace/internal/model"
	"github.com/hitoshi/friendsplace/internal/user"
)

// UserStore は認証フローで使うユーザーストアの部分集合。
type UserStore interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	Update(ctx context.Context, id string, patch model.UserPatch) (*model.User, error)
}

// Registrar は入力検証を含むユーザー作成のインターフェース。
type Registrar interface {
	Create(ctx context.Context, in user.CreateInput) (*model.User, error)
}

// Mailer は認証メールの送信インターフェース。
type Mailer interface {
	SendVerification(ctx context.Context, to, firstName, token string) error
	SendPasswordReset(ctx context.Context, to, firstName, token string) error
}

// Session はログイン成功時に返すセッション。
type Session struct {
	Token string
	User  *model.User
	// VerificationEmailSent は未認証アカウントのログイン時に認証メールを再送できたかを表す。
	VerificationEmailSent bool
}

// Service は認証フローのビジネスロジックを提供する。
type Service struct {
	users     UserStore
	registrar Registrar
	hasher    *credential.PasswordHasher
	tokens    *credential.TokenIssuer
	mailer    Mailer
	metrics   metrics.MetricsCollector
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	users UserStore,
	registrar Registrar,
	hasher *credential.PasswordHasher,
	tokens *credential.TokenIssuer,
	mailer Mailer,
	m metrics.MetricsCollector,
) *Service {
	if m == nil {
		m = metrics.Nop{}
	}
	return &Service{
		users:     users,
		registrar: registrar,
		hasher:    hasher,
		tokens:    tokens,
		mailer:    mailer,
		metrics:   m,
		now:       time.Now,
	}
}

// Signup はユーザーを未認証状態で作成し、メール認証リンクを送る。
// メール送信に失敗してもアカウントは作成済みのまま残り、ログイン時に再送される。
func (s *Service) Signup(ctx context.Context, in user.CreateInput) (*model.User, error) {
	in.Role = ""
	in.IsVerified = false

	u, err := s.registrar.Create(ctx, in)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordAuthEvent("signup")

	if err := s.sendVerification(ctx, u); err != nil {
		return nil, model.NewEmailDeliveryError()
	}
	return u, nil
}

// VerifyEmail はメール認証トークンを検証してアカウントを有効化し、セッションを発行する。
// トークン発行後にメールアドレスが変更されていた場合は無効とする。
func (s *Service) VerifyEmail(ctx context.Context, token string) (*Session, error) {
	claims, err := s.tokens.Verify(token, credential.KindVerifyEmail)
	if err != nil {
		return nil, model.NewInvalidTokenError()
	}

	u, err := s.users.FindByID(ctx, claims.UserID())
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if u == nil || !strings.EqualFold(u.Email, claims.Email) {
		return nil, model.NewInvalidTokenError()
	}
	if u.IsVerified {
		return nil, model.NewAlreadyVerifiedError()
	}

	verified := true
	u, err = s.users.Update(ctx, u.ID, model.UserPatch{IsVerified: &verified})
	if err != nil {
		return nil, fmt.Errorf("アカウントの有効化に失敗しました: %w", err)
	}
	if u == nil {
		return nil, model.NewInvalidTokenError()
	}

	s.metrics.RecordAuthEvent("verify_email")
	slog.Info("email verified", slog.String("user_id", u.ID))
	return s.newSession(u)
}

// Login はメールアドレスとパスワードを検証してセッションを発行する。
// 未認証アカウントの場合は認証メールを再送するが、ログイン自体は成功させる。
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, model.NewValidationError("メールアドレスとパスワードを入力してください")
	}

	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if u == nil || !s.hasher.Verify(u.PasswordHash, password) {
		s.metrics.RecordAuthEvent("login_failed")
		return nil, model.NewInvalidCredentialsError()
	}

	sess, err := s.newSession(u)
	if err != nil {
		return nil, err
	}
	if !u.IsVerified {
		sess.VerificationEmailSent = s.sendVerification(ctx, u) == nil
	}

	s.metrics.RecordAuthEvent("login")
	slog.Info("user logged in", slog.String("user_id", u.ID))
	return sess, nil
}

// ForgotPassword はパスワードリセットリンクを送る。
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return model.NewValidationError("メールアドレスを入力してください")
	}

	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if u == nil {
		return model.NewUserNotFoundError()
	}

	token, err := s.tokens.IssueResetPassword(u.Email)
	if err != nil {
		return fmt.Errorf("リセットトークンの発行に失敗しました: %w", err)
	}
	if err := s.mailer.SendPasswordReset(ctx, u.Email, u.FirstName, token); err != nil {
		slog.ErrorContext(ctx, "password reset email failed",
			slog.String("user_id", u.ID),
			slog.String("error", err.Error()),
		)
		return model.NewEmailDeliveryError()
	}

	s.metrics.RecordAuthEvent("forgot_password")
	return nil
}

// ResetPassword はリセットトークンを検証してパスワードを再設定し、新しいセッションを発行する。
// トークンは最後のパスワード変更とメールアドレス変更の両方より後に発行されたものに限る。
// 再設定でパスワード変更日時が進むため、同じトークンは2回使えない。
func (s *Service) ResetPassword(ctx context.Context, token, password string) (*Session, error) {
	claims, err := s.tokens.Verify(token, credential.KindResetPassword)
	if err != nil {
		return nil, model.NewInvalidTokenError()
	}

	u, err := s.users.FindByEmail(ctx, claims.Email)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if u == nil {
		return nil, model.NewUserNotFoundError()
	}

	issuedAt := claims.IssuedAt()
	for _, changed := range []*time.Time{u.PasswordChangedAt, u.EmailChangedAt} {
		if changed != nil && !issuedAt.After(*changed) {
			return nil, model.NewInvalidTokenError()
		}
	}

	u, err = s.setPassword(ctx, u.ID, password)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordAuthEvent("reset_password")
	slog.Info("password reset", slog.String("user_id", u.ID))
	return s.newSession(u)
}

// UpdatePassword は現在のパスワードを確認してから変更する。
// 変更前に発行された全セッションは無効になり、新しいセッションを返す。
func (s *Service) UpdatePassword(ctx context.Context, current *model.User, currentPassword, newPassword string) (*Session, error) {
	if currentPassword == "" || newPassword == "" {
		return nil, model.NewValidationError("現在のパスワードと新しいパスワードを入力してください")
	}
	if !s.hasher.Verify(current.PasswordHash, currentPassword) {
		s.metrics.RecordAuthEvent("update_password_failed")
		return nil, model.NewInvalidCredentialsError()
	}

	u, err := s.setPassword(ctx, current.ID, newPassword)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordAuthEvent("update_password")
	slog.Info("password updated", slog.String("user_id", u.ID))
	return s.newSession(u)
}

func (s *Service) setPassword(ctx context.Context, userID, password string) (*model.User, error) {
	if err := user.PasswordPolicyError(password); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("パスワードのハッシュ化に失敗しました: %w", err)
	}

	// セッションのiatとマイクロ秒単位で比較するため、保存値も同じ精度に揃える
	changedAt := s.now().UTC().Truncate(time.Microsecond)
	u, err := s.users.Update(ctx, userID, model.UserPatch{
		PasswordHash:      &hash,
		PasswordChangedAt: &changedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("パスワードの更新に失敗しました: %w", err)
	}
	if u == nil {
		return nil, model.NewUserNotFoundError()
	}
	return u, nil
}

func (s *Service) newSession(u *model.User) (*Session, error) {
	token, err := s.tokens.IssueSession(u.ID)
	if err != nil {
		return nil, fmt.Errorf("セッショントークンの発行に失敗しました: %w", err)
	}
	return &Session{Token: token, User: u}, nil
}

func (s *Service) sendVerification(ctx context.Context, u *model.User) error {
	token, err := s.tokens.IssueVerifyEmail(u.ID, u.Email)
	if err == nil {
		err = s.mailer.SendVerification(ctx, u.Email, u.FirstName, token)
	}
	if err != nil {
		slog.ErrorContext(ctx, "verification email failed",
			slog.String("user_id", u.ID),
			slog.String("error", err.Error()),
		)
		return errors.Join(model.NewEmailDeliveryError(), err)
	}
	return nil
}
