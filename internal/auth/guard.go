package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/friendsplace/internal/credential"
	"github.com/hitoshi/friendsplace/internal/metrics"
	"github.com/hitoshi/friendsplace/internal/model"
)

// セッション検証の失敗理由。クライアントには区別せず401を返し、ログとメトリクスでのみ区別する。
var (
	ErrMissingToken = errors.New("bearer token is missing")
	ErrTokenInvalid = credential.ErrTokenInvalid
	ErrStaleSubject = errors.New("token subject no longer exists")
	ErrSuperseded   = errors.New("token was issued before the last password change")
)

// SubjectLoader はトークンのsubjectからユーザーを読み込む。
type SubjectLoader interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// Guard はリクエストごとのBearerトークンを検証する。
type Guard struct {
	tokens  *credential.TokenIssuer
	users   SubjectLoader
	metrics metrics.MetricsCollector
}

// NewGuard はGuardを生成する。
func NewGuard(tokens *credential.TokenIssuer, users SubjectLoader, m metrics.MetricsCollector) *Guard {
	if m == nil {
		m = metrics.Nop{}
	}
	return &Guard{tokens: tokens, users: users, metrics: m}
}

// Authenticate はAuthorizationヘッダーの値を検証し、認証済みユーザーを返す。
// 最後のパスワード変更より前に発行されたトークンは常に拒否する。
func (g *Guard) Authenticate(ctx context.Context, header string) (*model.User, error) {
	u, err := g.authenticate(ctx, header)
	if err != nil {
		reason := rejectionReason(err)
		if reason == "" {
			return nil, err
		}
		g.metrics.RecordAuthRejection(reason)
		slog.InfoContext(ctx, "session rejected", slog.String("reason", reason))
		return nil, err
	}
	return u, nil
}

func (g *Guard) authenticate(ctx context.Context, header string) (*model.User, error) {
	token, ok := bearerToken(header)
	if !ok {
		return nil, ErrMissingToken
	}

	claims, err := g.tokens.Verify(token, credential.KindSession)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	u, err := g.users.FindByID(ctx, claims.UserID())
	if err != nil {
		return nil, fmt.Errorf("セッションユーザーの取得に失敗しました: %w", err)
	}
	if u == nil {
		return nil, ErrStaleSubject
	}

	if u.PasswordChangedAt != nil && u.PasswordChangedAt.After(claims.IssuedAt()) {
		return nil, ErrSuperseded
	}
	return u, nil
}

func bearerToken(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrMissingToken):
		return "missing_token"
	case errors.Is(err, ErrTokenInvalid):
		return "token_invalid"
	case errors.Is(err, ErrStaleSubject):
		return "stale_subject"
	case errors.Is(err, ErrSuperseded):
		return "superseded"
	}
	return ""
}

// IsRejection はerrがトークン起因の認証失敗であればtrueを返す。
// ストア障害などのエラーではfalseを返す。
func IsRejection(err error) bool {
	return rejectionReason(err) != ""
}
