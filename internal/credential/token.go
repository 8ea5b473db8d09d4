package credential

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrTokenInvalid はトークンが検証できない場合のエラー。
// 署名不正・期限切れ・用途違いを区別しない。
var ErrTokenInvalid = errors.New("token is invalid or expired")

// Kind はトークンの用途を表す。用途の異なるトークンは相互に受け付けない。
type Kind string

const (
	KindSession       Kind = "session"
	KindVerifyEmail   Kind = "verify_email"
	KindResetPassword Kind = "reset_password"
)

// Claims はトークンに含めるクレーム。
// IssuedAtMicro はパスワード変更との前後比較のためマイクロ秒精度で保持する。
type Claims struct {
	Kind          Kind   `json:"typ"`
	Email         string `json:"email,omitempty"`
	IssuedAtMicro int64  `json:"iat_us"`
	jwt.RegisteredClaims
}

// UserID はsubjectに格納したユーザーIDを返す。
func (c *Claims) UserID() string {
	return c.Subject
}

// IssuedAt はトークンの発行時刻を返す。
func (c *Claims) IssuedAt() time.Time {
	return time.UnixMicro(c.IssuedAtMicro).UTC()
}

// TokenConfig は用途ごとのトークン有効期間を保持する。
type TokenConfig struct {
	SessionTTL time.Duration
	VerifyTTL  time.Duration
	ResetTTL   time.Duration
}

// TokenIssuer はHS256署名のトークンを発行・検証する。
type TokenIssuer struct {
	secret []byte
	cfg    TokenConfig
	now    func() time.Time
}

// NewTokenIssuer はTokenIssuerを生成する。
func NewTokenIssuer(secret string, cfg TokenConfig) *TokenIssuer {
	return &TokenIssuer{
		secret: []byte(secret),
		cfg:    cfg,
		now:    time.Now,
	}
}

// IssueSession はセッショントークンを発行する。
func (i *TokenIssuer) IssueSession(userID string) (string, error) {
	return i.issue(KindSession, userID, "", i.cfg.SessionTTL)
}

// IssueVerifyEmail はメール認証用トークンを発行する。
func (i *TokenIssuer) IssueVerifyEmail(userID, email string) (string, error) {
	return i.issue(KindVerifyEmail, userID, email, i.cfg.VerifyTTL)
}

// IssueResetPassword はパスワードリセット用トークンを発行する。
func (i *TokenIssuer) IssueResetPassword(email string) (string, error) {
	return i.issue(KindResetPassword, "", email, i.cfg.ResetTTL)
}

func (i *TokenIssuer) issue(kind Kind, subject, email string, ttl time.Duration) (string, error) {
	now := i.now().UTC()
	claims := &Claims{
		Kind:          kind,
		Email:         email,
		IssuedAtMicro: now.UnixMicro(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify はトークンを検証し、指定した用途のクレームを返す。
func (i *TokenIssuer) Verify(token string, kind Kind) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (interface{}, error) {
			return i.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Kind != kind || claims.IssuedAtMicro <= 0 {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
