// Package credential はパスワードハッシュと署名付きトークンの発行・検証を提供する。
package credential

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// パスワード長の制約。bcryptは72バイトを超える入力を扱えない。
const (
	MinPasswordLength = 8
	MaxPasswordLength = 72
)

// DefaultBcryptCost はパスワードハッシュの既定コスト。
const DefaultBcryptCost = 12

var (
	// ErrPasswordTooShort はパスワードが短すぎる場合のエラー。
	ErrPasswordTooShort = errors.New("password is too short")
	// ErrPasswordTooLong はパスワードが長すぎる場合のエラー。
	ErrPasswordTooLong = errors.New("password is too long")
)

// PasswordHasher はbcryptによるパスワードハッシュを扱う。
type PasswordHasher struct {
	cost int
}

// NewPasswordHasher はPasswordHasherを生成する。
// bcryptの許容範囲外のコストは既定値に置き換える。
func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	return &PasswordHasher{cost: cost}
}

// CheckPolicy はパスワード長の制約を検証する。
func CheckPolicy(plain string) error {
	if len(plain) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	if len(plain) > MaxPasswordLength {
		return ErrPasswordTooLong
	}
	return nil
}

// Hash は平文パスワードをハッシュ化する。
func (h *PasswordHasher) Hash(plain string) (string, error) {
	if err := CheckPolicy(plain); err != nil {
		return "", err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// Verify は平文パスワードがハッシュと一致するかを返す。
func (h *PasswordHasher) Verify(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
