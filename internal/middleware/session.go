// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hitoshi/friendsplace/internal/auth"
	"github.com/hitoshi/friendsplace/internal/model"
	"github.com/hitoshi/friendsplace/internal/policy"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// userContextKey はリクエストコンテキストに認証済みユーザーを格納するためのキー。
	userContextKey = contextKey("user")
	// requestInfoKey はロギングミドルウェアが内側の処理結果を受け取るためのキー。
	requestInfoKey = contextKey("request_info")
)

// requestInfo は外側のミドルウェアへ渡すリクエスト単位の情報。
type requestInfo struct {
	userID string
}

// Authenticator はAuthorizationヘッダーから認証済みユーザーを返すインターフェース。
type Authenticator interface {
	Authenticate(ctx context.Context, header string) (*model.User, error)
}

// NewSessionMiddleware はBearerトークンを検証するミドルウェアを返す。
// 認証済みユーザーをリクエストコンテキストに注入する。
// 失敗理由にかかわらず、トークン起因の失敗には同じ401レスポンスを返す。
func NewSessionMiddleware(authenticator Authenticator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, err := authenticator.Authenticate(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				if auth.IsRejection(err) {
					WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
					return
				}
				WriteError(w, r, err, false)
				return
			}

			if info, ok := r.Context().Value(requestInfoKey).(*requestInfo); ok {
				info.userID = u.ID
			}
			next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), u)))
		})
	}
}

// RequireRole は認証済みユーザーが指定ロールのいずれかを持つ場合のみ通過させるミドルウェアを返す。
// セッションミドルウェアの後に配置する。
func RequireRole(roles ...model.Role) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, _ := UserFromContext(r.Context())
			if err := policy.RequireRole(u, roles...); err != nil {
				WriteError(w, r, err, false)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserFromContext はリクエストコンテキストから認証済みユーザーを取得する。
func UserFromContext(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(userContextKey).(*model.User)
	return u, ok && u != nil
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	u, ok := UserFromContext(ctx)
	if !ok || u.ID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return u.ID, nil
}

// ContextWithUser はコンテキストに認証済みユーザーを注入する。
func ContextWithUser(ctx context.Context, u *model.User) context.Context {
	return context.WithValue(ctx, userContextKey, u)
}
