package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/friendsplace/internal/auth"
	"github.com/hitoshi/friendsplace/internal/model"
	"github.com/hitoshi/friendsplace/internal/user"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Signup(ctx context.Context, in user.CreateInput) (*model.User, error)
	VerifyEmail(ctx context.Context, token string) (*auth.Session, error)
	Login(ctx context.Context, email, password string) (*auth.Session, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, password string) (*auth.Session, error)
	UpdatePassword(ctx context.Context, current *model.User, currentPassword, newPassword string) (*auth.Session, error)
}

// AuthHandler は認証フローのHTTPハンドラー。
type AuthHandler struct {
	responder
	service AuthServiceInterface
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, detail bool) *AuthHandler {
	return &AuthHandler{responder: responder{detail: detail}, service: service}
}

type sessionResponse struct {
	Token                 string       `json:"token"`
	User                  userResponse `json:"user"`
	VerificationEmailSent *bool        `json:"verificationEmailSent,omitempty"`
}

func newSessionResponse(s *auth.Session) sessionResponse {
	return sessionResponse{Token: s.Token, User: toUserResponse(s.User)}
}

// Signup はアカウントを作成し、認証メールを送る。
// POST /api/v1/users/signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var in user.CreateInput
	if err := decodeJSON(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}

	u, err := h.service.Signup(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, map[string]any{"user": toUserResponse(u)})
}

// VerifyEmail はメール認証を完了し、セッショントークンを返す。
// PATCH /api/v1/users/verifyEmail/{token}
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.VerifyEmail(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, newSessionResponse(session))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login はメールアドレスとパスワードで認証する。
// 未認証アカウントの場合は認証メールの再送結果も返す。
// POST /api/v1/users/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	session, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp := newSessionResponse(session)
	if !session.User.IsVerified {
		sent := session.VerificationEmailSent
		resp.VerificationEmailSent = &sent
	}
	writeData(w, http.StatusOK, resp)
}

// ForgotPassword はパスワード再設定メールを送る。
// POST /api/v1/users/forgotPassword
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.service.ForgotPassword(r.Context(), req.Email); err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"message": "パスワード再設定用のメールを送信しました"})
}

// ResetPassword は再設定トークンでパスワードを変更する。
// PATCH /api/v1/users/resetPassword/{token}
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	session, err := h.service.ResetPassword(r.Context(), chi.URLParam(r, "token"), req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, newSessionResponse(session))
}

type updatePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	Password        string `json:"password"`
}

// UpdateMyPassword はログイン中のユーザーのパスワードを変更する。
// 変更前に発行されたトークンはすべて無効になる。
// PATCH /api/v1/users/updateMyPassword
func (h *AuthHandler) UpdateMyPassword(w http.ResponseWriter, r *http.Request) {
	current, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var req updatePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	session, err := h.service.UpdatePassword(r.Context(), current, req.CurrentPassword, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, newSessionResponse(session))
}
