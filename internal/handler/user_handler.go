package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/friendsplace/internal/model"
	"github.com/hitoshi/friendsplace/internal/policy"
	"github.com/hitoshi/friendsplace/internal/user"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	Create(ctx context.Context, in user.CreateInput) (*model.User, error)
	Get(ctx context.Context, id string) (*model.User, error)
	List(ctx context.Context) ([]*model.User, error)
	UpdateProfile(ctx context.Context, userID string, in user.ProfileInput, images user.ProfileImages) (*model.User, error)
	UpdateDetails(ctx context.Context, userID string, in user.DetailsInput) (*model.User, error)
	AdminUpdate(ctx context.Context, id string, in user.AdminUpdateInput) (*model.User, error)
	// Delete はユーザーを削除する。フレンド関係・投稿・リアクションも削除される。
	Delete(ctx context.Context, id string) error
	ToggleSavedPost(ctx context.Context, userID, postID string) (bool, error)
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	responder
	service       UserServiceInterface
	maxUploadSize int64
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface, maxUploadSize int64, detail bool) *UserHandler {
	return &UserHandler{
		responder:     responder{detail: detail},
		service:       service,
		maxUploadSize: maxUploadSize,
	}
}

// Me はログイン中のユーザー情報を返す。
// GET /api/v1/users/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	current, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"user": toUserResponse(current)})
}

// UpdateMe はプロフィールを更新する。
// multipart/form-dataの場合はavatar、coverPhotoの画像も受け付ける。
// PATCH /api/v1/users/updateMe
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	current, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var (
		in     user.ProfileInput
		images user.ProfileImages
	)
	if isMultipart(r) {
		in, images, err = h.parseProfileForm(w, r)
	} else {
		err = decodeJSON(w, r, &in)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}

	u, err := h.service.UpdateProfile(r.Context(), current.ID, in, images)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"user": toUserResponse(u)})
}

// parseProfileForm はmultipartフォームからプロフィール入力と画像を読み取る。
func (h *UserHandler) parseProfileForm(w http.ResponseWriter, r *http.Request) (user.ProfileInput, user.ProfileImages, error) {
	var (
		in     user.ProfileInput
		images user.ProfileImages
	)
	// 画像2枚とテキスト項目分の余裕を見込む
	r.Body = http.MaxBytesReader(w, r.Body, 2*h.maxUploadSize+maxJSONBody)
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		return in, images, model.NewValidationError("フォームの形式が正しくないか、サイズが大きすぎます")
	}

	for field, dst := range map[string]**string{
		"firstName": &in.FirstName,
		"lastName":  &in.LastName,
		"username":  &in.Username,
		"gender":    &in.Gender,
	} {
		if v, ok := r.MultipartForm.Value[field]; ok && len(v) > 0 {
			s := v[0]
			*dst = &s
		}
	}
	for field, dst := range map[string]**int{
		"birthYear":  &in.BirthYear,
		"birthMonth": &in.BirthMonth,
		"birthDate":  &in.BirthDate,
	} {
		v, ok := r.MultipartForm.Value[field]
		if !ok || len(v) == 0 {
			continue
		}
		n, err := strconv.Atoi(v[0])
		if err != nil {
			return in, images, model.NewValidationError(field + "は数値で入力してください")
		}
		*dst = &n
	}

	var err error
	if images.Avatar, err = readFormFile(r, "avatar", h.maxUploadSize); err != nil {
		return in, images, err
	}
	if images.CoverPhoto, err = readFormFile(r, "coverPhoto", h.maxUploadSize); err != nil {
		return in, images, err
	}
	return in, images, nil
}

// UpdateMyDetails はプロフィール詳細を更新する。
// PATCH /api/v1/users/updateMyDetails
func (h *UserHandler) UpdateMyDetails(w http.ResponseWriter, r *http.Request) {
	current, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var in user.DetailsInput
	if err := decodeJSON(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}

	u, err := h.service.UpdateDetails(r.Context(), current.ID, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"user": toUserResponse(u)})
}

// DeleteMe はユーザーの退会処理を実行する。
// DELETE /api/v1/users/deleteMe
func (h *UserHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	current, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.deleteUser(w, r, current, current.ID)
}

// SavePost は投稿の保存状態を切り替える。
// PATCH /api/v1/users/savePost/{postId}
func (h *UserHandler) SavePost(w http.ResponseWriter, r *http.Request) {
	current, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	saved, err := h.service.ToggleSavedPost(r.Context(), current.ID, chi.URLParam(r, "postId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]bool{"saved": saved})
}

// List は全ユーザーを返す。
// GET /api/v1/users (admin)
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u))
	}
	writeList(w, len(out), map[string]any{"users": out})
}

// Create は管理者がユーザーを作成する。
// POST /api/v1/users (admin)
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in user.CreateInput
	if err := decodeJSON(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}

	u, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, map[string]any{"user": toUserResponse(u)})
}

// Get は指定ユーザーを返す。
// GET /api/v1/users/{id} (admin)
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	u, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"user": toUserResponse(u)})
}

// Update は管理者がユーザーを更新する。パスワードは変更できない。
// PATCH /api/v1/users/{id} (admin)
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	var raw map[string]json.RawMessage
	if err := decodeJSON(w, r, &raw); err != nil {
		h.fail(w, r, err)
		return
	}
	if _, ok := raw["password"]; ok {
		h.fail(w, r, model.NewValidationError("このエンドポイントではパスワードを変更できません"))
		return
	}

	var in user.AdminUpdateInput
	if err := remarshal(raw, &in); err != nil {
		h.fail(w, r, err)
		return
	}

	u, err := h.service.AdminUpdate(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"user": toUserResponse(u)})
}

// Delete は管理者がユーザーを削除する。
// DELETE /api/v1/users/{id} (admin)
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	current, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.deleteUser(w, r, current, chi.URLParam(r, "id"))
}

// deleteUser は退会と管理者削除で共通の削除処理。
// 対象が本人でも管理者でもない場合は削除前に拒否する。
func (h *UserHandler) deleteUser(w http.ResponseWriter, r *http.Request, requester *model.User, targetID string) {
	if err := policy.CanActOnUser(requester, targetID); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.service.Delete(r.Context(), targetID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// remarshal はデコード済みのフィールド群を構造体に詰め直す。
func remarshal(raw map[string]json.RawMessage, v any) error {
	b, err := json.Marshal(raw)
	if err != nil {
		return model.NewValidationError("リクエストボディの形式が正しくありません")
	}
	if err := json.Unmarshal(b, v); err != nil {
		return model.NewValidationError("リクエストボディの形式が正しくありません")
	}
	return nil
}
