package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/friendsplace/internal/model"
)

// ReactServiceInterface はリアクションハンドラーが必要とするサービスインターフェース。
type ReactServiceInterface interface {
	React(ctx context.Context, postID, userID string, value model.ReactType) (model.ReactOutcome, error)
	ListByPost(ctx context.Context, postID string) ([]*model.React, error)
	List(ctx context.Context) ([]*model.React, error)
	Get(ctx context.Context, id string) (*model.React, error)
	Create(ctx context.Context, postID, userID string, value model.ReactType) (*model.React, error)
	Update(ctx context.Context, id string, value model.ReactType) (*model.React, error)
	Delete(ctx context.Context, id string) error
}

// ReactHandler はリアクションのHTTPハンドラー。
type ReactHandler struct {
	responder
	service ReactServiceInterface
}

// NewReactHandler はReactHandlerを生成する。
func NewReactHandler(service ReactServiceInterface, detail bool) *ReactHandler {
	return &ReactHandler{responder: responder{detail: detail}, service: service}
}

type reactRequest struct {
	React model.ReactType `json:"react"`
}

// ListByPost は投稿へのリアクション一覧を返す。
// GET /api/v1/posts/{postId}/reacts
func (h *ReactHandler) ListByPost(w http.ResponseWriter, r *http.Request) {
	reacts, err := h.service.ListByPost(r.Context(), chi.URLParam(r, "postId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeList(w, len(reacts), map[string]any{"reacts": toReactResponses(reacts)})
}

// React はログイン中のユーザーのリアクションを切り替える。
// 作成は201、変更は200、同じ値の再送による取り消しは204を返す。
// POST /api/v1/posts/{postId}/reacts
func (h *ReactHandler) React(w http.ResponseWriter, r *http.Request) {
	current, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var req reactRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	outcome, err := h.service.React(r.Context(), chi.URLParam(r, "postId"), current.ID, req.React)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	data := map[string]any{"outcome": outcome, "react": req.React}
	switch outcome {
	case model.ReactCreated:
		writeData(w, http.StatusCreated, data)
	case model.ReactRemoved:
		w.WriteHeader(http.StatusNoContent)
	default:
		writeData(w, http.StatusOK, data)
	}
}

// List は全リアクションを返す。
// GET /api/v1/reacts (admin)
func (h *ReactHandler) List(w http.ResponseWriter, r *http.Request) {
	reacts, err := h.service.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeList(w, len(reacts), map[string]any{"reacts": toReactResponses(reacts)})
}

type adminReactRequest struct {
	Post  string          `json:"post"`
	User  string          `json:"user"`
	React model.ReactType `json:"react"`
}

// Create はリアクションを直接作成する。userを省略した場合はログイン中の管理者になる。
// POST /api/v1/reacts (admin)
func (h *ReactHandler) Create(w http.ResponseWriter, r *http.Request) {
	current, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var req adminReactRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.Post == "" {
		h.fail(w, r, model.NewValidationError("postを指定してください"))
		return
	}
	if req.User == "" {
		req.User = current.ID
	}

	react, err := h.service.Create(r.Context(), req.Post, req.User, req.React)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, map[string]any{"react": toReactResponse(react)})
}

// Get は指定リアクションを返す。
// GET /api/v1/reacts/{id} (admin)
func (h *ReactHandler) Get(w http.ResponseWriter, r *http.Request) {
	react, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"react": toReactResponse(react)})
}

// Update はリアクションの値を変更する。
// PATCH /api/v1/reacts/{id} (admin)
func (h *ReactHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req reactRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	react, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), req.React)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"react": toReactResponse(react)})
}

// Delete はリアクションを削除する。
// DELETE /api/v1/reacts/{id} (admin)
func (h *ReactHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
