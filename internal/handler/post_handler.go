package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/friendsplace/internal/model"
	"github.com/hitoshi/friendsplace/internal/post"
)

// PostServiceInterface は投稿ハンドラーが必要とするサービスインターフェース。
type PostServiceInterface interface {
	List(ctx context.Context, limit int) ([]*model.Post, error)
	Create(ctx context.Context, author *model.User, in post.CreateInput) (*model.Post, error)
	Get(ctx context.Context, id string) (*post.Detail, error)
	Update(ctx context.Context, requester *model.User, id string, in post.UpdateInput) (*model.Post, error)
	Delete(ctx context.Context, requester *model.User, id string) error
}

// PostHandler は投稿のHTTPハンドラー。
type PostHandler struct {
	responder
	service       PostServiceInterface
	maxUploadSize int64
}

// NewPostHandler はPostHandlerを生成する。
func NewPostHandler(service PostServiceInterface, maxUploadSize int64, detail bool) *PostHandler {
	return &PostHandler{
		responder:     responder{detail: detail},
		service:       service,
		maxUploadSize: maxUploadSize,
	}
}

// List は投稿を新しい順に返す。limitクエリで件数を指定できる。
// GET /api/v1/posts
func (h *PostHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.fail(w, r, model.NewValidationError("limitは1以上の整数で指定してください"))
			return
		}
		limit = n
	}

	posts, err := h.service.List(r.Context(), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]postResponse, 0, len(posts))
	for _, p := range posts {
		out = append(out, toPostResponse(p))
	}
	writeList(w, len(out), map[string]any{"posts": out})
}

type createPostRequest struct {
	Text       string `json:"text"`
	Background string `json:"background"`
}

// Create は投稿を作成する。multipart/form-dataの場合はimageも受け付ける。
// POST /api/v1/posts
func (h *PostHandler) Create(w http.ResponseWriter, r *http.Request) {
	current, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var in post.CreateInput
	if isMultipart(r) {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+maxJSONBody)
		if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
			h.fail(w, r, model.NewValidationError("フォームの形式が正しくないか、サイズが大きすぎます"))
			return
		}
		in.Text = r.FormValue("text")
		in.Background = r.FormValue("background")
		if in.Image, err = readFormFile(r, "image", h.maxUploadSize); err != nil {
			h.fail(w, r, err)
			return
		}
	} else {
		var req createPostRequest
		if err := decodeJSON(w, r, &req); err != nil {
			h.fail(w, r, err)
			return
		}
		in.Text = req.Text
		in.Background = req.Background
	}

	p, err := h.service.Create(r.Context(), current, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, map[string]any{"post": toPostResponse(p)})
}

// Get はリアクションとコメントを含む投稿詳細を返す。
// GET /api/v1/posts/{postId}
func (h *PostHandler) Get(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.Get(r.Context(), chi.URLParam(r, "postId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"post":     toPostResponse(d.Post),
		"reacts":   toReactResponses(d.Reacts),
		"comments": toCommentResponses(d.Comments),
	})
}

// Update は投稿の本文と背景を更新する。投稿者本人または管理者のみ。
// PATCH /api/v1/posts/{postId}
func (h *PostHandler) Update(w http.ResponseWriter, r *http.Request) {
	current, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var in post.UpdateInput
	if err := decodeJSON(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}

	p, err := h.service.Update(r.Context(), current, chi.URLParam(r, "postId"), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"post": toPostResponse(p)})
}

// Delete は投稿を削除する。投稿者本人または管理者のみ。
// DELETE /api/v1/posts/{postId}
func (h *PostHandler) Delete(w http.ResponseWriter, r *http.Request) {
	current, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.service.Delete(r.Context(), current, chi.URLParam(r, "postId")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
