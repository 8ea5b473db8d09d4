package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/friendsplace/internal/model"
	"github.com/hitoshi/friendsplace/internal/post"
)

// CommentServiceInterface はコメントハンドラーが必要とするサービスインターフェース。
type CommentServiceInterface interface {
	ListByPost(ctx context.Context, postID string) ([]*model.Comment, error)
	List(ctx context.Context) ([]*model.Comment, error)
	Create(ctx context.Context, author *model.User, postID string, in post.CommentInput) (*model.Comment, error)
	Get(ctx context.Context, id string) (*model.Comment, error)
	Update(ctx context.Context, id, comment string) (*model.Comment, error)
	Delete(ctx context.Context, id string) error
}

// CommentHandler はコメントのHTTPハンドラー。
type CommentHandler struct {
	responder
	service       CommentServiceInterface
	maxUploadSize int64
}

// NewCommentHandler はCommentHandlerを生成する。
func NewCommentHandler(service CommentServiceInterface, maxUploadSize int64, detail bool) *CommentHandler {
	return &CommentHandler{
		responder:     responder{detail: detail},
		service:       service,
		maxUploadSize: maxUploadSize,
	}
}

type commentRequest struct {
	Comment string `json:"comment"`
}

// ListByPost は投稿へのコメント一覧を返す。
// GET /api/v1/posts/{postId}/comments
func (h *CommentHandler) ListByPost(w http.ResponseWriter, r *http.Request) {
	comments, err := h.service.ListByPost(r.Context(), chi.URLParam(r, "postId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeList(w, len(comments), map[string]any{"comments": toCommentResponses(comments)})
}

// Create は投稿にコメントする。multipart/form-dataの場合はimageも受け付ける。
// POST /api/v1/posts/{postId}/comments
func (h *CommentHandler) Create(w http.ResponseWriter, r *http.Request) {
	current, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var in post.CommentInput
	if isMultipart(r) {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+maxJSONBody)
		if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
			h.fail(w, r, model.NewValidationError("フォームの形式が正しくないか、サイズが大きすぎます"))
			return
		}
		in.Comment = r.FormValue("comment")
		if in.Image, err = readFormFile(r, "image", h.maxUploadSize); err != nil {
			h.fail(w, r, err)
			return
		}
	} else {
		var req commentRequest
		if err := decodeJSON(w, r, &req); err != nil {
			h.fail(w, r, err)
			return
		}
		in.Comment = req.Comment
	}

	c, err := h.service.Create(r.Context(), current, chi.URLParam(r, "postId"), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, map[string]any{"comment": toCommentResponse(c)})
}

// List は全コメントを返す。
// GET /api/v1/comments (admin)
func (h *CommentHandler) List(w http.ResponseWriter, r *http.Request) {
	comments, err := h.service.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeList(w, len(comments), map[string]any{"comments": toCommentResponses(comments)})
}

// Get は指定コメントを返す。
// GET /api/v1/comments/{id} (admin)
func (h *CommentHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"comment": toCommentResponse(c)})
}

// Update はコメント本文を変更する。
// PATCH /api/v1/comments/{id} (admin)
func (h *CommentHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	c, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), req.Comment)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"comment": toCommentResponse(c)})
}

// Delete はコメントを削除する。
// DELETE /api/v1/comments/{id} (admin)
func (h *CommentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
