package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/friendsplace/internal/model"
)

// FriendServiceInterface はフレンドハンドラーが必要とするサービスインターフェース。
type FriendServiceInterface interface {
	SendOrCancel(ctx context.Context, senderID, receiverID string) (model.FriendOutcome, error)
	Accept(ctx context.Context, senderID, receiverID string) (model.FriendOutcome, error)
	Reject(ctx context.Context, senderID, receiverID string) (model.FriendOutcome, error)
	RemoveFriend(ctx context.Context, userID, friendID string) (model.FriendOutcome, error)
	Friends(ctx context.Context, userID string) ([]*model.UserSummary, error)
	PendingRequests(ctx context.Context, userID string) ([]*model.UserSummary, error)
}

// FriendHandler はフレンド関係のHTTPハンドラー。
// 操作の主体は常にログイン中のユーザーで、対象はURLパラメータで指定する。
type FriendHandler struct {
	responder
	service FriendServiceInterface
}

// NewFriendHandler はFriendHandlerを生成する。
func NewFriendHandler(service FriendServiceInterface, detail bool) *FriendHandler {
	return &FriendHandler{responder: responder{detail: detail}, service: service}
}

// Friends はフレンド一覧を返す。
// GET /api/v1/users/me/friends
func (h *FriendHandler) Friends(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, "friends", h.service.Friends)
}

// Requests は受信中のフレンドリクエスト一覧を返す。
// GET /api/v1/users/me/requests
func (h *FriendHandler) Requests(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, "requests", h.service.PendingRequests)
}

func (h *FriendHandler) list(
	w http.ResponseWriter,
	r *http.Request,
	key string,
	fetch func(ctx context.Context, userID string) ([]*model.UserSummary, error),
) {
	current, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	users, err := fetch(r.Context(), current.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeList(w, len(users), map[string]any{key: toSummaries(users)})
}

// SendFriendRequest はフレンドリクエストを送る。送信済みの場合は取り消す。
// PATCH /api/v1/users/sendFriendRequest/{receiverId}
func (h *FriendHandler) SendFriendRequest(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, "receiverId", func(ctx context.Context, me, other string) (model.FriendOutcome, error) {
		return h.service.SendOrCancel(ctx, me, other)
	})
}

// AcceptFriendRequest は受信したリクエストを承認する。
// PATCH /api/v1/users/acceptFriendRequest/{senderId}
func (h *FriendHandler) AcceptFriendRequest(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, "senderId", func(ctx context.Context, me, other string) (model.FriendOutcome, error) {
		return h.service.Accept(ctx, other, me)
	})
}

// DeleteFriendRequest は受信したリクエストを拒否する。
// PATCH /api/v1/users/deleteFriendRequest/{senderId}
func (h *FriendHandler) DeleteFriendRequest(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, "senderId", func(ctx context.Context, me, other string) (model.FriendOutcome, error) {
		return h.service.Reject(ctx, other, me)
	})
}

// RemoveFriend はフレンドを解除する。
// PATCH /api/v1/users/removeFriend/{friendId}
func (h *FriendHandler) RemoveFriend(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, "friendId", h.service.RemoveFriend)
}

func (h *FriendHandler) mutate(
	w http.ResponseWriter,
	r *http.Request,
	param string,
	op func(ctx context.Context, me, other string) (model.FriendOutcome, error),
) {
	current, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	outcome, err := op(r.Context(), current.ID, chi.URLParam(r, param))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]model.FriendOutcome{"outcome": outcome})
}
