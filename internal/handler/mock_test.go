package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/friendsplace/internal/auth"
	"github.com/hitoshi/friendsplace/internal/middleware"
	"github.com/hitoshi/friendsplace/internal/model"
	"github.com/hitoshi/friendsplace/internal/post"
	"github.com/hitoshi/friendsplace/internal/user"
)

// --- モック定義 ---

// mockAuthService はAuthServiceInterfaceのモック実装。
type mockAuthService struct {
	signupFn         func(ctx context.Context, in user.CreateInput) (*model.User, error)
	verifyEmailFn    func(ctx context.Context, token string) (*auth.Session, error)
	loginFn          func(ctx context.Context, email, password string) (*auth.Session, error)
	forgotPasswordFn func(ctx context.Context, email string) error
	resetPasswordFn  func(ctx context.Context, token, password string) (*auth.Session, error)
	updatePasswordFn func(ctx context.Context, current *model.User, currentPassword, newPassword string) (*auth.Session, error)
}

func (m *mockAuthService) Signup(ctx context.Context, in user.CreateInput) (*model.User, error) {
	if m.signupFn != nil {
		return m.signupFn(ctx, in)
	}
	return &model.User{ID: "new-user"}, nil
}

func (m *mockAuthService) VerifyEmail(ctx context.Context, token string) (*auth.Session, error) {
	if m.verifyEmailFn != nil {
		return m.verifyEmailFn(ctx, token)
	}
	return nil, model.NewInvalidTokenError()
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (*auth.Session, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password)
	}
	return nil, model.NewInvalidCredentialsError()
}

func (m *mockAuthService) ForgotPassword(ctx context.Context, email string) error {
	if m.forgotPasswordFn != nil {
		return m.forgotPasswordFn(ctx, email)
	}
	return nil
}

func (m *mockAuthService) ResetPassword(ctx context.Context, token, password string) (*auth.Session, error) {
	if m.resetPasswordFn != nil {
		return m.resetPasswordFn(ctx, token, password)
	}
	return nil, model.NewInvalidTokenError()
}

func (m *mockAuthService) UpdatePassword(ctx context.Context, current *model.User, currentPassword, newPassword string) (*auth.Session, error) {
	if m.updatePasswordFn != nil {
		return m.updatePasswordFn(ctx, current, currentPassword, newPassword)
	}
	return nil, model.NewInvalidCredentialsError()
}

// mockUserService はUserServiceInterfaceのモック実装。
type mockUserService struct {
	createFn          func(ctx context.Context, in user.CreateInput) (*model.User, error)
	getFn             func(ctx context.Context, id string) (*model.User, error)
	listFn            func(ctx context.Context) ([]*model.User, error)
	updateProfileFn   func(ctx context.Context, userID string, in user.ProfileInput, images user.ProfileImages) (*model.User, error)
	updateDetailsFn   func(ctx context.Context, userID string, in user.DetailsInput) (*model.User, error)
	adminUpdateFn     func(ctx context.Context, id string, in user.AdminUpdateInput) (*model.User, error)
	deleteFn          func(ctx context.Context, id string) error
	toggleSavedPostFn func(ctx context.Context, userID, postID string) (bool, error)
}

func (m *mockUserService) Create(ctx context.Context, in user.CreateInput) (*model.User, error) {
	if m.createFn != nil {
		return m.createFn(ctx, in)
	}
	return &model.User{ID: "created"}, nil
}

func (m *mockUserService) Get(ctx context.Context, id string) (*model.User, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, model.NewUserNotFoundError()
}

func (m *mockUserService) List(ctx context.Context) ([]*model.User, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockUserService) UpdateProfile(ctx context.Context, userID string, in user.ProfileInput, images user.ProfileImages) (*model.User, error) {
	if m.updateProfileFn != nil {
		return m.updateProfileFn(ctx, userID, in, images)
	}
	return &model.User{ID: userID}, nil
}

func (m *mockUserService) UpdateDetails(ctx context.Context, userID string, in user.DetailsInput) (*model.User, error) {
	if m.updateDetailsFn != nil {
		return m.updateDetailsFn(ctx, userID, in)
	}
	return &model.User{ID: userID}, nil
}

func (m *mockUserService) AdminUpdate(ctx context.Context, id string, in user.AdminUpdateInput) (*model.User, error) {
	if m.adminUpdateFn != nil {
		return m.adminUpdateFn(ctx, id, in)
	}
	return &model.User{ID: id}, nil
}

func (m *mockUserService) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

func (m *mockUserService) ToggleSavedPost(ctx context.Context, userID, postID string) (bool, error) {
	if m.toggleSavedPostFn != nil {
		return m.toggleSavedPostFn(ctx, userID, postID)
	}
	return true, nil
}

// mockFriendService はFriendServiceInterfaceのモック実装。
// 呼び出された操作と引数をcallsに記録する。
type mockFriendService struct {
	outcome  model.FriendOutcome
	err      error
	calls    []string
	friends  []*model.UserSummary
	requests []*model.UserSummary
}

func (m *mockFriendService) record(op, a, b string) (model.FriendOutcome, error) {
	m.calls = append(m.calls, op+":"+a+"->"+b)
	return m.outcome, m.err
}

func (m *mockFriendService) SendOrCancel(_ context.Context, senderID, receiverID string) (model.FriendOutcome, error) {
	return m.record("send", senderID, receiverID)
}

func (m *mockFriendService) Accept(_ context.Context, senderID, receiverID string) (model.FriendOutcome, error) {
	return m.record("accept", senderID, receiverID)
}

func (m *mockFriendService) Reject(_ context.Context, senderID, receiverID string) (model.FriendOutcome, error) {
	return m.record("reject", senderID, receiverID)
}

func (m *mockFriendService) RemoveFriend(_ context.Context, userID, friendID string) (model.FriendOutcome, error) {
	return m.record("remove", userID, friendID)
}

func (m *mockFriendService) Friends(context.Context, string) ([]*model.UserSummary, error) {
	return m.friends, m.err
}

func (m *mockFriendService) PendingRequests(context.Context, string) ([]*model.UserSummary, error) {
	return m.requests, m.err
}

// mockPostService はPostServiceInterfaceのモック実装。
type mockPostService struct {
	listFn   func(ctx context.Context, limit int) ([]*model.Post, error)
	createFn func(ctx context.Context, author *model.User, in post.CreateInput) (*model.Post, error)
	getFn    func(ctx context.Context, id string) (*post.Detail, error)
	updateFn func(ctx context.Context, requester *model.User, id string, in post.UpdateInput) (*model.Post, error)
	deleteFn func(ctx context.Context, requester *model.User, id string) error
}

func (m *mockPostService) List(ctx context.Context, limit int) ([]*model.Post, error) {
	if m.listFn != nil {
		return m.listFn(ctx, limit)
	}
	return nil, nil
}

func (m *mockPostService) Create(ctx context.Context, author *model.User, in post.CreateInput) (*model.Post, error) {
	if m.createFn != nil {
		return m.createFn(ctx, author, in)
	}
	return &model.Post{ID: "post-1", UserID: author.ID, Text: in.Text}, nil
}

func (m *mockPostService) Get(ctx context.Context, id string) (*post.Detail, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, model.NewPostNotFoundError(id)
}

func (m *mockPostService) Update(ctx context.Context, requester *model.User, id string, in post.UpdateInput) (*model.Post, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, requester, id, in)
	}
	return &model.Post{ID: id}, nil
}

func (m *mockPostService) Delete(ctx context.Context, requester *model.User, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, requester, id)
	}
	return nil
}

// mockCommentService はCommentServiceInterfaceのモック実装。
type mockCommentService struct {
	listByPostFn func(ctx context.Context, postID string) ([]*model.Comment, error)
	createFn     func(ctx context.Context, author *model.User, postID string, in post.CommentInput) (*model.Comment, error)
	updateFn     func(ctx context.Context, id, comment string) (*model.Comment, error)
	deleteFn     func(ctx context.Context, id string) error
}

func (m *mockCommentService) ListByPost(ctx context.Context, postID string) ([]*model.Comment, error) {
	if m.listByPostFn != nil {
		return m.listByPostFn(ctx, postID)
	}
	return nil, nil
}

func (m *mockCommentService) List(context.Context) ([]*model.Comment, error) {
	return nil, nil
}

func (m *mockCommentService) Create(ctx context.Context, author *model.User, postID string, in post.CommentInput) (*model.Comment, error) {
	if m.createFn != nil {
		return m.createFn(ctx, author, postID, in)
	}
	return &model.Comment{ID: "comment-1", PostID: postID, UserID: author.ID, Comment: in.Comment}, nil
}

func (m *mockCommentService) Get(_ context.Context, id string) (*model.Comment, error) {
	return nil, model.NewCommentNotFoundError(id)
}

func (m *mockCommentService) Update(ctx context.Context, id, comment string) (*model.Comment, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, id, comment)
	}
	return &model.Comment{ID: id, Comment: comment}, nil
}

func (m *mockCommentService) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

// mockReactService はReactServiceInterfaceのモック実装。
type mockReactService struct {
	reactFn  func(ctx context.Context, postID, userID string, value model.ReactType) (model.ReactOutcome, error)
	createFn func(ctx context.Context, postID, userID string, value model.ReactType) (*model.React, error)
	deleteFn func(ctx context.Context, id string) error
}

func (m *mockReactService) React(ctx context.Context, postID, userID string, value model.ReactType) (model.ReactOutcome, error) {
	if m.reactFn != nil {
		return m.reactFn(ctx, postID, userID, value)
	}
	return model.ReactCreated, nil
}

func (m *mockReactService) ListByPost(context.Context, string) ([]*model.React, error) {
	return nil, nil
}

func (m *mockReactService) List(context.Context) ([]*model.React, error) {
	return nil, nil
}

func (m *mockReactService) Get(_ context.Context, id string) (*model.React, error) {
	return nil, model.NewReactNotFoundError(id)
}

func (m *mockReactService) Create(ctx context.Context, postID, userID string, value model.ReactType) (*model.React, error) {
	if m.createFn != nil {
		return m.createFn(ctx, postID, userID, value)
	}
	return &model.React{ID: "react-1", PostID: postID, UserID: userID, React: value}, nil
}

func (m *mockReactService) Update(_ context.Context, id string, value model.ReactType) (*model.React, error) {
	return &model.React{ID: id, React: value}, nil
}

func (m *mockReactService) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

// --- ヘルパー ---

var (
	alice = &model.User{ID: "alice", FirstName: "Alice", Role: model.RoleUser, IsVerified: true}
	admin = &model.User{ID: "admin", FirstName: "Admin", Role: model.RoleAdmin, IsVerified: true}
)

// withUser はセッションミドルウェアと同じ形でリクエストにユーザーを設定する。
func withUser(r *http.Request, u *model.User) *http.Request {
	return r.WithContext(middleware.ContextWithUser(r.Context(), u))
}

// withChiURLParam はchiのURLパラメータをリクエストに設定する。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

type envelope struct {
	Status  string          `json:"status"`
	Results *int            `json:"results"`
	Data    json.RawMessage `json:"data"`
}

// decodeEnvelope は成功レスポンスを読み取り、dataをvにデコードする。
func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder, v any) envelope {
	t.Helper()
	var env envelope
	if err := json.NewDecoder(w.Body).Decode(&env); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if env.Status != "success" {
		t.Errorf("status = %q, want success", env.Status)
	}
	if v != nil {
		if err := json.Unmarshal(env.Data, v); err != nil {
			t.Fatalf("failed to decode data: %v", err)
		}
	}
	return env
}

func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}
