package social

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/hitoshi/friendsplace/internal/model"
	"github.com/hitoshi/friendsplace/internal/repository"
)

// --- インメモリのフレンドグラフ ---

type pair [2]string

type memGraph struct {
	mu       sync.Mutex
	users    map[string]bool
	requests map[pair]bool // {sender, receiver}
	edges    map[pair]bool // {user, friend}
	failWith error
}

func newMemGraph(users ...string) *memGraph {
	g := &memGraph{
		users:    make(map[string]bool),
		requests: make(map[pair]bool),
		edges:    make(map[pair]bool),
	}
	for _, u := range users {
		g.users[u] = true
	}
	return g
}

func cloneSet(m map[pair]bool) map[pair]bool {
	c := make(map[pair]bool, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// WithPairLock はグラフ全体をロックし、fnがエラーを返した場合は変更を巻き戻す。
func (g *memGraph) WithPairLock(ctx context.Context, a, b string, fn func(tx repository.GraphTx) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failWith != nil {
		return g.failWith
	}
	reqs, edges := cloneSet(g.requests), cloneSet(g.edges)
	if err := fn(memTx{g}); err != nil {
		g.requests, g.edges = reqs, edges
		return err
	}
	return nil
}

func (g *memGraph) ListFriends(ctx context.Context, userID string) ([]*model.UserSummary, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []*model.UserSummary
	for e := range g.edges {
		if e[0] == userID {
			out = append(out, &model.UserSummary{ID: e[1]})
		}
	}
	return out, nil
}

func (g *memGraph) ListRequests(ctx context.Context, userID string) ([]*model.UserSummary, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []*model.UserSummary
	for r := range g.requests {
		if r[1] == userID {
			out = append(out, &model.UserSummary{ID: r[0]})
		}
	}
	return out, nil
}

func (g *memGraph) ListOrphanEdges(ctx context.Context, limit int) ([]repository.FriendEdge, error) {
	return nil, nil
}

func (g *memGraph) DeleteRequestsBetweenFriends(ctx context.Context) (int64, error) {
	return 0, nil
}

type memTx struct{ g *memGraph }

func (t memTx) UserExists(ctx context.Context, id string) (bool, error) { return t.g.users[id], nil }
func (t memTx) HasFriendEdge(ctx context.Context, from, to string) (bool, error) {
	return t.g.edges[pair{from, to}], nil
}
func (t memTx) HasRequest(ctx context.Context, sender, receiver string) (bool, error) {
	return t.g.requests[pair{sender, receiver}], nil
}
func (t memTx) AddRequest(ctx context.Context, sender, receiver string) error {
	t.g.requests[pair{sender, receiver}] = true
	return nil
}
func (t memTx) RemoveRequest(ctx context.Context, sender, receiver string) (bool, error) {
	k := pair{sender, receiver}
	ok := t.g.requests[k]
	delete(t.g.requests, k)
	return ok, nil
}
func (t memTx) AddFriendEdge(ctx context.Context, from, to string) error {
	t.g.edges[pair{from, to}] = true
	return nil
}
func (t memTx) RemoveFriendEdge(ctx context.Context, from, to string) (bool, error) {
	k := pair{from, to}
	ok := t.g.edges[k]
	delete(t.g.edges, k)
	return ok, nil
}

var _ repository.FriendGraphRepository = (*memGraph)(nil)

// symmetric は全てのフレンド行に逆向きの行があるかを返す。
func (g *memGraph) symmetric() bool {
	for e := range g.edges {
		if !g.edges[pair{e[1], e[0]}] {
			return false
		}
	}
	return true
}

func assertAPIErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError with code %s, got %v", code, err)
	}
	if apiErr.Code != code {
		t.Errorf("error code = %s, want %s", apiErr.Code, code)
	}
}

// --- SendOrCancel ---

func TestSendOrCancel_SendThenCancel(t *testing.T) {
	g := newMemGraph("a", "b")
	svc := NewFriendService(g, nil)
	ctx := context.Background()

	outcome, err := svc.SendOrCancel(ctx, "a", "b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != model.FriendRequestSent {
		t.Errorf("outcome = %s, want %s", outcome, model.FriendRequestSent)
	}
	if !g.requests[pair{"a", "b"}] {
		t.Error("request a->b should be pending")
	}

	outcome, err = svc.SendOrCancel(ctx, "a", "b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != model.FriendRequestCancelled {
		t.Errorf("outcome = %s, want %s", outcome, model.FriendRequestCancelled)
	}
	if len(g.requests) != 0 {
		t.Errorf("requests = %v, want empty", g.requests)
	}
}

func TestSendOrCancel_Self(t *testing.T) {
	svc := NewFriendService(newMemGraph("a"), nil)

	_, err := svc.SendOrCancel(context.Background(), "a", "a")
	assertAPIErrorCode(t, err, model.ErrCodeValidation)
}

func TestSendOrCancel_UnknownReceiver(t *testing.T) {
	svc := NewFriendService(newMemGraph("a"), nil)

	_, err := svc.SendOrCancel(context.Background(), "a", "ghost")
	assertAPIErrorCode(t, err, model.ErrCodeUserNotFound)
}

func TestSendOrCancel_AlreadyFriends(t *testing.T) {
	g := newMemGraph("a", "b")
	g.edges[pair{"a", "b"}] = true
	g.edges[pair{"b", "a"}] = true
	svc := NewFriendService(g, nil)

	_, err := svc.SendOrCancel(context.Background(), "a", "b")
	assertAPIErrorCode(t, err, model.ErrCodeAlreadyFriends)
	if len(g.requests) != 0 {
		t.Errorf("requests = %v, want unchanged", g.requests)
	}
}

// --- Accept ---

func TestAccept_CreatesSymmetricFriendship(t *testing.T) {
	g := newMemGraph("a", "b")
	g.requests[pair{"a", "b"}] = true
	svc := NewFriendService(g, nil)

	outcome, err := svc.Accept(context.Background(), "a", "b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != model.FriendRequestAccepted {
		t.Errorf("outcome = %s, want %s", outcome, model.FriendRequestAccepted)
	}
	if !g.edges[pair{"a", "b"}] || !g.edges[pair{"b", "a"}] {
		t.Errorf("edges = %v, want both halves", g.edges)
	}
	if len(g.requests) != 0 {
		t.Errorf("requests = %v, want empty", g.requests)
	}
}

func TestAccept_MutualRequestsBothCleared(t *testing.T) {
	g := newMemGraph("a", "b")
	g.requests[pair{"a", "b"}] = true
	g.requests[pair{"b", "a"}] = true
	svc := NewFriendService(g, nil)

	if _, err := svc.Accept(context.Background(), "a", "b"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(g.requests) != 0 {
		t.Errorf("requests = %v, want empty", g.requests)
	}
}

func TestAccept_NoRequest(t *testing.T) {
	g := newMemGraph("a", "b")
	svc := NewFriendService(g, nil)

	_, err := svc.Accept(context.Background(), "a", "b")
	assertAPIErrorCode(t, err, model.ErrCodeRequestNotFound)
	if len(g.edges) != 0 {
		t.Errorf("edges = %v, want empty", g.edges)
	}
}

func TestAccept_AlreadyFriends(t *testing.T) {
	g := newMemGraph("a", "b")
	g.edges[pair{"a", "b"}] = true
	g.edges[pair{"b", "a"}] = true
	svc := NewFriendService(g, nil)

	_, err := svc.Accept(context.Background(), "a", "b")
	assertAPIErrorCode(t, err, model.ErrCodeAlreadyFriends)
}

func TestAccept_UnknownSender(t *testing.T) {
	svc := NewFriendService(newMemGraph("b"), nil)

	_, err := svc.Accept(context.Background(), "ghost", "b")
	assertAPIErrorCode(t, err, model.ErrCodeUserNotFound)
}

// 片側だけのフレンド行は、リクエストがなくても承認で対称に戻る。
func TestAccept_RepairsHalfAppliedEdge(t *testing.T) {
	tests := []struct {
		name string
		half pair
	}{
		{"receiver half only", pair{"b", "a"}},
		{"sender half only", pair{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newMemGraph("a", "b")
			g.edges[tt.half] = true
			svc := NewFriendService(g, nil)

			outcome, err := svc.Accept(context.Background(), "a", "b")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if outcome != model.FriendRequestAccepted {
				t.Errorf("outcome = %s, want %s", outcome, model.FriendRequestAccepted)
			}
			if len(g.edges) != 2 || !g.symmetric() {
				t.Errorf("edges = %v, want symmetric pair", g.edges)
			}
		})
	}
}

// --- Reject ---

func TestReject_RemovesRequestOnly(t *testing.T) {
	g := newMemGraph("a", "b")
	g.requests[pair{"a", "b"}] = true
	svc := NewFriendService(g, nil)

	outcome, err := svc.Reject(context.Background(), "a", "b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != model.FriendRequestRejected {
		t.Errorf("outcome = %s, want %s", outcome, model.FriendRequestRejected)
	}
	if len(g.requests) != 0 || len(g.edges) != 0 {
		t.Errorf("requests = %v, edges = %v, want both empty", g.requests, g.edges)
	}
}

func TestReject_NoRequest(t *testing.T) {
	svc := NewFriendService(newMemGraph("a", "b"), nil)

	_, err := svc.Reject(context.Background(), "a", "b")
	assertAPIErrorCode(t, err, model.ErrCodeRequestNotFound)
}

// --- RemoveFriend ---

func TestRemoveFriend_DeletesBothHalves(t *testing.T) {
	g := newMemGraph("a", "b")
	g.edges[pair{"a", "b"}] = true
	g.edges[pair{"b", "a"}] = true
	svc := NewFriendService(g, nil)

	outcome, err := svc.RemoveFriend(context.Background(), "a", "b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != model.FriendRemoved {
		t.Errorf("outcome = %s, want %s", outcome, model.FriendRemoved)
	}
	if len(g.edges) != 0 {
		t.Errorf("edges = %v, want empty", g.edges)
	}
}

func TestRemoveFriend_HalfEdgeIsRemoved(t *testing.T) {
	g := newMemGraph("a", "b")
	g.edges[pair{"b", "a"}] = true
	svc := NewFriendService(g, nil)

	if _, err := svc.RemoveFriend(context.Background(), "a", "b"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(g.edges) != 0 {
		t.Errorf("edges = %v, want empty", g.edges)
	}
}

func TestRemoveFriend_NotFriends(t *testing.T) {
	svc := NewFriendService(newMemGraph("a", "b"), nil)

	_, err := svc.RemoveFriend(context.Background(), "a", "b")
	assertAPIErrorCode(t, err, model.ErrCodeNotFriends)
}

func TestRemoveFriend_UnknownFriend(t *testing.T) {
	svc := NewFriendService(newMemGraph("a"), nil)

	_, err := svc.RemoveFriend(context.Background(), "a", "ghost")
	assertAPIErrorCode(t, err, model.ErrCodeUserNotFound)
}

// --- ストア障害 ---

func TestFriendService_StoreErrorIsWrapped(t *testing.T) {
	g := newMemGraph("a", "b")
	g.failWith = errors.New("connection reset")
	svc := NewFriendService(g, nil)

	_, err := svc.SendOrCancel(context.Background(), "a", "b")
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		t.Errorf("store failure should not be an APIError, got %v", apiErr)
	}
	if !errors.Is(err, g.failWith) {
		t.Errorf("error should wrap store failure, got %v", err)
	}
}

// --- 並行実行 ---

// 同じ2人に対する承認と解除を並行して実行しても、グラフは常に対称を保つ。
func TestFriendService_ConcurrentAcceptAndRemoveStaySymmetric(t *testing.T) {
	g := newMemGraph("a", "b")
	svc := NewFriendService(g, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			svc.SendOrCancel(ctx, "a", "b")
		}()
		go func() {
			defer wg.Done()
			svc.Accept(ctx, "a", "b")
		}()
		go func() {
			defer wg.Done()
			svc.RemoveFriend(ctx, "b", "a")
		}()
	}
	wg.Wait()

	if !g.symmetric() {
		t.Errorf("edges = %v, want symmetric", g.edges)
	}
	if g.edges[pair{"a", "b"}] && g.requests[pair{"a", "b"}] {
		t.Error("friends should not keep a pending request between them")
	}
}

// --- 一覧 ---

func TestFriendsAndPendingRequests(t *testing.T) {
	g := newMemGraph("a", "b", "c")
	g.edges[pair{"a", "b"}] = true
	g.edges[pair{"b", "a"}] = true
	g.requests[pair{"c", "a"}] = true
	svc := NewFriendService(g, nil)
	ctx := context.Background()

	friends, err := svc.Friends(ctx, "a")
	if err != nil || len(friends) != 1 || friends[0].ID != "b" {
		t.Errorf("Friends = (%v, %v), want [b]", friends, err)
	}
	requests, err := svc.PendingRequests(ctx, "a")
	if err != nil || len(requests) != 1 || requests[0].ID != "c" {
		t.Errorf("PendingRequests = (%v, %v), want [c]", requests, err)
	}
}
