package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/hitoshi/friendsplace/internal/model"
)

// PostgresFriendRepo はPostgreSQLを使用したフレンドグラフリポジトリ。
// friendshipsは片方向ずつの2行、friend_requestsは受信者宛ての保留集合を保持する。
type PostgresFriendRepo struct {
	db *sql.DB
}

// NewPostgresFriendRepo はPostgresFriendRepoを生成する。
func NewPostgresFriendRepo(db *sql.DB) *PostgresFriendRepo {
	return &PostgresFriendRepo{db: db}
}

// WithPairLock は2人のユーザー行をID昇順にSELECT FOR UPDATEでロックし、
// 同一トランザクション内でfnを実行する。同じ2人に対する操作は直列化される。
func (r *PostgresFriendRepo) WithPairLock(ctx context.Context, a, b string, fn func(tx GraphTx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	gtx := &pgGraphTx{tx: tx, exists: make(map[string]bool, 2)}

	ids := []string{a, b}
	sort.Strings(ids)
	for _, id := range ids {
		if _, locked := gtx.exists[id]; locked {
			continue
		}
		if !validID(id) {
			gtx.exists[id] = false
			continue
		}
		var found string
		err := tx.QueryRowContext(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, id).Scan(&found)
		if err == sql.ErrNoRows {
			gtx.exists[id] = false
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to lock user row: %w", err)
		}
		gtx.exists[id] = true
	}

	if err := fn(gtx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// pgGraphTx はWithPairLockが保持するトランザクション上のGraphTx実装。
type pgGraphTx struct {
	tx     *sql.Tx
	exists map[string]bool
}

func (g *pgGraphTx) UserExists(ctx context.Context, id string) (bool, error) {
	if ok, locked := g.exists[id]; locked {
		return ok, nil
	}
	if !validID(id) {
		return false, nil
	}
	var ok bool
	if err := g.tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).Scan(&ok); err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return ok, nil
}

func (g *pgGraphTx) HasFriendEdge(ctx context.Context, from, to string) (bool, error) {
	var ok bool
	err := g.tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM friendships WHERE user_id = $1 AND friend_id = $2)`,
		from, to,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("failed to check friendship: %w", err)
	}
	return ok, nil
}

func (g *pgGraphTx) HasRequest(ctx context.Context, sender, receiver string) (bool, error) {
	var ok bool
	err := g.tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM friend_requests WHERE sender_id = $1 AND receiver_id = $2)`,
		sender, receiver,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("failed to check friend request: %w", err)
	}
	return ok, nil
}

func (g *pgGraphTx) AddRequest(ctx context.Context, sender, receiver string) error {
	_, err := g.tx.ExecContext(ctx,
		`INSERT INTO friend_requests (sender_id, receiver_id) VALUES ($1, $2)
		 ON CONFLICT (sender_id, receiver_id) DO NOTHING`,
		sender, receiver,
	)
	if err != nil {
		return fmt.Errorf("failed to insert friend request: %w", err)
	}
	return nil
}

func (g *pgGraphTx) RemoveRequest(ctx context.Context, sender, receiver string) (bool, error) {
	result, err := g.tx.ExecContext(ctx,
		`DELETE FROM friend_requests WHERE sender_id = $1 AND receiver_id = $2`,
		sender, receiver,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete friend request: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

func (g *pgGraphTx) AddFriendEdge(ctx context.Context, from, to string) error {
	_, err := g.tx.ExecContext(ctx,
		`INSERT INTO friendships (user_id, friend_id) VALUES ($1, $2)
		 ON CONFLICT (user_id, friend_id) DO NOTHING`,
		from, to,
	)
	if err != nil {
		return fmt.Errorf("failed to insert friendship: %w", err)
	}
	return nil
}

func (g *pgGraphTx) RemoveFriendEdge(ctx context.Context, from, to string) (bool, error) {
	result, err := g.tx.ExecContext(ctx,
		`DELETE FROM friendships WHERE user_id = $1 AND friend_id = $2`,
		from, to,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete friendship: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// ListFriends はユーザーのフレンドのプロフィール概要を返す。
func (r *PostgresFriendRepo) ListFriends(ctx context.Context, userID string) ([]*model.UserSummary, error) {
	return r.listSummaries(ctx,
		`SELECT u.id, u.first_name, u.last_name, u.username, u.avatar
		 FROM friendships f JOIN users u ON u.id = f.friend_id
		 WHERE f.user_id = $1
		 ORDER BY f.created_at`,
		userID,
	)
}

// ListRequests はユーザー宛ての保留リクエスト送信者のプロフィール概要を返す。
func (r *PostgresFriendRepo) ListRequests(ctx context.Context, userID string) ([]*model.UserSummary, error) {
	return r.listSummaries(ctx,
		`SELECT u.id, u.first_name, u.last_name, u.username, u.avatar
		 FROM friend_requests fr JOIN users u ON u.id = fr.sender_id
		 WHERE fr.receiver_id = $1
		 ORDER BY fr.created_at`,
		userID,
	)
}

func (r *PostgresFriendRepo) listSummaries(ctx context.Context, query, userID string) ([]*model.UserSummary, error) {
	if !validID(userID) {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user summaries: %w", err)
	}
	defer rows.Close()

	var summaries []*model.UserSummary
	for rows.Next() {
		s := &model.UserSummary{}
		if err := rows.Scan(&s.ID, &s.FirstName, &s.LastName, &s.Username, &s.Avatar); err != nil {
			return nil, fmt.Errorf("failed to scan user summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user summaries: %w", err)
	}
	return summaries, nil
}

// ListOrphanEdges は逆方向の行が存在しないフレンド片側を最大limit件返す。
func (r *PostgresFriendRepo) ListOrphanEdges(ctx context.Context, limit int) ([]FriendEdge, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT f.user_id, f.friend_id
		 FROM friendships f
		 LEFT JOIN friendships rev ON rev.user_id = f.friend_id AND rev.friend_id = f.user_id
		 WHERE rev.user_id IS NULL
		 ORDER BY f.created_at
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list orphan friendships: %w", err)
	}
	defer rows.Close()

	var edges []FriendEdge
	for rows.Next() {
		var e FriendEdge
		if err := rows.Scan(&e.UserID, &e.FriendID); err != nil {
			return nil, fmt.Errorf("failed to scan friendship: %w", err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate friendships: %w", err)
	}
	return edges, nil
}

// DeleteRequestsBetweenFriends はフレンド関係が成立済みの2人の間に残った保留リクエストを削除する。
func (r *PostgresFriendRepo) DeleteRequestsBetweenFriends(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM friend_requests fr
		 USING friendships f
		 WHERE f.user_id = fr.receiver_id AND f.friend_id = fr.sender_id`,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale friend requests: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// compile-time interface check
var _ FriendGraphRepository = (*PostgresFriendRepo)(nil)
var _ GraphTx = (*pgGraphTx)(nil)
