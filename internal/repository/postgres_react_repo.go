package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/friendsplace/internal/model"
)

const reactColumns = `id, post_id, user_id, react, created_at, updated_at`

// PostgresReactRepo はPostgreSQLを使用したリアクションリポジトリ。
// UNIQUE(post_id, user_id)により(投稿, ユーザー)あたり1件を保証する。
type PostgresReactRepo struct {
	db *sql.DB
}

// NewPostgresReactRepo はPostgresReactRepoを生成する。
func NewPostgresReactRepo(db *sql.DB) *PostgresReactRepo {
	return &PostgresReactRepo{db: db}
}

func scanReact(row rowScanner) (*model.React, error) {
	re := &model.React{}
	if err := row.Scan(&re.ID, &re.PostID, &re.UserID, &re.React, &re.CreatedAt, &re.UpdatedAt); err != nil {
		return nil, err
	}
	return re, nil
}

func (r *PostgresReactRepo) findOne(ctx context.Context, query string, args ...any) (*model.React, error) {
	re, err := scanReact(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find react: %w", err)
	}
	return re, nil
}

func (r *PostgresReactRepo) query(ctx context.Context, query string, args ...any) ([]*model.React, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reacts: %w", err)
	}
	defer rows.Close()

	var reacts []*model.React
	for rows.Next() {
		re, err := scanReact(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan react: %w", err)
		}
		reacts = append(reacts, re)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reacts: %w", err)
	}
	return reacts, nil
}

// FindByPostAndUser は(投稿, ユーザー)のリアクションを取得する。見つからない場合はnilを返す。
func (r *PostgresReactRepo) FindByPostAndUser(ctx context.Context, postID, userID string) (*model.React, error) {
	if !validID(postID) || !validID(userID) {
		return nil, nil
	}
	return r.findOne(ctx, `SELECT `+reactColumns+` FROM reacts WHERE post_id = $1 AND user_id = $2`, postID, userID)
}

// FindByID は指定IDのリアクションを取得する。見つからない場合はnilを返す。
func (r *PostgresReactRepo) FindByID(ctx context.Context, id string) (*model.React, error) {
	if !validID(id) {
		return nil, nil
	}
	return r.findOne(ctx, `SELECT `+reactColumns+` FROM reacts WHERE id = $1`, id)
}

// ListByPost は投稿へのリアクション一覧を返す。
func (r *PostgresReactRepo) ListByPost(ctx context.Context, postID string) ([]*model.React, error) {
	if !validID(postID) {
		return nil, nil
	}
	return r.query(ctx, `SELECT `+reactColumns+` FROM reacts WHERE post_id = $1 ORDER BY created_at`, postID)
}

// List は全リアクションを返す。
func (r *PostgresReactRepo) List(ctx context.Context) ([]*model.React, error) {
	return r.query(ctx, `SELECT `+reactColumns+` FROM reacts ORDER BY created_at DESC`)
}

// Create はリアクションを作成する。
// 同時作成で負けた場合は行を挿入せずErrReactExistsを返す。
func (r *PostgresReactRepo) Create(ctx context.Context, re *model.React) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO reacts (`+reactColumns+`) VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (post_id, user_id) DO NOTHING`,
		re.ID, re.PostID, re.UserID, re.React, re.CreatedAt, re.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert react: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrReactExists
	}
	return nil
}

// UpdateIfValue は現在値がfromの場合のみtoに更新し、更新したかを返す。
func (r *PostgresReactRepo) UpdateIfValue(ctx context.Context, id string, from, to model.ReactType) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE reacts SET react = $3, updated_at = $4 WHERE id = $1 AND react = $2`,
		id, from, to, time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to update react: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// DeleteIfValue は現在値がvalueの場合のみ削除し、削除したかを返す。
func (r *PostgresReactRepo) DeleteIfValue(ctx context.Context, id string, value model.ReactType) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM reacts WHERE id = $1 AND react = $2`,
		id, value,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete react: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// Update は指定IDのリアクションを無条件に更新する。見つからない場合はnilを返す。
func (r *PostgresReactRepo) Update(ctx context.Context, id string, value model.ReactType) (*model.React, error) {
	if !validID(id) {
		return nil, nil
	}
	return r.findOne(ctx,
		`UPDATE reacts SET react = $2, updated_at = $3 WHERE id = $1 RETURNING `+reactColumns,
		id, value, time.Now().UTC(),
	)
}

// DeleteByID は指定IDのリアクションを削除する。見つからない場合はErrNotFoundを返す。
func (r *PostgresReactRepo) DeleteByID(ctx context.Context, id string) error {
	return deleteByID(ctx, r.db, "reacts", id)
}

// compile-time interface check
var _ ReactRepository = (*PostgresReactRepo)(nil)
