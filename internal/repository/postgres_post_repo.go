package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/friendsplace/internal/model"
)

const postColumns = `id, user_id, text, image, background, created_at, updated_at`

// PostgresPostRepo はPostgreSQLを使用した投稿リポジトリ。
type PostgresPostRepo struct {
	db *sql.DB
}

// NewPostgresPostRepo はPostgresPostRepoを生成する。
func NewPostgresPostRepo(db *sql.DB) *PostgresPostRepo {
	return &PostgresPostRepo{db: db}
}

func scanPost(row rowScanner) (*model.Post, error) {
	p := &model.Post{}
	if err := row.Scan(&p.ID, &p.UserID, &p.Text, &p.Image, &p.Background, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return p, nil
}

// FindByID は指定IDの投稿を取得する。見つからない場合はnilを返す。
func (r *PostgresPostRepo) FindByID(ctx context.Context, id string) (*model.Post, error) {
	if !validID(id) {
		return nil, nil
	}
	p, err := scanPost(r.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find post: %w", err)
	}
	return p, nil
}

// List は投稿を新しい順に最大limit件返す。
func (r *PostgresPostRepo) List(ctx context.Context, limit int) ([]*model.Post, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+postColumns+` FROM posts ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	defer rows.Close()

	var posts []*model.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate posts: %w", err)
	}
	return posts, nil
}

// Create は投稿を作成する。
func (r *PostgresPostRepo) Create(ctx context.Context, post *model.Post) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO posts (`+postColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		post.ID, post.UserID, post.Text, post.Image, post.Background, post.CreatedAt, post.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert post: %w", err)
	}
	return nil
}

// Update は本文と背景を更新する。作成者は変更しない。見つからない場合はnilを返す。
func (r *PostgresPostRepo) Update(ctx context.Context, id string, text, background *string) (*model.Post, error) {
	if !validID(id) {
		return nil, nil
	}
	p, err := scanPost(r.db.QueryRowContext(ctx,
		`UPDATE posts SET
		    text = COALESCE($2, text),
		    background = COALESCE($3, background),
		    updated_at = $4
		 WHERE id = $1
		 RETURNING `+postColumns,
		id, text, background, time.Now().UTC(),
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update post: %w", err)
	}
	return p, nil
}

// DeleteByID は投稿を削除する。コメント・リアクション・保存はCASCADE削除される。
func (r *PostgresPostRepo) DeleteByID(ctx context.Context, id string) error {
	return deleteByID(ctx, r.db, "posts", id)
}

// deleteByID は指定テーブルの行をIDで削除する。見つからない場合はErrNotFoundを返す。
func deleteByID(ctx context.Context, db *sql.DB, table, id string) error {
	if !validID(id) {
		return ErrNotFound
	}
	result, err := db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// compile-time interface check
var _ PostRepository = (*PostgresPostRepo)(nil)
