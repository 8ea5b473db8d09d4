package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/friendsplace/internal/model"
)

const commentColumns = `id, post_id, user_id, comment, image, created_at, updated_at`

// PostgresCommentRepo はPostgreSQLを使用したコメントリポジトリ。
type PostgresCommentRepo struct {
	db *sql.DB
}

// NewPostgresCommentRepo はPostgresCommentRepoを生成する。
func NewPostgresCommentRepo(db *sql.DB) *PostgresCommentRepo {
	return &PostgresCommentRepo{db: db}
}

func scanComment(row rowScanner) (*model.Comment, error) {
	c := &model.Comment{}
	if err := row.Scan(&c.ID, &c.PostID, &c.UserID, &c.Comment, &c.Image, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *PostgresCommentRepo) query(ctx context.Context, query string, args ...any) ([]*model.Comment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()

	var comments []*model.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate comments: %w", err)
	}
	return comments, nil
}

// FindByID は指定IDのコメントを取得する。見つからない場合はnilを返す。
func (r *PostgresCommentRepo) FindByID(ctx context.Context, id string) (*model.Comment, error) {
	if !validID(id) {
		return nil, nil
	}
	c, err := scanComment(r.db.QueryRowContext(ctx, `SELECT `+commentColumns+` FROM comments WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find comment: %w", err)
	}
	return c, nil
}

// ListByPost は投稿へのコメントを古い順に返す。
func (r *PostgresCommentRepo) ListByPost(ctx context.Context, postID string) ([]*model.Comment, error) {
	if !validID(postID) {
		return nil, nil
	}
	return r.query(ctx, `SELECT `+commentColumns+` FROM comments WHERE post_id = $1 ORDER BY created_at`, postID)
}

// List は全コメントを返す。
func (r *PostgresCommentRepo) List(ctx context.Context) ([]*model.Comment, error) {
	return r.query(ctx, `SELECT `+commentColumns+` FROM comments ORDER BY created_at DESC`)
}

// Create はコメントを作成する。
func (r *PostgresCommentRepo) Create(ctx context.Context, c *model.Comment) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO comments (`+commentColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.PostID, c.UserID, c.Comment, c.Image, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert comment: %w", err)
	}
	return nil
}

// Update はコメント本文を更新する。見つからない場合はnilを返す。
func (r *PostgresCommentRepo) Update(ctx context.Context, id, text string) (*model.Comment, error) {
	if !validID(id) {
		return nil, nil
	}
	c, err := scanComment(r.db.QueryRowContext(ctx,
		`UPDATE comments SET comment = $2, updated_at = $3 WHERE id = $1 RETURNING `+commentColumns,
		id, text, time.Now().UTC(),
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update comment: %w", err)
	}
	return c, nil
}

// DeleteByID はコメントを削除する。見つからない場合はErrNotFoundを返す。
func (r *PostgresCommentRepo) DeleteByID(ctx context.Context, id string) error {
	return deleteByID(ctx, r.db, "comments", id)
}

// compile-time interface check
var _ CommentRepository = (*PostgresCommentRepo)(nil)
