package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/friendsplace/internal/model"
	"github.com/lib/pq"
)

// userSelect はユーザー行とフレンド・保留リクエストのID配列を取得する。
const userSelect = `
	SELECT u.id, u.first_name, u.last_name, u.username, u.email, u.password_hash,
	       u.password_changed_at, u.email_changed_at, u.role, u.is_verified, u.gender,
	       u.birth_year, u.birth_month, u.birth_date, u.avatar, u.cover_photo, u.details,
	       u.created_at, u.updated_at,
	       ARRAY(SELECT f.friend_id::text FROM friendships f WHERE f.user_id = u.id ORDER BY f.created_at),
	       ARRAY(SELECT fr.sender_id::text FROM friend_requests fr WHERE fr.receiver_id = u.id ORDER BY fr.created_at)
	FROM users u`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	user := &model.User{}
	var passwordChangedAt, emailChangedAt sql.NullTime
	var details []byte

	err := row.Scan(
		&user.ID, &user.FirstName, &user.LastName, &user.Username, &user.Email, &user.PasswordHash,
		&passwordChangedAt, &emailChangedAt, &user.Role, &user.IsVerified, &user.Gender,
		&user.BirthYear, &user.BirthMonth, &user.BirthDate, &user.Avatar, &user.CoverPhoto, &details,
		&user.CreatedAt, &user.UpdatedAt,
		pq.Array(&user.Friends), pq.Array(&user.Requests),
	)
	if err != nil {
		return nil, err
	}

	if passwordChangedAt.Valid {
		t := passwordChangedAt.Time.UTC()
		user.PasswordChangedAt = &t
	}
	if emailChangedAt.Valid {
		t := emailChangedAt.Time.UTC()
		user.EmailChangedAt = &t
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &user.Details); err != nil {
			return nil, fmt.Errorf("failed to decode user details: %w", err)
		}
	}

	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if !validID(id) {
		return nil, nil
	}

	user, err := scanUser(r.db.QueryRowContext(ctx, userSelect+` WHERE u.id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}

	if err := r.loadSavedPosts(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, userSelect+` WHERE u.email = lower($1)`, email))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}

	if err := r.loadSavedPosts(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (r *PostgresUserRepo) loadSavedPosts(ctx context.Context, user *model.User) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT post_id, saved_at FROM saved_posts WHERE user_id = $1 ORDER BY saved_at`,
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to list saved posts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sp model.SavedPost
		if err := rows.Scan(&sp.PostID, &sp.SavedAt); err != nil {
			return fmt.Errorf("failed to scan saved post: %w", err)
		}
		user.SavedPosts = append(user.SavedPosts, sp)
	}
	return rows.Err()
}

// List は全ユーザーを作成日時順で返す。
func (r *PostgresUserRepo) List(ctx context.Context) ([]*model.User, error) {
	rows, err := r.db.QueryContext(ctx, userSelect+` ORDER BY u.created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

// Create はユーザーを作成する。一意制約違反は*DuplicateErrorを返す。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	details, err := json.Marshal(user.Details)
	if err != nil {
		return fmt.Errorf("failed to encode user details: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO users (id, first_name, last_name, username, email, password_hash,
		     password_changed_at, role, is_verified, gender, birth_year, birth_month, birth_date,
		     avatar, cover_photo, details, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, lower($5), $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		user.ID, user.FirstName, user.LastName, user.Username, user.Email, user.PasswordHash,
		user.PasswordChangedAt, user.Role, user.IsVerified, user.Gender,
		user.BirthYear, user.BirthMonth, user.BirthDate,
		user.Avatar, user.CoverPhoto, details, user.CreatedAt, user.UpdatedAt,
	)
	if dup := asDuplicateError(err); dup != nil {
		return dup
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// Update はpatchの非nilフィールドのみを1つのUPDATE文で更新する。
// メールアドレスを変更した場合はemail_changed_atも更新する。
func (r *PostgresUserRepo) Update(ctx context.Context, id string, patch model.UserPatch) (*model.User, error) {
	if !validID(id) {
		return nil, nil
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	var sets []string
	var args []any
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.FirstName != nil {
		add("first_name", *patch.FirstName)
	}
	if patch.LastName != nil {
		add("last_name", *patch.LastName)
	}
	if patch.Username != nil {
		add("username", *patch.Username)
	}
	if patch.Email != nil {
		args = append(args, *patch.Email, now)
		emailArg, changedArg := len(args)-1, len(args)
		sets = append(sets,
			fmt.Sprintf("email = lower($%d)", emailArg),
			fmt.Sprintf("email_changed_at = CASE WHEN email = lower($%d) THEN email_changed_at ELSE $%d END", emailArg, changedArg),
		)
	}
	if patch.PasswordHash != nil {
		add("password_hash", *patch.PasswordHash)
	}
	if patch.PasswordChangedAt != nil {
		add("password_changed_at", *patch.PasswordChangedAt)
	}
	if patch.Role != nil {
		add("role", *patch.Role)
	}
	if patch.IsVerified != nil {
		add("is_verified", *patch.IsVerified)
	}
	if patch.Gender != nil {
		add("gender", *patch.Gender)
	}
	if patch.BirthYear != nil {
		add("birth_year", *patch.BirthYear)
	}
	if patch.BirthMonth != nil {
		add("birth_month", *patch.BirthMonth)
	}
	if patch.BirthDate != nil {
		add("birth_date", *patch.BirthDate)
	}
	if patch.Avatar != nil {
		add("avatar", *patch.Avatar)
	}
	if patch.CoverPhoto != nil {
		add("cover_photo", *patch.CoverPhoto)
	}
	if patch.Details != nil {
		details, err := json.Marshal(patch.Details)
		if err != nil {
			return nil, fmt.Errorf("failed to encode user details: %w", err)
		}
		add("details", details)
	}

	if len(sets) > 0 {
		add("updated_at", now)
		args = append(args, id)
		query := fmt.Sprintf(`UPDATE users SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args))

		result, err := r.db.ExecContext(ctx, query, args...)
		if dup := asDuplicateError(err); dup != nil {
			return nil, dup
		}
		if err != nil {
			return nil, fmt.Errorf("failed to update user: %w", err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return nil, nil
		}
	}

	return r.FindByID(ctx, id)
}

// DeleteByID は指定IDのユーザーを削除する。
// フレンドグラフ、投稿、コメント、リアクションはCASCADE削除される。
func (r *PostgresUserRepo) DeleteByID(ctx context.Context, id string) error {
	if !validID(id) {
		return ErrNotFound
	}

	result, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ToggleSavedPost は保存済みなら解除し、未保存なら保存する。保存後の状態を返す。
func (r *PostgresUserRepo) ToggleSavedPost(ctx context.Context, userID, postID string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`DELETE FROM saved_posts WHERE user_id = $1 AND post_id = $2`,
		userID, postID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete saved post: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	saved := removed == 0
	if saved {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO saved_posts (user_id, post_id, saved_at) VALUES ($1, $2, $3)
			 ON CONFLICT (user_id, post_id) DO NOTHING`,
			userID, postID, time.Now().UTC(),
		)
		if err != nil {
			return false, fmt.Errorf("failed to insert saved post: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return saved, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
