// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/friendsplace/internal/model"
)

var (
	// ErrNotFound は更新・削除対象が存在しない場合のエラー。
	ErrNotFound = errors.New("record not found")
	// ErrReactExists は同一(投稿, ユーザー)のリアクションが既に存在する場合のエラー。
	ErrReactExists = errors.New("react already exists for post and user")
)

// DuplicateError は一意制約違反を表す。Fieldは違反したカラム名。
type DuplicateError struct {
	Field string
}

func (e *DuplicateError) Error() string {
	return "duplicate value for " + e.Field
}

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	// Friends、Requests、SavedPostsも読み込む。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// List は全ユーザーを作成日時順で返す。
	List(ctx context.Context) ([]*model.User, error)

	// Create はユーザーを作成する。一意制約違反は*DuplicateErrorを返す。
	Create(ctx context.Context, user *model.User) error

	// Update はpatchの非nilフィールドのみを更新し、更新後のユーザーを返す。
	// 見つからない場合はnilを返す。
	Update(ctx context.Context, id string, patch model.UserPatch) (*model.User, error)

	// DeleteByID は指定IDのユーザーを削除する。グラフ・投稿はCASCADE削除される。
	// 見つからない場合はErrNotFoundを返す。
	DeleteByID(ctx context.Context, id string) error

	// ToggleSavedPost は保存済みなら解除し、未保存なら保存する。保存後の状態を返す。
	ToggleSavedPost(ctx context.Context, userID, postID string) (bool, error)
}

// GraphTx はユーザー2人の行ロックを保持したトランザクション内のグラフ操作。
type GraphTx interface {
	// UserExists はユーザーが存在するかを返す。
	UserExists(ctx context.Context, id string) (bool, error)
	// HasFriendEdge はfromのフレンド一覧にtoが含まれるかを返す。
	HasFriendEdge(ctx context.Context, from, to string) (bool, error)
	// HasRequest はreceiverの保留リクエストにsenderが含まれるかを返す。
	HasRequest(ctx context.Context, sender, receiver string) (bool, error)
	// AddRequest は保留リクエストを追加する。既に存在する場合は何もしない。
	AddRequest(ctx context.Context, sender, receiver string) error
	// RemoveRequest は保留リクエストを削除し、削除したかを返す。
	RemoveRequest(ctx context.Context, sender, receiver string) (bool, error)
	// AddFriendEdge はfromからtoへのフレンド片側を追加する。既に存在する場合は何もしない。
	AddFriendEdge(ctx context.Context, from, to string) error
	// RemoveFriendEdge はfromからtoへのフレンド片側を削除し、削除したかを返す。
	RemoveFriendEdge(ctx context.Context, from, to string) (bool, error)
}

// FriendEdge はフレンド関係の片側を表す。
type FriendEdge struct {
	UserID   string
	FriendID string
}

// FriendGraphRepository はフレンドグラフの永続化インターフェース。
type FriendGraphRepository interface {
	// WithPairLock は2人のユーザー行をID昇順にロックしたトランザクション内でfnを実行する。
	// fnがエラーを返した場合はロールバックする。
	WithPairLock(ctx context.Context, a, b string, fn func(tx GraphTx) error) error

	// ListFriends はユーザーのフレンドのプロフィール概要を返す。
	ListFriends(ctx context.Context, userID string) ([]*model.UserSummary, error)

	// ListRequests はユーザー宛ての保留リクエスト送信者のプロフィール概要を返す。
	ListRequests(ctx context.Context, userID string) ([]*model.UserSummary, error)

	// ListOrphanEdges は逆方向の行が存在しないフレンド片側を最大limit件返す。
	ListOrphanEdges(ctx context.Context, limit int) ([]FriendEdge, error)

	// DeleteRequestsBetweenFriends はフレンド関係が成立済みの2人の間に残った保留リクエストを削除する。
	DeleteRequestsBetweenFriends(ctx context.Context) (int64, error)
}

// PostRepository は投稿データの永続化インターフェース。
type PostRepository interface {
	// FindByID は指定IDの投稿を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Post, error)
	// List は投稿を新しい順に最大limit件返す。
	List(ctx context.Context, limit int) ([]*model.Post, error)
	// Create は投稿を作成する。
	Create(ctx context.Context, post *model.Post) error
	// Update は本文と背景を更新する。nilのフィールドは変更しない。見つからない場合はnilを返す。
	Update(ctx context.Context, id string, text, background *string) (*model.Post, error)
	// DeleteByID は投稿を削除する。見つからない場合はErrNotFoundを返す。
	DeleteByID(ctx context.Context, id string) error
}

// CommentRepository はコメントデータの永続化インターフェース。
type CommentRepository interface {
	FindByID(ctx context.Context, id string) (*model.Comment, error)
	ListByPost(ctx context.Context, postID string) ([]*model.Comment, error)
	List(ctx context.Context) ([]*model.Comment, error)
	Create(ctx context.Context, comment *model.Comment) error
	// Update はコメント本文を更新する。見つからない場合はnilを返す。
	Update(ctx context.Context, id, text string) (*model.Comment, error)
	DeleteByID(ctx context.Context, id string) error
}

// ReactRepository はリアクションデータの永続化インターフェース。
// 書き込みはすべて条件付きで、競合時はfalseまたはErrReactExistsを返す。
type ReactRepository interface {
	// FindByPostAndUser は(投稿, ユーザー)のリアクションを取得する。見つからない場合はnilを返す。
	FindByPostAndUser(ctx context.Context, postID, userID string) (*model.React, error)
	// FindByID は指定IDのリアクションを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.React, error)
	// ListByPost は投稿へのリアクション一覧を返す。
	ListByPost(ctx context.Context, postID string) ([]*model.React, error)
	// List は全リアクションを返す。
	List(ctx context.Context) ([]*model.React, error)
	// Create はリアクションを作成する。既に存在する場合はErrReactExistsを返す。
	Create(ctx context.Context, react *model.React) error
	// UpdateIfValue は現在値がfromの場合のみtoに更新し、更新したかを返す。
	UpdateIfValue(ctx context.Context, id string, from, to model.ReactType) (bool, error)
	// DeleteIfValue は現在値がvalueの場合のみ削除し、削除したかを返す。
	DeleteIfValue(ctx context.Context, id string, value model.ReactType) (bool, error)
	// Update は指定IDのリアクションを無条件に更新する。見つからない場合はnilを返す。
	Update(ctx context.Context, id string, value model.ReactType) (*model.React, error)
	// DeleteByID は指定IDのリアクションを削除する。見つからない場合はErrNotFoundを返す。
	DeleteByID(ctx context.Context, id string) error
}
